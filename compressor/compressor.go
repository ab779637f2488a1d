// Copyright 2025 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.
// Package compressor turns the postings of a source index into quasi-succinct bitstreams, one
// set of files per term partition: a lexicon, the doc-id bitstream and the frequency bitstream.
package compressor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerwatch/log/v3"

	"github.com/erigontech/efpostings/common/bitutil"
	"github.com/erigontech/efpostings/common/datadir"
	"github.com/erigontech/efpostings/common/dir"
	"github.com/erigontech/efpostings/eliasfano"
	"github.com/erigontech/efpostings/index"
	"github.com/erigontech/efpostings/lexicon"
	"github.com/erigontech/efpostings/metrics"
)

var (
	ErrInvalidRange      = errors.New("invalid term range")
	ErrIndexExists       = errors.New("index already exists at destination")
	ErrNonIncreasingDocs = errors.New("document ids are not strictly increasing")
	ErrDocOutOfRange     = errors.New("document id out of range")
)

var (
	mxTerms     = metrics.GetOrCreateCounter("ef_terms_compressed_total")
	mxPostings  = metrics.GetOrCreateCounter("ef_postings_compressed_total")
	mxDocidBits = metrics.GetOrCreateCounter(`ef_bits_written_total{channel="docids"}`)
	mxFreqBits  = metrics.GetOrCreateCounter(`ef_bits_written_total{channel="freqs"}`)

	mxPartitionsActive = metrics.GetOrCreateGauge("ef_partitions_active", "partitions being compressed")
)

// Compressor writes compressed partitions of src into dirs.DataDir. Partitions may be compressed
// concurrently; each call owns its encoders and files and only reads src.
type Compressor struct {
	src    index.Index
	dirs   datadir.Dirs
	name   string
	cfg    Config
	logger log.Logger
}

// New fails with ErrIndexExists when files of an index called name are already in dirs.DataDir.
func New(src index.Index, dirs datadir.Dirs, name string, cfg Config, logger log.Logger) (*Compressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("bad index name %q", name)
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = dirs.Tmp
	}
	files, err := dir.ListFiles(dirs.DataDir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		base := filepath.Base(f)
		if base == name+PropertiesExt || strings.HasPrefix(base, name+"-") || strings.HasPrefix(base, name+".") {
			return nil, fmt.Errorf("%w: %s", ErrIndexExists, f)
		}
	}
	return &Compressor{src: src, dirs: dirs, name: name, cfg: cfg, logger: logger}, nil
}

func (c *Compressor) Name() string   { return c.name }
func (c *Compressor) Config() Config { return c.cfg }

// PartitionStats summarizes one compressed partition.
type PartitionStats struct {
	Partition TermPartition
	Terms     int
	Postings  uint64
	DocidBits uint64
	FreqBits  uint64
}

// partitionWriter holds the outputs of one partition while it is being written.
type partitionWriter struct {
	lex    *lexicon.Writer
	docids *bitutil.Writer
	freqs  *bitutil.Writer

	created []string
}

func (c *Compressor) create(part TermPartition) (*partitionWriter, error) {
	lexPath, docidsPath, freqsPath := part.files(c.dirs.DataDir)
	pw := &partitionWriter{}
	var err error
	if pw.lex, err = lexicon.Create(lexPath); err != nil {
		return nil, err
	}
	pw.created = append(pw.created, lexPath)
	f, err := dir.CreateExclusive(docidsPath)
	if err != nil {
		return pw, err
	}
	pw.created = append(pw.created, docidsPath)
	pw.docids = bitutil.NewWriter(f)
	if f, err = dir.CreateExclusive(freqsPath); err != nil {
		return pw, err
	}
	pw.created = append(pw.created, freqsPath)
	pw.freqs = bitutil.NewWriter(f)
	return pw, nil
}

func (pw *partitionWriter) close() error {
	var errs []error
	if pw.lex != nil {
		errs = append(errs, pw.lex.Close())
	}
	if pw.docids != nil {
		errs = append(errs, pw.docids.Close())
	}
	if pw.freqs != nil {
		errs = append(errs, pw.freqs.Close())
	}
	return errors.Join(errs...)
}

// abort closes everything and removes the files this partition created.
func (pw *partitionWriter) abort() error {
	return errors.Join(pw.close(), dir.RemoveFiles(pw.created...))
}

// Compress writes the partition files. On any failure the files it created are removed.
func (c *Compressor) Compress(ctx context.Context, part TermPartition) (stats PartitionStats, err error) {
	stats.Partition = part
	if err := part.Validate(c.src.NumTerms()); err != nil {
		c.logger.Error("[ef] refusing to compress", "partition", part, "err", err)
		return stats, err
	}
	mxPartitionsActive.Inc()
	defer mxPartitionsActive.Dec()

	pw, err := c.create(part)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			err = fmt.Errorf("%w: %s: %w", ErrIndexExists, part.Prefix, err)
		}
		if pw != nil {
			err = errors.Join(err, pw.abort())
		}
		return stats, err
	}
	docs := eliasfano.NewEncoder(c.cfg.CacheSize, c.cfg.Log2Quantum, c.cfg.TmpDir)
	freqs := eliasfano.NewEncoder(c.cfg.CacheSize, c.cfg.Log2Quantum, c.cfg.TmpDir)
	defer func() {
		encErr := errors.Join(docs.Close(), freqs.Close())
		if err != nil {
			err = errors.Join(err, encErr, pw.abort())
			return
		}
		if err = errors.Join(encErr, pw.close()); err != nil {
			err = errors.Join(err, dir.RemoveFiles(pw.created...))
		}
	}()

	lex, err := c.src.Lexicon(part.Begin)
	if err != nil {
		return stats, err
	}
	defer lex.Close()

	logEvery := time.NewTicker(30 * time.Second)
	defer logEvery.Stop()
	started := time.Now()

	for termID := part.Begin; termID < part.End && lex.HasNext(); termID++ {
		e, err := lex.Next()
		if err != nil {
			return stats, err
		}
		docBits, freqBits, err := c.compressTerm(e, termID-part.Begin, pw, docs, freqs, stats.DocidBits, stats.FreqBits)
		if err != nil {
			return stats, fmt.Errorf("[ef] %s term %d %q: %w", part.Prefix, e.TermID, e.Term, err)
		}
		stats.Terms++
		stats.Postings += e.DocFreq
		stats.DocidBits += docBits
		stats.FreqBits += freqBits
		mxTerms.Inc()
		mxPostings.AddUint64(e.DocFreq)
		mxDocidBits.AddUint64(docBits)
		mxFreqBits.AddUint64(freqBits)

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-logEvery.C:
			c.logger.Info("[ef] compressing", "partition", part.Prefix,
				"progress", fmt.Sprintf("%d/%d", stats.Terms, part.End-part.Begin),
				"postings", stats.Postings)
		default:
		}
	}

	c.logger.Info("[ef] partition done", "partition", part, "terms", stats.Terms, "postings", stats.Postings,
		"docid_bits", stats.DocidBits, "freq_bits", stats.FreqBits, "took", time.Since(started))
	return stats, nil
}

// compressTerm encodes the postings of e and appends its lexicon record, carrying the offsets the
// term starts at. It returns the bits written to each channel.
func (c *Compressor) compressTerm(e index.LexiconEntry, localID int, pw *partitionWriter,
	docs, freqs *eliasfano.Encoder, docidOffset, freqOffset uint64) (docBits, freqBits uint64, err error) {
	numDocs := c.src.NumDocs()
	if err := docs.Init(e.DocFreq, numDocs, false, true, c.cfg.Log2Quantum); err != nil {
		return 0, 0, err
	}
	if err := freqs.Init(e.DocFreq, e.TermFreq, true, false, c.cfg.Log2Quantum); err != nil {
		return 0, 0, err
	}

	it, err := c.src.Postings(e)
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()
	var prev uint64
	for n := uint64(0); it.HasNext(); n++ {
		doc, freq, err := it.Next()
		if err != nil {
			return 0, 0, err
		}
		if n > 0 && doc <= prev {
			return 0, 0, fmt.Errorf("%w: %d after %d", ErrNonIncreasingDocs, doc, prev)
		}
		if doc >= numDocs {
			return 0, 0, fmt.Errorf("%w: %d, collection has %d documents", ErrDocOutOfRange, doc, numDocs)
		}
		if err := docs.Add(doc - prev); err != nil {
			return 0, 0, err
		}
		if err := freqs.Add(freq); err != nil {
			return 0, 0, err
		}
		prev = doc
	}

	if docBits, err = docs.Dump(pw.docids); err != nil {
		return 0, 0, err
	}
	if freqBits, err = freqs.Dump(pw.freqs); err != nil {
		return 0, 0, err
	}
	err = pw.lex.Add(lexicon.Entry{
		Term:        e.Term,
		TermID:      localID,
		DocFreq:     e.DocFreq,
		TermFreq:    e.TermFreq,
		MaxFreq:     e.MaxFreq,
		DocidOffset: docidOffset,
		FreqOffset:  freqOffset,
	})
	return docBits, freqBits, err
}
