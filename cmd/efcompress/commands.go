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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"syscall"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/efpostings/common/datadir"
	"github.com/erigontech/efpostings/compressor"
	"github.com/erigontech/efpostings/index"
	"github.com/erigontech/efpostings/metrics"
	"github.com/erigontech/efpostings/stream"
)

var errVerifyFailed = errors.New("verification failed")

func loadCorpus(path string) (*index.MemIndex, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return index.ReadCorpus(r)
}

func doCompress(cliCtx *cli.Context) error {
	logger := log.New("cmd", "compress")
	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cacheSize, err := parseCacheSize(cliCtx.String(CacheSizeFlag.Name))
	if err != nil {
		return err
	}
	src, err := loadCorpus(cliCtx.String(CorpusFlag.Name))
	if err != nil {
		return err
	}
	logger.Info("[ef] corpus loaded", "docs", src.NumDocs(), "terms", src.NumTerms())

	cfg := compressor.DefaultConfig()
	cfg.Log2Quantum = cliCtx.Int(Log2QuantumFlag.Name)
	cfg.CacheSize = cacheSize
	cfg.Workers = cliCtx.Int(WorkersFlag.Name)

	dirs := datadir.New(cliCtx.String(DataDirFlag.Name))
	name := cliCtx.String(NameFlag.Name)
	c, err := compressor.New(src, dirs, name, cfg, logger)
	if err != nil {
		return err
	}
	props, err := c.CompressAll(ctx, compressor.Partitions(name, src.NumTerms(), cliCtx.Int(PartitionsFlag.Name)))
	if err != nil {
		return err
	}
	printProperties(logger, props)
	return logMetrics(logger)
}

func logMetrics(logger log.Logger) error {
	snapshot, err := metrics.DefaultSet().Snapshot()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(snapshot))
	for k := range snapshot {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		logger.Debug("[ef] metric", "name", k, "value", snapshot[k])
	}
	return nil
}

func doStats(cliCtx *cli.Context) error {
	logger := log.New("cmd", "stats")
	rd, err := compressor.Open(cliCtx.String(DataDirFlag.Name), cliCtx.String(NameFlag.Name))
	if err != nil {
		return err
	}
	defer rd.Close()
	props := rd.Properties()
	printProperties(logger, &props)
	return nil
}

func bitsPerPosting(bits, postings uint64) string {
	if postings == 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f", float64(bits)/float64(postings))
}

func printProperties(logger log.Logger, props *compressor.Properties) {
	var docidBits, freqBits uint64
	for _, p := range props.Partitions {
		docidBits += p.DocidBits
		freqBits += p.FreqBits
		logger.Info("[ef] partition", "prefix", p.Prefix, "terms", fmt.Sprintf("[%d,%d)", p.Begin, p.End),
			"postings", p.Postings,
			"docids", datasize.ByteSize(p.DocidBits/8).HumanReadable(), "docid_bpp", bitsPerPosting(p.DocidBits, p.Postings),
			"freqs", datasize.ByteSize(p.FreqBits/8).HumanReadable(), "freq_bpp", bitsPerPosting(p.FreqBits, p.Postings))
	}
	logger.Info("[ef] index", "docs", props.NumDocs, "terms", props.NumTerms, "postings", props.NumPostings,
		"log2_quantum", props.Log2Quantum, "partitions", len(props.Partitions),
		"docid_bpp", bitsPerPosting(docidBits, props.NumPostings),
		"freq_bpp", bitsPerPosting(freqBits, props.NumPostings),
		"total", datasize.ByteSize((docidBits+freqBits)/8).HumanReadable())
}

func doVerify(cliCtx *cli.Context) error {
	logger := log.New("cmd", "verify")
	src, err := loadCorpus(cliCtx.String(CorpusFlag.Name))
	if err != nil {
		return err
	}
	rd, err := compressor.Open(cliCtx.String(DataDirFlag.Name), cliCtx.String(NameFlag.Name))
	if err != nil {
		return err
	}
	defer rd.Close()
	failures, err := verify(cliCtx.Context, src, rd, cliCtx.Int(ProbesFlag.Name), logger)
	if err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("%w: %d terms differ", errVerifyFailed, failures)
	}
	logger.Info("[ef] verified", "terms", rd.NumTerms(), "docs", rd.NumDocs())
	return nil
}

// verify decodes every posting list of rd, compares it with src and probes SkipTo at random
// targets. It returns the number of terms that do not match.
func verify(ctx context.Context, src index.Index, rd *compressor.Reader, probes int, logger log.Logger) (int, error) {
	if src.NumDocs() != rd.NumDocs() || src.NumTerms() != rd.NumTerms() {
		return 0, fmt.Errorf("%w: corpus has %d docs and %d terms, index has %d docs and %d terms",
			errVerifyFailed, src.NumDocs(), src.NumTerms(), rd.NumDocs(), rd.NumTerms())
	}
	lex, err := src.Lexicon(0)
	if err != nil {
		return 0, err
	}
	rnd := rand.New(rand.NewPCG(uint64(src.NumDocs()), uint64(src.NumTerms())))
	failures := 0
	for lex.HasNext() {
		select {
		case <-ctx.Done():
			return failures, ctx.Err()
		default:
		}
		e, err := lex.Next()
		if err != nil {
			return failures, err
		}
		if msg, err := verifyTerm(src, rd, e, probes, rnd); err != nil {
			return failures, err
		} else if msg != "" {
			failures++
			logger.Warn("[ef] mismatch", "term", e.Term, "id", e.TermID, "err", msg)
		}
	}
	return failures, nil
}

func verifyTerm(src index.Index, rd *compressor.Reader, e index.LexiconEntry, probes int, rnd *rand.Rand) (string, error) {
	got, err := rd.Entry(e.TermID)
	if err != nil {
		return "", err
	}
	if got.Term != e.Term || got.DocFreq != e.DocFreq || got.TermFreq != e.TermFreq || got.MaxFreq != e.MaxFreq {
		return fmt.Sprintf("lexicon entry %+v, want %+v", got, e), nil
	}
	want, err := src.Postings(e)
	if err != nil {
		return "", err
	}
	wantDocs, wantFreqs, err := stream.ToArrayDuo(want)
	if err != nil {
		return "", err
	}
	it, err := rd.PostingsByID(e.TermID)
	if err != nil {
		return "", err
	}
	docs, freqs, err := stream.ToArrayDuo[uint64, uint64](it)
	if err != nil {
		return "", err
	}
	if !slices.Equal(docs, wantDocs) {
		return "doc ids differ", nil
	}
	if !slices.Equal(freqs, wantFreqs) {
		return "frequencies differ", nil
	}

	var msgs []string
	for range probes {
		target := rnd.Uint64N(src.NumDocs() + 1)
		it, err := rd.PostingsByID(e.TermID)
		if err != nil {
			return "", err
		}
		doc, freq, err := it.SkipTo(target)
		i, _ := slices.BinarySearch(wantDocs, target)
		switch {
		case i == len(wantDocs):
			if !errors.Is(err, stream.ErrIteratorExhausted) {
				msgs = append(msgs, fmt.Sprintf("SkipTo(%d) = %d, %v; want exhausted", target, doc, err))
			}
		case err != nil:
			return "", err
		case doc != wantDocs[i] || freq != wantFreqs[i]:
			msgs = append(msgs, fmt.Sprintf("SkipTo(%d) = (%d,%d), want (%d,%d)", target, doc, freq, wantDocs[i], wantFreqs[i]))
		}
	}
	return strings.Join(msgs, "; "), nil
}
