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

package compressor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/efpostings/common/datadir"
	"github.com/erigontech/efpostings/common/dir"
	"github.com/erigontech/efpostings/eliasfano"
	"github.com/erigontech/efpostings/index"
	"github.com/erigontech/efpostings/lexicon"
	"github.com/erigontech/efpostings/stream"
)

// sliceIndex serves postings verbatim, including malformed ones.
type sliceIndex struct {
	numDocs uint64
	terms   []sliceTerm
}

type sliceTerm struct {
	term  string
	docs  []uint64
	freqs []uint64
}

func (s *sliceIndex) NumDocs() uint64 { return s.numDocs }
func (s *sliceIndex) NumTerms() int   { return len(s.terms) }

func (s *sliceIndex) Lexicon(begin int) (stream.Uno[index.LexiconEntry], error) {
	var entries []index.LexiconEntry
	for i := begin; i < len(s.terms); i++ {
		t := s.terms[i]
		e := index.LexiconEntry{Term: t.term, TermID: i, DocFreq: uint64(len(t.docs))}
		for _, f := range t.freqs {
			e.TermFreq += f
			e.MaxFreq = max(e.MaxFreq, f)
		}
		entries = append(entries, e)
	}
	return stream.Array(entries), nil
}

func (s *sliceIndex) Postings(e index.LexiconEntry) (index.Postings, error) {
	t := s.terms[e.TermID]
	return stream.PairsArray(t.docs, t.freqs), nil
}

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Log2Quantum = 1
	cfg.CacheSize = 4 * datasize.KB
	return cfg
}

func newTestCompressor(t *testing.T, src index.Index, cfg Config) (*Compressor, datadir.Dirs) {
	t.Helper()
	dirs := datadir.New(t.TempDir())
	c, err := New(src, dirs, "idx", cfg, testLogger())
	require.NoError(t, err)
	return c, dirs
}

func dataFiles(t *testing.T, dirs datadir.Dirs) []string {
	t.Helper()
	files, err := dir.ListFiles(dirs.DataDir, LexiconExt, DocidsExt, FreqsExt, PropertiesExt)
	require.NoError(t, err)
	return files
}

func TestCompressSingleTerm(t *testing.T) {
	src := &sliceIndex{numDocs: 100, terms: []sliceTerm{
		{term: "fox", docs: []uint64{2, 5, 8, 9}, freqs: []uint64{1, 3, 1, 2}},
	}}
	c, dirs := newTestCompressor(t, src, testConfig())

	props, err := c.CompressAll(context.Background(), Partitions("idx", 1, 1))
	require.NoError(t, err)
	require.Len(t, props.Partitions, 1)
	pp := props.Partitions[0]
	assert.Equal(t, uint64(4), pp.Postings)
	assert.Greater(t, pp.DocidBits, uint64(0))
	assert.Greater(t, pp.FreqBits, uint64(0))

	rd, err := Open(dirs.DataDir, "idx")
	require.NoError(t, err)
	defer rd.Close()
	assert.Equal(t, uint64(100), rd.NumDocs())

	it, err := rd.Postings("fox")
	require.NoError(t, err)
	e := it.Entry()
	assert.Zero(t, e.DocidOffset)
	assert.Zero(t, e.FreqOffset)
	assert.Equal(t, uint64(3), e.MaxFreq)
	docs, freqs, err := stream.ToArrayDuo[uint64, uint64](it)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 5, 8, 9}, docs)
	assert.Equal(t, []uint64{1, 3, 1, 2}, freqs)

	it, err = rd.Postings("fox")
	require.NoError(t, err)
	doc, freq, err := it.SkipTo(6)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), doc)
	assert.Equal(t, uint64(1), freq)
	doc, freq, err = it.SkipTo(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), doc, "current posting qualifies")
	assert.Equal(t, uint64(1), freq)
	doc, freq, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), doc)
	assert.Equal(t, uint64(2), freq)
	_, _, err = it.SkipTo(10)
	require.ErrorIs(t, err, stream.ErrIteratorExhausted)

	_, err = rd.Postings("dog")
	require.ErrorIs(t, err, ErrTermNotFound)
}

func TestCompressRejectsBadPostings(t *testing.T) {
	tests := []struct {
		name  string
		docs  []uint64
		freqs []uint64
		want  error
	}{
		{"repeated doc", []uint64{2, 5, 5, 9}, []uint64{1, 3, 1, 2}, ErrNonIncreasingDocs},
		{"decreasing doc", []uint64{2, 5, 4}, []uint64{1, 1, 1}, ErrNonIncreasingDocs},
		{"doc beyond collection", []uint64{2, 100}, []uint64{1, 1}, ErrDocOutOfRange},
		{"zero frequency", []uint64{2, 5}, []uint64{0, 3}, eliasfano.ErrZeroValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceIndex{numDocs: 100, terms: []sliceTerm{
				{term: "a", docs: []uint64{1}, freqs: []uint64{1}},
				{term: "b", docs: tt.docs, freqs: tt.freqs},
			}}
			c, dirs := newTestCompressor(t, src, testConfig())
			_, err := c.Compress(context.Background(), TermPartition{Begin: 0, End: 2, Prefix: "idx-000"})
			require.ErrorIs(t, err, tt.want)
			require.Empty(t, dataFiles(t, dirs), "partial output removed")

			entries, err := os.ReadDir(dirs.Tmp)
			require.NoError(t, err)
			require.Empty(t, entries, "spill files removed")
		})
	}
}

func TestCompressEmptyPostings(t *testing.T) {
	src := &sliceIndex{numDocs: 1000, terms: []sliceTerm{
		{term: "a", docs: []uint64{3, 7}, freqs: []uint64{2, 2}},
		{term: "b"},
		{term: "c", docs: []uint64{999}, freqs: []uint64{5}},
	}}
	c, dirs := newTestCompressor(t, src, testConfig())
	_, err := c.CompressAll(context.Background(), Partitions("idx", 3, 1))
	require.NoError(t, err)

	rd, err := Open(dirs.DataDir, "idx")
	require.NoError(t, err)
	defer rd.Close()
	for _, want := range src.terms {
		it, err := rd.Postings(want.term)
		require.NoError(t, err)
		docs, freqs, err := stream.ToArrayDuo[uint64, uint64](it)
		require.NoError(t, err)
		assert.Equal(t, want.docs, docs, want.term)
		assert.Equal(t, want.freqs, freqs, want.term)
	}
}

func TestPreExistingDestination(t *testing.T) {
	src := &sliceIndex{numDocs: 10, terms: []sliceTerm{{term: "a", docs: []uint64{1}, freqs: []uint64{1}}}}
	for _, existing := range []string{"idx.properties", "idx-000.docids", "idx-003.lexicon"} {
		t.Run(existing, func(t *testing.T) {
			dirs := datadir.New(t.TempDir())
			path := filepath.Join(dirs.DataDir, existing)
			require.NoError(t, os.WriteFile(path, []byte("keep"), 0644))

			_, err := New(src, dirs, "idx", testConfig(), testLogger())
			require.ErrorIs(t, err, ErrIndexExists)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, "keep", string(data))
			require.Len(t, dataFiles(t, dirs), 1)
		})
	}

	// another index in the same directory is fine
	dirs := datadir.New(t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dirs.DataDir, "idx2.properties"), nil, 0644))
	_, err := New(src, dirs, "idx", testConfig(), testLogger())
	require.NoError(t, err)

	// a partition file appearing after construction is not overwritten either
	c, dirs := newTestCompressor(t, src, testConfig())
	path := filepath.Join(dirs.DataDir, "idx-000"+FreqsExt)
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0644))
	_, err = c.Compress(context.Background(), TermPartition{Begin: 0, End: 1, Prefix: "idx-000"})
	require.ErrorIs(t, err, ErrIndexExists)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
	require.Len(t, dataFiles(t, dirs), 1, "files created before the clash are removed")
}

func TestInvalidRange(t *testing.T) {
	src := &sliceIndex{numDocs: 10, terms: []sliceTerm{
		{term: "a", docs: []uint64{1}, freqs: []uint64{1}},
		{term: "b", docs: []uint64{2}, freqs: []uint64{1}},
	}}
	c, dirs := newTestCompressor(t, src, testConfig())
	for _, part := range []TermPartition{
		{Begin: 1, End: 1, Prefix: "p"},
		{Begin: -1, End: 1, Prefix: "p"},
		{Begin: 0, End: 3, Prefix: "p"},
		{Begin: 2, End: 1, Prefix: "p"},
		{Begin: 0, End: 1, Prefix: "../p"},
		{Begin: 0, End: 1},
	} {
		_, err := c.Compress(context.Background(), part)
		require.ErrorIs(t, err, ErrInvalidRange, part.String())
	}
	_, err := c.CompressAll(context.Background(), []TermPartition{
		{Begin: 0, End: 2, Prefix: "idx-000"},
		{Begin: 1, End: 2, Prefix: "idx-001"},
	})
	require.ErrorIs(t, err, ErrInvalidRange, "overlap")
	_, err = c.CompressAll(context.Background(), []TermPartition{
		{Begin: 0, End: 1, Prefix: "idx-000"},
		{Begin: 1, End: 2, Prefix: "idx-000"},
	})
	require.ErrorIs(t, err, ErrInvalidRange, "same prefix")
	_, err = c.CompressAll(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidRange)
	require.Empty(t, dataFiles(t, dirs))
}

func TestPartitions(t *testing.T) {
	parts := Partitions("idx", 10, 3)
	require.Equal(t, []TermPartition{
		{Begin: 0, End: 3, Prefix: "idx-000"},
		{Begin: 3, End: 6, Prefix: "idx-001"},
		{Begin: 6, End: 10, Prefix: "idx-002"},
	}, parts)
	require.Len(t, Partitions("idx", 2, 5), 2)
	require.Len(t, Partitions("idx", 2, 0), 1)
	require.Nil(t, Partitions("idx", 0, 4))
	for _, p := range Partitions("idx", 1000, 7) {
		require.NoError(t, p.Validate(1000))
	}
}

func randomIndex(t *testing.T, seed int64, numDocs int) *index.MemIndex {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	b := index.NewBuilder()
	for d := 0; d < numDocs; d++ {
		n := rnd.Intn(30)
		tokens := make([]string, 0, n)
		for i := 0; i < n; i++ {
			// skewed: low ids are frequent, some terms appear once
			tokens = append(tokens, fmt.Sprintf("t%d", rnd.Intn(1+rnd.Intn(400))))
		}
		_, err := b.AddDocument(tokens)
		require.NoError(t, err)
	}
	return b.Build()
}

func TestCompressAllPartitions(t *testing.T) {
	src := randomIndex(t, 11, 3000)
	cfg := testConfig()
	cfg.Log2Quantum = 3
	cfg.Workers = 4
	cfg.CacheSize = 0 // force spilling
	c, dirs := newTestCompressor(t, src, cfg)

	parts := Partitions("idx", src.NumTerms(), 5)
	props, err := c.CompressAll(context.Background(), parts)
	require.NoError(t, err)
	require.Equal(t, src.NumTerms(), props.NumTerms)
	require.Len(t, props.Partitions, 5)
	require.Zero(t, mxPartitionsActive.GetValueUint64())

	saved, err := ReadProperties(filepath.Join(dirs.DataDir, "idx"+PropertiesExt))
	require.NoError(t, err)
	require.Equal(t, props, saved)

	var postings uint64
	for _, pp := range props.Partitions {
		postings += pp.Postings
		lexPath, docidsPath, freqsPath := pp.TermPartition().files(dirs.DataDir)

		// offsets grow monotonically and the last one plus the last term's size is the stream size
		l, err := lexicon.Open(lexPath)
		require.NoError(t, err)
		require.Equal(t, pp.End-pp.Begin, l.Len())
		entries, err := stream.ToArray(l.Iter())
		require.NoError(t, err)
		for i := 1; i < len(entries); i++ {
			require.LessOrEqual(t, entries[i-1].DocidOffset, entries[i].DocidOffset)
			require.Less(t, entries[i-1].DocidOffset, entries[i].DocidOffset, "doc-id lists always take bits")
			require.LessOrEqual(t, entries[i-1].FreqOffset, entries[i].FreqOffset)
		}
		last := entries[len(entries)-1]
		docParams, err := eliasfano.NewParams(last.DocFreq, props.NumDocs, false, true, props.Log2Quantum)
		require.NoError(t, err)
		require.LessOrEqual(t, last.DocidOffset+docParams.PointerBits()+docParams.LowerBitsSize()+docParams.CorrectedLength, pp.DocidBits)
		require.LessOrEqual(t, pp.DocidBits, last.DocidOffset+docParams.PointerBits()+docParams.LowerBitsSize()+docParams.MaxUpperBits())

		for path, bits := range map[string]uint64{docidsPath: pp.DocidBits, freqsPath: pp.FreqBits} {
			fi, err := os.Stat(path)
			require.NoError(t, err)
			require.Equal(t, int64((bits+63)/64*8), fi.Size(), path)
		}
	}
	require.Equal(t, props.NumPostings, postings)

	rd, err := Open(dirs.DataDir, "idx")
	require.NoError(t, err)
	defer rd.Close()

	lex, err := src.Lexicon(0)
	require.NoError(t, err)
	entries, err := stream.ToArray(lex)
	require.NoError(t, err)
	rnd := rand.New(rand.NewSource(12))
	for _, e := range entries {
		want, err := src.Postings(e)
		require.NoError(t, err)
		wantDocs, wantFreqs, err := stream.ToArrayDuo(want)
		require.NoError(t, err)

		it, err := rd.PostingsByID(e.TermID)
		require.NoError(t, err)
		require.Equal(t, e.Term, it.Entry().Term)
		docs, freqs, err := stream.ToArrayDuo[uint64, uint64](it)
		require.NoError(t, err)
		require.Equal(t, wantDocs, docs, e.Term)
		require.Equal(t, wantFreqs, freqs, e.Term)

		// skips against a linear scan of the source postings
		it, err = rd.PostingsByID(e.TermID)
		require.NoError(t, err)
		for target := uint64(rnd.Intn(50)); ; target += uint64(rnd.Intn(300)) {
			doc, freq, err := it.SkipTo(target)
			i := 0
			for i < len(wantDocs) && wantDocs[i] < target {
				i++
			}
			if i == len(wantDocs) {
				require.ErrorIs(t, err, stream.ErrIteratorExhausted)
				break
			}
			require.NoError(t, err)
			require.Equal(t, wantDocs[i], doc, "%s skip to %d", e.Term, target)
			require.Equal(t, wantFreqs[i], freq, "%s skip to %d", e.Term, target)
		}
	}

	_, err = rd.PostingsByID(src.NumTerms())
	require.ErrorIs(t, err, ErrTermNotFound)
}

func TestCompressAllRemovesEverythingOnFailure(t *testing.T) {
	src := &sliceIndex{numDocs: 50}
	for i := 0; i < 20; i++ {
		src.terms = append(src.terms, sliceTerm{term: fmt.Sprintf("t%02d", i), docs: []uint64{uint64(i), uint64(i + 1)}, freqs: []uint64{1, 2}})
	}
	src.terms[17].docs = []uint64{30, 3}
	cfg := testConfig()
	cfg.Workers = 2
	c, dirs := newTestCompressor(t, src, cfg)

	_, err := c.CompressAll(context.Background(), Partitions("idx", 20, 4))
	require.ErrorIs(t, err, ErrNonIncreasingDocs)
	require.Empty(t, dataFiles(t, dirs))

	_, err = Open(dirs.DataDir, "idx")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompressAllKeepsForeignFiles(t *testing.T) {
	src := randomIndex(t, 6, 100)
	c, dirs := newTestCompressor(t, src, testConfig())
	foreign := filepath.Join(dirs.DataDir, "other-000"+DocidsExt)
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0644))

	parts := Partitions("idx", src.NumTerms(), 2)
	parts[1].Prefix = "other-000"
	_, err := c.CompressAll(context.Background(), parts)
	require.ErrorIs(t, err, ErrIndexExists)
	data, err := os.ReadFile(foreign)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
	require.Equal(t, []string{foreign}, dataFiles(t, dirs))
}

func TestCompressAllLocked(t *testing.T) {
	src := &sliceIndex{numDocs: 10, terms: []sliceTerm{{term: "a", docs: []uint64{1}, freqs: []uint64{1}}}}
	c, dirs := newTestCompressor(t, src, testConfig())
	lock, err := dirs.Lock()
	require.NoError(t, err)
	defer lock.Unlock()

	_, err = c.CompressAll(context.Background(), Partitions("idx", 1, 1))
	require.ErrorIs(t, err, datadir.ErrDataDirLocked)
}

func TestCompressCancelled(t *testing.T) {
	src := randomIndex(t, 5, 200)
	c, dirs := newTestCompressor(t, src, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CompressAll(ctx, Partitions("idx", src.NumTerms(), 2))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, dataFiles(t, dirs))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.Log2Quantum = eliasfano.MaxLog2Quantum + 1
	require.ErrorIs(t, cfg.Validate(), eliasfano.ErrInvalidQuantum)
	cfg = DefaultConfig()
	cfg.Workers = 0
	require.Error(t, cfg.Validate())

	_, err := New(&sliceIndex{}, datadir.New(t.TempDir()), "a/b", DefaultConfig(), testLogger())
	require.Error(t, err)
}
