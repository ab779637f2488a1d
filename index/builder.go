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
package index

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"
	"golang.org/x/text/cases"
)

type termPostings struct {
	term     string
	docs     *roaring.Bitmap
	freqs    []uint64
	termFreq uint64
	maxFreq  uint64
}

func lessTerm(a, b *termPostings) bool { return a.term < b.term }

// Builder inverts documents into a MemIndex. Documents get consecutive ids in the order they are
// added; term ids follow the lexicographic order of the terms.
type Builder struct {
	terms   *btree.BTreeG[*termPostings]
	numDocs uint64
	counts  map[string]uint64
}

func NewBuilder() *Builder {
	return &Builder{
		terms:  btree.NewG[*termPostings](32, lessTerm),
		counts: map[string]uint64{},
	}
}

func (b *Builder) NumDocs() uint64 { return b.numDocs }

// AddDocument indexes one document and returns its id. Empty documents still take an id.
func (b *Builder) AddDocument(tokens []string) (uint64, error) {
	docID := b.numDocs
	if docID > math.MaxUint32 {
		return 0, fmt.Errorf("too many documents: %d", docID)
	}
	clear(b.counts)
	for _, tok := range tokens {
		b.counts[tok]++
	}
	for tok, n := range b.counts {
		tp, ok := b.terms.Get(&termPostings{term: tok})
		if !ok {
			tp = &termPostings{term: tok, docs: roaring.New()}
			b.terms.ReplaceOrInsert(tp)
		}
		tp.docs.Add(uint32(docID))
		tp.freqs = append(tp.freqs, n)
		tp.termFreq += n
		tp.maxFreq = max(tp.maxFreq, n)
	}
	b.numDocs++
	return docID, nil
}

// Build freezes the collected postings. The builder must not be used afterwards.
func (b *Builder) Build() *MemIndex {
	m := &MemIndex{
		numDocs: b.numDocs,
		entries: make([]LexiconEntry, 0, b.terms.Len()),
		docs:    make([]*roaring.Bitmap, 0, b.terms.Len()),
		freqs:   make([][]uint64, 0, b.terms.Len()),
	}
	b.terms.Ascend(func(tp *termPostings) bool {
		tp.docs.RunOptimize()
		m.entries = append(m.entries, LexiconEntry{
			Term:     tp.term,
			TermID:   len(m.entries),
			DocFreq:  tp.docs.GetCardinality(),
			TermFreq: tp.termFreq,
			MaxFreq:  tp.maxFreq,
		})
		m.docs = append(m.docs, tp.docs)
		m.freqs = append(m.freqs, tp.freqs)
		return true
	})
	b.terms.Clear(false)
	return m
}

// Tokenize splits text on anything that is not a letter or a digit and case-folds the tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	fold := cases.Fold()
	for i, f := range fields {
		fields[i] = fold.String(f)
	}
	return fields
}

// ReadCorpus builds an index from r, one document per line.
func ReadCorpus(r io.Reader) (*MemIndex, error) {
	b := NewBuilder()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if _, err := b.AddDocument(Tokenize(sc.Text())); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return b.Build(), nil
}
