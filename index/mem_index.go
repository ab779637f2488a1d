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
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/erigontech/efpostings/stream"
)

// MemIndex keeps each term's documents in a roaring bitmap and the frequencies in a parallel
// slice ordered like the bitmap.
type MemIndex struct {
	numDocs uint64
	entries []LexiconEntry // sorted by term, TermID == position
	docs    []*roaring.Bitmap
	freqs   [][]uint64
}

var _ Index = (*MemIndex)(nil)

func (m *MemIndex) NumDocs() uint64 { return m.numDocs }
func (m *MemIndex) NumTerms() int   { return len(m.entries) }

func (m *MemIndex) Lexicon(begin int) (stream.Uno[LexiconEntry], error) {
	if begin == len(m.entries) {
		return stream.Empty[LexiconEntry]{}, nil
	}
	if err := checkTermID(begin, len(m.entries)); err != nil {
		return nil, err
	}
	return stream.Array(m.entries[begin:]), nil
}

// Entry looks a term up by its text.
func (m *MemIndex) Entry(term string) (LexiconEntry, bool) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Term >= term })
	if i < len(m.entries) && m.entries[i].Term == term {
		return m.entries[i], true
	}
	return LexiconEntry{}, false
}

func (m *MemIndex) Postings(e LexiconEntry) (Postings, error) {
	if err := checkTermID(e.TermID, len(m.entries)); err != nil {
		return nil, err
	}
	bm := m.docs[e.TermID]
	return &PostingsIterator{bm: bm, it: bm.Iterator(), freqs: m.freqs[e.TermID]}, nil
}

// PostingsIterator walks a roaring bitmap and its frequencies.
type PostingsIterator struct {
	bm    *roaring.Bitmap
	it    roaring.IntPeekable
	freqs []uint64
	i     int
}

func (p *PostingsIterator) HasNext() bool { return p.it.HasNext() }
func (p *PostingsIterator) Close()        {}

func (p *PostingsIterator) Next() (uint64, uint64, error) {
	if !p.it.HasNext() {
		return 0, 0, stream.ErrIteratorExhausted
	}
	doc := p.it.Next()
	if p.i >= len(p.freqs) {
		return 0, 0, fmt.Errorf("document %d has no frequency", doc)
	}
	f := p.freqs[p.i]
	p.i++
	return uint64(doc), f, nil
}

// SkipTo returns the first posting not returned yet with docID >= target.
func (p *PostingsIterator) SkipTo(target uint64) (uint64, uint64, error) {
	if target > uint64(^uint32(0)) {
		return 0, 0, stream.ErrIteratorExhausted
	}
	p.it.AdvanceIfNeeded(uint32(target))
	if !p.it.HasNext() {
		return 0, 0, stream.ErrIteratorExhausted
	}
	p.i = int(p.bm.Rank(p.it.PeekNext())) - 1
	return p.Next()
}
