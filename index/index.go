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
// Package index is the source side of the compressor: an inverted index exposing its lexicon in
// term-id order and, per term, the postings (document id, frequency) in increasing document order.
package index

import (
	"errors"
	"fmt"

	"github.com/erigontech/efpostings/stream"
)

var ErrTermOutOfRange = errors.New("term id out of range")

// LexiconEntry describes one term of the source index.
type LexiconEntry struct {
	Term     string
	TermID   int
	DocFreq  uint64 // number of postings
	TermFreq uint64 // sum of the frequencies of the postings
	MaxFreq  uint64 // largest frequency in a single document
}

// Postings streams (docID, frequency) pairs in strictly increasing docID order.
type Postings = stream.Duo[uint64, uint64]

type Index interface {
	NumDocs() uint64
	NumTerms() int
	// Lexicon streams the entries from term id begin onwards.
	Lexicon(begin int) (stream.Uno[LexiconEntry], error)
	Postings(e LexiconEntry) (Postings, error)
}

func checkTermID(id, numTerms int) error {
	if id < 0 || id >= numTerms {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrTermOutOfRange, id, numTerms)
	}
	return nil
}
