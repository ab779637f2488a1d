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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/efpostings/stream"
)

const corpus = `The quick brown fox
jumps over the lazy dog

the DOG barks, the fox runs
Straße strasse`

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"the", "dog", "barks", "the", "fox", "runs"}, Tokenize("the DOG barks, the fox runs"))
	assert.Equal(t, []string{"strasse", "strasse"}, Tokenize("Straße strasse"))
	assert.Empty(t, Tokenize(" ,;- "))
}

func TestReadCorpus(t *testing.T) {
	idx, err := ReadCorpus(strings.NewReader(corpus))
	require.NoError(t, err)
	require.Equal(t, uint64(5), idx.NumDocs())

	lex, err := idx.Lexicon(0)
	require.NoError(t, err)
	entries, err := stream.ToArray(lex)
	require.NoError(t, err)
	require.Len(t, entries, idx.NumTerms())
	for i, e := range entries {
		require.Equal(t, i, e.TermID)
		if i > 0 {
			require.Less(t, entries[i-1].Term, e.Term)
		}
	}

	the, ok := idx.Entry("the")
	require.True(t, ok)
	assert.Equal(t, uint64(3), the.DocFreq)
	assert.Equal(t, uint64(4), the.TermFreq)
	assert.Equal(t, uint64(2), the.MaxFreq)

	p, err := idx.Postings(the)
	require.NoError(t, err)
	docs, freqs, err := stream.ToArrayDuo(p)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 3}, docs)
	assert.Equal(t, []uint64{1, 1, 2}, freqs)

	strasse, ok := idx.Entry("strasse")
	require.True(t, ok)
	assert.Equal(t, uint64(1), strasse.DocFreq)
	assert.Equal(t, uint64(2), strasse.TermFreq)

	_, ok = idx.Entry("cat")
	require.False(t, ok)
}

func TestLexiconFrom(t *testing.T) {
	b := NewBuilder()
	for _, doc := range []string{"a b c", "b c d", "d e"} {
		_, err := b.AddDocument(Tokenize(doc))
		require.NoError(t, err)
	}
	idx := b.Build()
	require.Equal(t, 5, idx.NumTerms())

	lex, err := idx.Lexicon(3)
	require.NoError(t, err)
	entries, err := stream.ToArray(lex)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].Term)
	assert.Equal(t, 3, entries[0].TermID)

	lex, err = idx.Lexicon(5)
	require.NoError(t, err)
	require.False(t, lex.HasNext())

	_, err = idx.Lexicon(6)
	require.ErrorIs(t, err, ErrTermOutOfRange)
	_, err = idx.Postings(LexiconEntry{TermID: 9})
	require.ErrorIs(t, err, ErrTermOutOfRange)
}

func TestPostingsSkipTo(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 1000; i++ {
		doc := "filler"
		if i%7 == 0 {
			doc += " seven"
			if i%2 == 0 {
				doc += " seven"
			}
		}
		_, err := b.AddDocument(Tokenize(doc))
		require.NoError(t, err)
	}
	idx := b.Build()
	e, ok := idx.Entry("seven")
	require.True(t, ok)
	require.Equal(t, uint64(143), e.DocFreq)

	p, err := idx.Postings(e)
	require.NoError(t, err)
	it := p.(*PostingsIterator)
	doc, freq, err := it.SkipTo(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), doc)
	assert.Equal(t, uint64(1), freq)
	doc, freq, err = it.SkipTo(106)
	require.NoError(t, err)
	assert.Equal(t, uint64(112), doc)
	assert.Equal(t, uint64(2), freq)
	doc, _, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(119), doc)
	_, _, err = it.SkipTo(995)
	require.ErrorIs(t, err, stream.ErrIteratorExhausted)
}
