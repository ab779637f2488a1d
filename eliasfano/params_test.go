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

package eliasfano

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowerBits(t *testing.T) {
	tests := []struct {
		length, ub uint64
		strict     bool
		want       int
	}{
		{0, 100, false, 0},
		{1, 0, false, 0},
		{1, 1, false, 0},
		{1, 2, false, 1},
		{5, 100, false, 4},
		{100, 100, false, 0},
		{200, 100, false, 0},
		{4, 7, true, 0},
		{4, 4, true, 0},
		{1, 1 << 20, true, 19},
		{10, 1<<63 + 10, true, 59},
	}
	for _, tt := range tests {
		got, err := LowerBits(tt.length, tt.ub, tt.strict)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "length=%d ub=%d strict=%t", tt.length, tt.ub, tt.strict)
	}

	_, err := LowerBits(5, 4, true)
	require.ErrorIs(t, err, ErrInvalidBound)
}

func TestPointerSizeAndCount(t *testing.T) {
	// 4 postings under 100 documents: sentinel included, l=4, high part of 100 is 6
	n, err := PointerSize(5, 100, false, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	k, err := NumberOfPointers(5, 100, 1, false, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), k)

	k, err = NumberOfPointers(4, 7, 1, true, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), k)
	k, err = NumberOfPointers(4, 7, 3, true, false)
	require.NoError(t, err)
	assert.Zero(t, k)

	k, err = NumberOfPointers(0, 7, 1, true, false)
	require.NoError(t, err)
	assert.Zero(t, k)

	_, err = NumberOfPointers(4, 7, MaxLog2Quantum+1, true, false)
	require.ErrorIs(t, err, ErrInvalidQuantum)
	_, err = NumberOfPointers(4, 7, -1, true, false)
	require.ErrorIs(t, err, ErrInvalidQuantum)
}

func TestParamsDeterministic(t *testing.T) {
	inputs := []struct {
		length, ub          uint64
		strict, indexZeroes bool
		log2q               int
	}{
		{4, 100, false, true, 1},
		{4, 7, true, false, 1},
		{0, 0, true, false, 8},
		{0, 1000, false, true, 8},
		{1000, 1000, false, true, 0},
		{1, 1, true, false, 8},
	}
	first := make([]Params, len(inputs))
	for i, in := range inputs {
		p, err := NewParams(in.length, in.ub, in.strict, in.indexZeroes, in.log2q)
		require.NoError(t, err)
		first[i] = p
	}
	// same inputs in reverse order, interleaved with unrelated calls
	for i := len(inputs) - 1; i >= 0; i-- {
		in := inputs[i]
		_, _ = NewParams(in.length*3+1, in.ub*5+7, !in.strict, !in.indexZeroes, in.log2q)
		p, err := NewParams(in.length, in.ub, in.strict, in.indexZeroes, in.log2q)
		require.NoError(t, err)
		require.Equal(t, first[i], p)
	}
}

func TestNewParamsCorrections(t *testing.T) {
	p, err := NewParams(4, 100, false, true, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.CorrectedLength)
	assert.Equal(t, uint64(100), p.CorrectedUpperBound)
	assert.Equal(t, 4, p.LowerBits)
	assert.Equal(t, uint64(0xf), p.LowerBitsMask)
	assert.Equal(t, uint64(3*4), p.PointerBits())
	assert.Equal(t, uint64(5*4), p.LowerBitsSize())
	assert.Equal(t, uint64(5+6), p.MaxUpperBits())

	p, err = NewParams(4, 7, true, false, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), p.CorrectedLength)
	assert.Equal(t, uint64(3), p.CorrectedUpperBound)
	assert.Zero(t, p.LowerBits)
	assert.Equal(t, 3, p.PointerSize)

	_, err = NewParams(8, 7, true, false, 1)
	require.ErrorIs(t, err, ErrInvalidBound)
}
