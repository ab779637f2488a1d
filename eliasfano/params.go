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
	"errors"
	"fmt"
	"math/bits"
)

// MaxLog2Quantum bounds the pointer spacing; 2^32 elements between pointers is already useless.
const MaxLog2Quantum = 32

var (
	ErrInvalidBound   = errors.New("upper bound is smaller than the length of a strict sequence")
	ErrInvalidQuantum = errors.New("log2 quantum out of range")
)

func correctedBound(length, upperBound uint64, strict bool) (uint64, error) {
	if !strict {
		return upperBound, nil
	}
	if upperBound < length {
		return 0, fmt.Errorf("%w: length=%d, upperBound=%d", ErrInvalidBound, length, upperBound)
	}
	return upperBound - length, nil
}

// LowerBits returns the number of low bits stored per element: floor(log2(correctedBound/length)),
// or 0 for empty sequences and bounds smaller than the length.
func LowerBits(length, upperBound uint64, strict bool) (int, error) {
	cub, err := correctedBound(length, upperBound, strict)
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, nil
	}
	q := cub / length
	if q == 0 {
		return 0, nil
	}
	return bits.Len64(q) - 1, nil
}

// PointerSize returns the width of a pointer into the upper-bits array. The largest position a
// pointer can hold is length + (correctedBound >> LowerBits), for both skip and forward pointers.
func PointerSize(length, upperBound uint64, strict, indexZeroes bool) (int, error) {
	l, err := LowerBits(length, upperBound, strict)
	if err != nil {
		return 0, err
	}
	cub, _ := correctedBound(length, upperBound, strict)
	return bits.Len64(length + cub>>l), nil
}

// NumberOfPointers returns how many pointers a complete sequence carries. Skip pointers mark
// every quantum-th zero of the upper-bits array, forward pointers every quantum-th one.
func NumberOfPointers(length, upperBound uint64, log2Quantum int, strict, indexZeroes bool) (uint64, error) {
	if log2Quantum < 0 || log2Quantum > MaxLog2Quantum {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQuantum, log2Quantum)
	}
	l, err := LowerBits(length, upperBound, strict)
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, nil
	}
	if indexZeroes {
		cub, _ := correctedBound(length, upperBound, strict)
		return cub >> l >> log2Quantum, nil
	}
	return length >> log2Quantum, nil
}

// Params is the immutable description of one encoded sequence. Encoder and Decoder derive it
// with NewParams from the same inputs, which is what makes the layout self-describing.
type Params struct {
	Length      uint64 // elements added by the caller
	UpperBound  uint64
	Strict      bool // every value is >= 1 and stored minus one
	IndexZeroes bool // skip pointers over zeroes instead of forward pointers over ones
	Log2Quantum int

	CorrectedLength     uint64 // Length plus the terminating sentinel of non-strict skip-indexed sequences
	CorrectedUpperBound uint64 // UpperBound minus Length for strict sequences
	LowerBits           int
	LowerBitsMask       uint64
	PointerSize         int
	NumberOfPointers    uint64
}

func NewParams(length, upperBound uint64, strict, indexZeroes bool, log2Quantum int) (Params, error) {
	p := Params{
		Length:      length,
		UpperBound:  upperBound,
		Strict:      strict,
		IndexZeroes: indexZeroes,
		Log2Quantum: log2Quantum,
	}
	var err error
	if p.CorrectedUpperBound, err = correctedBound(length, upperBound, strict); err != nil {
		return Params{}, err
	}
	p.CorrectedLength = length
	if indexZeroes && !strict {
		p.CorrectedLength++
	}
	if p.LowerBits, err = LowerBits(p.CorrectedLength, upperBound, strict); err != nil {
		return Params{}, err
	}
	p.LowerBitsMask = (uint64(1) << p.LowerBits) - 1
	if p.PointerSize, err = PointerSize(p.CorrectedLength, upperBound, strict, indexZeroes); err != nil {
		return Params{}, err
	}
	if p.NumberOfPointers, err = NumberOfPointers(p.CorrectedLength, upperBound, log2Quantum, strict, indexZeroes); err != nil {
		return Params{}, err
	}
	return p, nil
}

func (p Params) quantum() uint64 { return uint64(1) << p.Log2Quantum }

// PointerBits is the size of the pointer array, always exactly NumberOfPointers*PointerSize.
func (p Params) PointerBits() uint64 { return p.NumberOfPointers * uint64(p.PointerSize) }

// LowerBitsSize is the size of the lower-bits array.
func (p Params) LowerBitsSize() uint64 { return p.CorrectedLength * uint64(p.LowerBits) }

// MaxUpperBits bounds the size of the upper-bits array: one bit per element plus one zero per
// unit of the high part of the largest prefix sum.
func (p Params) MaxUpperBits() uint64 {
	return p.CorrectedLength + p.CorrectedUpperBound>>p.LowerBits
}

func (p Params) String() string {
	return fmt.Sprintf("n=%d, u=%d, strict=%t, zeroes=%t, l=%d, ptr=%dx%d",
		p.Length, p.UpperBound, p.Strict, p.IndexZeroes, p.LowerBits, p.NumberOfPointers, p.PointerSize)
}
