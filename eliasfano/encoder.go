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

// Package eliasfano implements the quasi-succinct encoding of posting lists: Elias-Fano coded
// prefix sums augmented with quantized skip (or forward) pointers, described in
// Sebastiano Vigna. Quasi-succinct indices. In Proceedings of the 6th ACM International Conference
// on Web Search and Data Mining, WSDM'13, pages 83-92. ACM, 2013.
//
// A sequence is stored as three arrays written back to back without headers:
//
//	pointers | lower bits | upper bits
//
// The pointer array always holds exactly Params.NumberOfPointers entries of Params.PointerSize
// bits, the lower-bits array Params.CorrectedLength entries of Params.LowerBits bits, so a decoder
// locates every array from the parameters alone.
package eliasfano

import (
	"errors"
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/erigontech/efpostings/common/bitutil"
)

var (
	ErrNotInitialized     = errors.New("encoder is not initialized")
	ErrZeroValue          = errors.New("zero value in a strict sequence")
	ErrUpperBoundExceeded = errors.New("prefix sum exceeds the upper bound")
	ErrLengthMismatch     = errors.New("number of added elements differs from the declared length")
	ErrAlreadyDumped      = errors.New("sequence already dumped")
)

// progress is the running state of one sequence; Init resets it.
type progress struct {
	prefixSum   uint64 // corrected: minus one per element for strict sequences
	length      uint64 // elements added, sentinel included
	upperLength uint64 // bits in the upper array, i.e. last one position + 1
	dumped      bool
}

// DumpStats is the size breakdown of the last dumped sequence.
type DumpStats struct {
	Pointers uint64
	Lower    uint64
	Upper    uint64
}

func (s DumpStats) Total() uint64 { return s.Pointers + s.Lower + s.Upper }

// Encoder accumulates one sequence at a time and dumps it to a bitutil.Writer. It is reused
// across sequences through Init; Close releases the caches.
//
//	enc.Init(n, u, false, true, 8)
//	for _, x := range gaps {
//		if err := enc.Add(x); err != nil {
//			return err
//		}
//	}
//	bitsWritten, err := enc.Dump(w)
type Encoder struct {
	pointers *bitutil.WordCache
	lower    *bitutil.WordCache
	upper    *bitutil.WordCache

	p           Params
	initialized bool
	progress
	last DumpStats
}

// NewEncoder allocates the three caches out of cacheSize bytes: roughly half for the lower bits,
// half for the upper bits and 8/quantum of it for the pointers.
func NewEncoder(cacheSize datasize.ByteSize, log2Quantum int, tmpDir string) *Encoder {
	size := int(cacheSize.Bytes())
	size &= -size // power of two
	return &Encoder{
		pointers: bitutil.NewWordCache(max(bitutil.MinCacheSize, size>>max(3, log2Quantum-3)), "pointers", tmpDir),
		lower:    bitutil.NewWordCache(max(bitutil.MinCacheSize, size/2), "lower", tmpDir),
		upper:    bitutil.NewWordCache(max(bitutil.MinCacheSize, size/2), "upper", tmpDir),
	}
}

// Init starts a new sequence of length elements whose (corrected) prefix sums never exceed upperBound.
func (e *Encoder) Init(length, upperBound uint64, strict, indexZeroes bool, log2Quantum int) error {
	e.initialized = false
	p, err := NewParams(length, upperBound, strict, indexZeroes, log2Quantum)
	if err != nil {
		return err
	}
	for _, c := range []*bitutil.WordCache{e.pointers, e.lower, e.upper} {
		if err := c.Clear(); err != nil {
			return err
		}
	}
	e.p = p
	e.progress = progress{}
	e.last = DumpStats{}
	e.initialized = true
	return nil
}

func (e *Encoder) Params() Params { return e.p }

// LowerBits returns the number of lower bits per element of the current sequence.
func (e *Encoder) LowerBits() int { return e.p.LowerBits }

// PointerSize returns the width of a pointer of the current sequence.
func (e *Encoder) PointerSize() int { return e.p.PointerSize }

// NumberOfPointers returns the number of pointers the current sequence dumps.
func (e *Encoder) NumberOfPointers() uint64 { return e.p.NumberOfPointers }

// LastDump returns the size breakdown of the most recent Dump.
func (e *Encoder) LastDump() DumpStats { return e.last }

// Add appends the next natural number. In strict mode x must be positive.
func (e *Encoder) Add(x uint64) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.dumped {
		return ErrAlreadyDumped
	}
	if e.length >= e.p.Length {
		return fmt.Errorf("%w: more than %d elements", ErrLengthMismatch, e.p.Length)
	}
	return e.add(x)
}

func (e *Encoder) add(x uint64) error {
	if e.p.Strict {
		if x == 0 {
			return fmt.Errorf("%w: element %d", ErrZeroValue, e.length)
		}
		x--
	}
	if x > e.p.CorrectedUpperBound-e.prefixSum {
		return fmt.Errorf("%w: element %d, prefix sum %d + %d > %d", ErrUpperBoundExceeded,
			e.length, e.prefixSum, x, e.p.CorrectedUpperBound)
	}
	e.prefixSum += x

	l := e.p.LowerBits
	if l != 0 {
		if err := e.lower.Append(e.prefixSum&e.p.LowerBitsMask, l); err != nil {
			return err
		}
	}
	onePosition := e.prefixSum>>l + e.length
	if err := e.upper.AppendUnary(onePosition - e.upperLength); err != nil {
		return err
	}

	quantum := e.p.quantum()
	if e.p.IndexZeroes {
		// a skip pointer for every multiple of the quantum among the zeroes just written:
		// pointer k is the position right after the (k*quantum)-th zero
		zeroesBefore := e.upperLength - e.length
		zeroesAfter := zeroesBefore + (onePosition - e.upperLength)
		for k := zeroesBefore>>e.p.Log2Quantum + 1; k*quantum <= zeroesAfter; k++ {
			if err := e.pointers.Append(e.upperLength+k*quantum-zeroesBefore, e.p.PointerSize); err != nil {
				return err
			}
		}
	} else if (e.length+1)&(quantum-1) == 0 {
		// forward pointer right after the one of every quantum-th element
		if err := e.pointers.Append(onePosition+1, e.p.PointerSize); err != nil {
			return err
		}
	}

	e.upperLength = onePosition + 1
	e.length++
	return nil
}

// Dump writes pointers, lower bits and upper bits, in this order, and returns the bits written.
// Non-strict skip-indexed sequences get a terminating element bringing the prefix sum to the
// upper bound, and a short pointer array is padded with zero pointers.
func (e *Encoder) Dump(w *bitutil.Writer) (uint64, error) {
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	if e.dumped {
		return 0, ErrAlreadyDumped
	}
	if e.length != e.p.Length {
		return 0, fmt.Errorf("%w: added %d, declared %d", ErrLengthMismatch, e.length, e.p.Length)
	}
	e.dumped = true
	if !e.p.Strict && e.p.IndexZeroes {
		if err := e.add(e.p.CorrectedUpperBound - e.prefixSum); err != nil {
			return 0, err
		}
	}
	if e.p.IndexZeroes && e.p.PointerSize != 0 {
		for actual := e.pointers.Len() / uint64(e.p.PointerSize); actual < e.p.NumberOfPointers; actual++ {
			if err := e.pointers.Append(0, e.p.PointerSize); err != nil {
				return 0, err
			}
		}
	}
	if got := e.pointers.Len(); got != e.p.PointerBits() {
		return 0, fmt.Errorf("pointer array of %d bits, expected %d (%s)", got, e.p.PointerBits(), e.p)
	}

	var err error
	if e.last.Pointers, err = w.Append(e.pointers); err != nil {
		return 0, err
	}
	if e.last.Lower, err = w.Append(e.lower); err != nil {
		return 0, err
	}
	if e.last.Upper, err = w.Append(e.upper); err != nil {
		return 0, err
	}
	return e.last.Total(), nil
}

// Close releases the caches and their spill files on every path.
func (e *Encoder) Close() error {
	e.initialized = false
	return errors.Join(e.pointers.Close(), e.lower.Close(), e.upper.Close())
}
