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
	"sort"

	"github.com/erigontech/efpostings/common/bitutil"
	"github.com/erigontech/efpostings/stream"
)

var ErrCorrupted = errors.New("corrupted quasi-succinct sequence")

// Decoder reads back a sequence dumped by Encoder. It walks forward only.
//
// Two views of an element are exposed: its value, as passed to Encoder.Add, and its sum, the
// prefix sum of all values up to and including it. For gap-encoded document ids the sum is the
// document id itself.
type Decoder struct {
	r *bitutil.Reader
	p Params

	pointersStart uint64
	lowerStart    uint64
	upperStart    uint64
	upperLimit    uint64

	index    uint64 // elements consumed
	upperPos uint64 // relative position after the one of the last consumed element
	sum      uint64 // sum of the last returned element
	skipEnd  bool   // a SkipTo ran off the end
}

var _ stream.Uno[uint64] = (*Decoder)(nil)

// NewDecoder positions a decoder on the sequence starting at bit offset of r.
func NewDecoder(r *bitutil.Reader, offset uint64, p Params) (*Decoder, error) {
	d := &Decoder{r: r, p: p}
	d.pointersStart = offset
	d.lowerStart = d.pointersStart + p.PointerBits()
	d.upperStart = d.lowerStart + p.LowerBitsSize()
	d.upperLimit = d.upperStart + p.MaxUpperBits()
	if d.upperStart > r.Len() {
		return nil, fmt.Errorf("%w: sequence at bit %d needs %d bits before its upper bits, stream has %d (%s)",
			ErrCorrupted, offset, d.upperStart-offset, r.Len(), p)
	}
	d.upperLimit = min(d.upperLimit, r.Len())
	return d, nil
}

func (d *Decoder) Params() Params { return d.p }

// Index returns the number of elements consumed so far.
func (d *Decoder) Index() uint64 { return d.index }

// Sum returns the prefix sum of the last returned element.
func (d *Decoder) Sum() uint64 { return d.sum }

func (d *Decoder) HasNext() bool { return !d.skipEnd && d.index < d.p.Length }

func (d *Decoder) Close() {}

// Next returns the next value, or stream.ErrIteratorExhausted after Length elements. A terminating
// element appended at dump time is never returned.
func (d *Decoder) Next() (uint64, error) {
	if !d.HasNext() {
		return 0, stream.ErrIteratorExhausted
	}
	prev := d.sum
	s, err := d.read()
	if err != nil {
		return 0, err
	}
	d.sum = s
	return s - prev, nil
}

// read decodes element d.index and returns its sum.
func (d *Decoder) read() (uint64, error) {
	one, ok := d.r.NextOne(d.upperStart+d.upperPos, d.upperLimit)
	if !ok {
		return 0, fmt.Errorf("%w: unary code of element %d runs past the upper bits (%s)", ErrCorrupted, d.index, d.p)
	}
	pos := one - d.upperStart
	s := d.sumAt(d.index, pos)
	d.upperPos = pos + 1
	d.index++
	return s, nil
}

// sumAt rebuilds the sum of element i whose one sits at relative upper position pos.
func (d *Decoder) sumAt(i, pos uint64) uint64 {
	l := d.p.LowerBits
	s := (pos - i) << l
	if l != 0 {
		s |= d.r.Bits(d.lowerStart+i*uint64(l), l)
	}
	if d.p.Strict {
		s += i + 1
	}
	return s
}

func (d *Decoder) pointer(k uint64) uint64 {
	return d.r.Bits(d.pointersStart+(k-1)*uint64(d.p.PointerSize), d.p.PointerSize)
}

// SkipTo advances to the first element whose sum is >= target and returns that sum. If the last
// returned element already satisfies the condition it is returned again.
func (d *Decoder) SkipTo(target uint64) (uint64, error) {
	if d.skipEnd {
		return 0, stream.ErrIteratorExhausted
	}
	if d.index > 0 && d.sum >= target {
		return d.sum, nil
	}
	if d.p.IndexZeroes && !d.p.Strict {
		if err := d.skipZeroes(target); err != nil {
			return 0, err
		}
	} else if !d.p.IndexZeroes {
		if err := d.skipForward(target); err != nil {
			return 0, err
		}
	}
	for d.HasNext() {
		s, err := d.read()
		if err != nil {
			return 0, err
		}
		d.sum = s
		if s >= target {
			return s, nil
		}
	}
	d.skipEnd = true
	return 0, stream.ErrIteratorExhausted
}

// skipZeroes jumps with the skip pointers right after the zero preceding the high part of target.
// Every element in between has a smaller high part, hence a smaller sum.
func (d *Decoder) skipZeroes(target uint64) error {
	high := target >> d.p.LowerBits
	k := min(high>>d.p.Log2Quantum, d.p.NumberOfPointers)
	if k == 0 {
		return nil
	}
	zeroes := k << d.p.Log2Quantum
	if zeroes <= d.upperPos-d.index {
		return nil
	}
	p := d.pointer(k)
	if p == 0 {
		return nil
	}
	if p <= d.upperPos || p < zeroes || p > d.p.MaxUpperBits() {
		return fmt.Errorf("%w: skip pointer %d = %d out of range (%s)", ErrCorrupted, k, p, d.p)
	}
	d.upperPos = p
	d.index = p - zeroes
	if d.index > d.p.CorrectedLength {
		return fmt.Errorf("%w: skip pointer %d lands on element %d (%s)", ErrCorrupted, k, d.index, d.p)
	}
	return nil
}

// forwardSum returns the sum of element k*quantum-1 and the upper position after it.
func (d *Decoder) forwardSum(k uint64) (uint64, uint64, error) {
	e := k<<d.p.Log2Quantum - 1
	p := d.pointer(k)
	if p == 0 || p-1 < e || p > d.p.MaxUpperBits() {
		return 0, 0, fmt.Errorf("%w: forward pointer %d = %d out of range (%s)", ErrCorrupted, k, p, d.p)
	}
	return d.sumAt(e, p-1), p, nil
}

// skipForward jumps to the last pointed element ahead of the current one whose sum is below target.
func (d *Decoder) skipForward(target uint64) error {
	first := d.index>>d.p.Log2Quantum + 1 // smallest k with k*quantum-1 >= d.index
	if first > d.p.NumberOfPointers {
		return nil
	}
	n := int(d.p.NumberOfPointers - first + 1)
	var err error
	j := sort.Search(n, func(j int) bool {
		if err != nil {
			return true
		}
		s, _, e := d.forwardSum(first + uint64(j))
		if e != nil {
			err = e
			return true
		}
		return s >= target
	})
	if err != nil {
		return err
	}
	if j == 0 {
		return nil
	}
	k := first + uint64(j) - 1
	s, p, err := d.forwardSum(k)
	if err != nil {
		return err
	}
	d.index = k << d.p.Log2Quantum
	d.upperPos = p
	d.sum = s
	return nil
}

// SeekIndex positions the decoder so that the next call to Next returns element i.
// Forward pointers are used when available.
func (d *Decoder) SeekIndex(i uint64) error {
	if i < d.index {
		return fmt.Errorf("cannot seek backwards from element %d to %d", d.index, i)
	}
	if i > d.p.Length {
		return fmt.Errorf("%w: element %d of %d", stream.ErrIteratorExhausted, i, d.p.Length)
	}
	if !d.p.IndexZeroes {
		if k := min(i>>d.p.Log2Quantum, d.p.NumberOfPointers); k > 0 && k<<d.p.Log2Quantum-1 >= d.index {
			s, p, err := d.forwardSum(k)
			if err != nil {
				return err
			}
			d.index = k << d.p.Log2Quantum
			d.upperPos = p
			d.sum = s
		}
	}
	for d.index < i {
		s, err := d.read()
		if err != nil {
			return err
		}
		d.sum = s
	}
	return nil
}
