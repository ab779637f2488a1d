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

package bitutil

import (
	"encoding/binary"
	"math/bits"
)

// Reader gives random access to the bits of a byte slice laid out by Writer.
// Reads past the end of data see zero bits.
type Reader struct {
	data []byte
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the number of addressable bits, padding included.
func (r *Reader) Len() uint64 { return uint64(len(r.data)) * 8 }

func (r *Reader) word(i uint64) uint64 {
	start := i * 8
	if start+8 <= uint64(len(r.data)) {
		return binary.LittleEndian.Uint64(r.data[start:])
	}
	if start >= uint64(len(r.data)) {
		return 0
	}
	var buf [8]byte
	copy(buf[:], r.data[start:])
	return binary.LittleEndian.Uint64(buf[:])
}

// Bits returns width bits starting at bit position pos, width in [0,64].
func (r *Reader) Bits(pos uint64, width int) uint64 {
	if width == 0 {
		return 0
	}
	wi, off := pos>>6, pos&63
	v := r.word(wi) >> off
	if off+uint64(width) > 64 {
		v |= r.word(wi+1) << (64 - off)
	}
	if width < 64 {
		v &= (uint64(1) << width) - 1
	}
	return v
}

// NextOne returns the position of the first set bit in [pos, limit).
func (r *Reader) NextOne(pos, limit uint64) (uint64, bool) {
	if pos >= limit {
		return 0, false
	}
	wi := pos >> 6
	cur := r.word(wi) & (^uint64(0) << (pos & 63))
	for cur == 0 {
		wi++
		if wi<<6 >= limit {
			return 0, false
		}
		cur = r.word(wi)
	}
	p := wi<<6 + uint64(bits.TrailingZeros64(cur))
	if p >= limit {
		return 0, false
	}
	return p, true
}
