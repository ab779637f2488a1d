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
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

var ErrWriterClosed = errors.New("bit writer is closed")

// Writer appends bits to an underlying stream at an arbitrary bit cursor. Only Close pads:
// the trailing partial word is written as a full zero-padded word, so a file produced by
// Writer is always a whole number of 64-bit words.
//
// A Writer must not be shared between goroutines.
type Writer struct {
	w       *bufio.Writer
	closer  io.Closer
	cur     uint64
	filled  int
	written uint64
	closed  bool
	buf     [8]byte
}

// NewWriter wraps w. If w is also an io.Closer it is closed by Close.
func NewWriter(w io.Writer) *Writer {
	bw := &Writer{w: bufio.NewWriterSize(w, 256*1024)}
	if c, ok := w.(io.Closer); ok {
		bw.closer = c
	}
	return bw
}

// Bits returns the number of bits written so far, excluding final padding.
func (w *Writer) Bits() uint64 { return w.written }

// Append copies every bit of c, in order, at the current cursor and returns how many bits were written.
func (w *Writer) Append(c *WordCache) (uint64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	before := w.written
	if err := c.forEachWord(w.WriteBits); err != nil {
		return w.written - before, err
	}
	return w.written - before, nil
}

// WriteBits writes the width lowest bits of value, width in [0,64].
func (w *Writer) WriteBits(value uint64, width int) error {
	if w.closed {
		return ErrWriterClosed
	}
	if width == 0 {
		return nil
	}
	if width < 64 {
		value &= (uint64(1) << width) - 1
	}
	w.written += uint64(width)
	w.cur |= value << w.filled
	if w.filled+width < 64 {
		w.filled += width
		return nil
	}
	used := 64 - w.filled
	if err := w.emit(w.cur); err != nil {
		return err
	}
	w.cur = value >> used
	w.filled = w.filled + width - 64
	return nil
}

func (w *Writer) emit(word uint64) error {
	binary.LittleEndian.PutUint64(w.buf[:], word)
	_, err := w.w.Write(w.buf[:])
	return err
}

// Flush pushes buffered full words to the underlying stream; the partial word stays pending.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close pads the trailing partial word with zeroes, flushes and closes the underlying stream.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.filled > 0 {
		err = w.emit(w.cur)
		w.cur, w.filled = 0, 0
	}
	if ferr := w.w.Flush(); err == nil {
		err = ferr
	}
	if s, ok := w.closer.(interface{ Sync() error }); ok && err == nil {
		err = s.Sync()
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
