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

// Package bitutil holds the bit-granular primitives of the posting codec: an appendable
// bit cache that spills to disk, a writer that concatenates caches into a bitstream and
// a reader for random access into such a bitstream.
//
// Bits are numbered LSB first inside little-endian 64-bit words: bit p lives in word p/64
// at position p%64.
package bitutil

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/erigontech/efpostings/common/dir"
)

// MinCacheSize is the smallest in-memory buffer, in bytes, a WordCache accepts.
const MinCacheSize = 16

// WordCache accumulates bits in 64-bit words. Full words stay in memory until the buffer
// reaches its configured size, then they are flushed to a temporary file. The bits are
// replayed in append order by Writer.Append.
type WordCache struct {
	name     string
	tmpDir   string
	words    []uint64 // full words not yet spilled
	maxWords int

	cur    uint64 // partially filled word
	filled int    // bits used in cur, always < 64
	length uint64 // total bits appended

	spill      afero.File
	spillW     *bufio.Writer
	spillWords uint64
	scratch    [8]byte
}

// NewWordCache returns a cache keeping up to bufferSize bytes in memory. Spill files are
// created in tmpDir (os.TempDir() when empty). name is only used in file names and errors.
func NewWordCache(bufferSize int, name, tmpDir string) *WordCache {
	if bufferSize < MinCacheSize {
		bufferSize = MinCacheSize
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	maxWords := bufferSize / 8
	return &WordCache{
		name:     name,
		tmpDir:   tmpDir,
		maxWords: maxWords,
		words:    make([]uint64, 0, min(maxWords, 1024)),
	}
}

func (c *WordCache) Name() string { return c.name }

// Len returns the number of bits appended since the last Clear.
func (c *WordCache) Len() uint64 { return c.length }

// Spilled reports whether part of the content lives in the spill file.
func (c *WordCache) Spilled() bool { return c.spillWords > 0 }

// Append appends the width lowest bits of value, width in [0,64].
func (c *WordCache) Append(value uint64, width int) error {
	if width == 0 {
		return nil
	}
	if width < 64 {
		value &= (uint64(1) << width) - 1
	}
	c.length += uint64(width)
	c.cur |= value << c.filled
	if c.filled+width < 64 {
		c.filled += width
		return nil
	}
	used := 64 - c.filled
	if err := c.push(c.cur); err != nil {
		return err
	}
	c.cur = value >> used // zero when used == 64
	c.filled = c.filled + width - 64
	return nil
}

// AppendUnary appends gap zeroes followed by a single one.
func (c *WordCache) AppendUnary(gap uint64) error {
	c.length += gap + 1
	for free := uint64(64 - c.filled); gap >= free; free = 64 {
		gap -= free
		if err := c.push(c.cur); err != nil {
			return err
		}
		c.cur, c.filled = 0, 0
	}
	c.filled += int(gap)
	c.cur |= uint64(1) << c.filled
	c.filled++
	if c.filled == 64 {
		if err := c.push(c.cur); err != nil {
			return err
		}
		c.cur, c.filled = 0, 0
	}
	return nil
}

func (c *WordCache) push(w uint64) error {
	c.words = append(c.words, w)
	if len(c.words) >= c.maxWords {
		return c.flush()
	}
	return nil
}

func (c *WordCache) flush() error {
	if len(c.words) == 0 {
		return nil
	}
	if c.spill == nil {
		f, err := dir.CreateTemp(filepath.Join(c.tmpDir, "ef-"+c.name))
		if err != nil {
			return fmt.Errorf("bit cache %s: create spill file: %w", c.name, err)
		}
		c.spill = f
		c.spillW = bufio.NewWriterSize(f, 64*1024)
	}
	for _, w := range c.words {
		binary.LittleEndian.PutUint64(c.scratch[:], w)
		if _, err := c.spillW.Write(c.scratch[:]); err != nil {
			return fmt.Errorf("bit cache %s: spill: %w", c.name, err)
		}
	}
	c.spillWords += uint64(len(c.words))
	c.words = c.words[:0]
	return nil
}

// forEachWord replays the content: full words first, then the trailing partial word with its width.
func (c *WordCache) forEachWord(f func(word uint64, width int) error) error {
	if c.spillWords > 0 {
		if err := c.spillW.Flush(); err != nil {
			return fmt.Errorf("bit cache %s: flush spill: %w", c.name, err)
		}
		if _, err := c.spill.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("bit cache %s: rewind spill: %w", c.name, err)
		}
		r := bufio.NewReaderSize(c.spill, 64*1024)
		var buf [8]byte
		for i := uint64(0); i < c.spillWords; i++ {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return fmt.Errorf("bit cache %s: read spill: %w", c.name, err)
			}
			if err := f(binary.LittleEndian.Uint64(buf[:]), 64); err != nil {
				return err
			}
		}
		if _, err := c.spill.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("bit cache %s: seek spill: %w", c.name, err)
		}
	}
	for _, w := range c.words {
		if err := f(w, 64); err != nil {
			return err
		}
	}
	if c.filled > 0 {
		return f(c.cur, c.filled)
	}
	return nil
}

// Clear empties the cache, keeping the spill file (truncated) for reuse.
// Must only be called between sequences.
func (c *WordCache) Clear() error {
	c.words = c.words[:0]
	c.cur, c.filled, c.length = 0, 0, 0
	if c.spill == nil {
		return nil
	}
	c.spillW.Reset(c.spill)
	c.spillWords = 0
	if err := c.spill.Truncate(0); err != nil {
		return fmt.Errorf("bit cache %s: truncate spill: %w", c.name, err)
	}
	if _, err := c.spill.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("bit cache %s: rewind spill: %w", c.name, err)
	}
	return nil
}

// Close releases the memory and removes the spill file, if any.
func (c *WordCache) Close() error {
	c.words = nil
	c.cur, c.filled, c.length = 0, 0, 0
	if c.spill == nil {
		return nil
	}
	name := c.spill.Name()
	err := c.spill.Close()
	if rmErr := dir.CFS.Remove(name); err == nil {
		err = rmErr
	}
	c.spill, c.spillW, c.spillWords = nil, nil, 0
	return err
}
