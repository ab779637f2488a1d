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
// Package lexicon stores the per-term records of a compressed partition: term statistics and the
// bit offsets of the term's sequences in the doc-id and frequency bitstreams. Records are CBOR
// encoded back to back in term-id order.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/google/btree"
	"github.com/spf13/afero"
	"github.com/ugorji/go/codec"

	"github.com/erigontech/efpostings/common/dir"
	"github.com/erigontech/efpostings/stream"
)

var (
	ErrOutOfOrder = errors.New("lexicon entries out of term id order")
	ErrClosed     = errors.New("lexicon writer is closed")
)

var cbor codec.CborHandle

// Entry is the lexicon record of one term. TermID is local to the partition.
type Entry struct {
	Term        string `codec:"t"`
	TermID      int    `codec:"id"`
	DocFreq     uint64 `codec:"n"`
	TermFreq    uint64 `codec:"tf"`
	MaxFreq     uint64 `codec:"mf"`
	DocidOffset uint64 `codec:"do"`
	FreqOffset  uint64 `codec:"fo"`
}

// Writer appends entries to a new lexicon file. The file must not exist.
type Writer struct {
	path    string
	f       afero.File
	bw      *bufio.Writer
	encoder *codec.Encoder
	count   int
	closed  bool
}

func Create(path string) (*Writer, error) {
	f, err := dir.CreateExclusive(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	return &Writer{path: path, f: f, bw: bw, encoder: codec.NewEncoder(bw, &cbor)}, nil
}

func (w *Writer) Path() string { return w.path }
func (w *Writer) Count() int   { return w.count }

func (w *Writer) Add(e Entry) error {
	if w.closed {
		return ErrClosed
	}
	if e.TermID != w.count {
		return fmt.Errorf("%w: got %d, expected %d", ErrOutOfOrder, e.TermID, w.count)
	}
	if err := w.encoder.Encode(&e); err != nil {
		return fmt.Errorf("lexicon %s: encode term %d: %w", w.path, e.TermID, err)
	}
	w.count++
	return nil
}

// Close flushes and syncs the file. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.bw.Flush()
	if err == nil {
		err = w.f.Sync()
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("lexicon %s: %w", w.path, err)
	}
	return nil
}

func lessEntry(a, b *Entry) bool { return a.Term < b.Term }

// Lexicon is a loaded lexicon file, addressable by term id and by term.
type Lexicon struct {
	entries []Entry
	byTerm  *btree.BTreeG[*Entry]
}

func Open(path string) (*Lexicon, error) {
	f, err := dir.CFS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes entries until the end of r.
func Read(r io.Reader) (*Lexicon, error) {
	decoder := codec.NewDecoder(bufio.NewReaderSize(r, 64*1024), &cbor)
	l := &Lexicon{byTerm: btree.NewG[*Entry](32, lessEntry)}
	for {
		var e Entry
		if err := decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("lexicon: decode entry %d: %w", len(l.entries), err)
		}
		if e.TermID != len(l.entries) {
			return nil, fmt.Errorf("%w: entry %d has term id %d", ErrOutOfOrder, len(l.entries), e.TermID)
		}
		l.entries = append(l.entries, e)
	}
	for i := range l.entries {
		l.byTerm.ReplaceOrInsert(&l.entries[i])
	}
	return l, nil
}

func (l *Lexicon) Len() int { return len(l.entries) }

func (l *Lexicon) ByID(id int) (Entry, bool) {
	if id < 0 || id >= len(l.entries) {
		return Entry{}, false
	}
	return l.entries[id], true
}

func (l *Lexicon) Get(term string) (Entry, bool) {
	e, ok := l.byTerm.Get(&Entry{Term: term})
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Iter streams the entries in term id order.
func (l *Lexicon) Iter() stream.Uno[Entry] { return stream.Array(l.entries) }

// AscendPrefix calls f for every entry whose term starts with prefix, in term order, until f
// returns false.
func (l *Lexicon) AscendPrefix(prefix string, f func(Entry) bool) {
	l.byTerm.AscendGreaterOrEqual(&Entry{Term: prefix}, func(e *Entry) bool {
		if len(e.Term) < len(prefix) || e.Term[:len(prefix)] != prefix {
			return false
		}
		return f(*e)
	})
}
