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

package compressor

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"

	"github.com/erigontech/efpostings/common/bitutil"
	"github.com/erigontech/efpostings/eliasfano"
	"github.com/erigontech/efpostings/lexicon"
	"github.com/erigontech/efpostings/stream"
)

var ErrTermNotFound = errors.New("term not found")

// bitFile is a read-only mapping of a bitstream file. Empty files are not mapped.
type bitFile struct {
	f *os.File
	m mmap.MMap
	r *bitutil.Reader
}

func openBitFile(path string) (*bitFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	bf := &bitFile{f: f}
	if size := stat.Size(); size > 0 {
		if size%8 != 0 {
			f.Close()
			return nil, fmt.Errorf("%w: %s has %d bytes, not a whole number of words", eliasfano.ErrCorrupted, path, size)
		}
		if bf.m, err = mmap.MapRegion(f, int(size), mmap.RDONLY, 0, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
	}
	bf.r = bitutil.NewReader(bf.m)
	return bf, nil
}

func (bf *bitFile) close() error {
	var err error
	if bf.m != nil {
		err = bf.m.Unmap()
		bf.m = nil
	}
	return errors.Join(err, bf.f.Close())
}

type partition struct {
	props  PartitionProperties
	lex    *lexicon.Lexicon
	docids *bitFile
	freqs  *bitFile
}

// Reader gives access to the postings of a compressed index.
type Reader struct {
	props *Properties
	parts []*partition // ordered by Begin
}

// Open loads the index called name from dataDir: properties, lexicons and mapped bitstreams.
func Open(dataDir, name string) (*Reader, error) {
	props, err := ReadProperties(propertiesPath(dataDir, name))
	if err != nil {
		return nil, err
	}
	rd := &Reader{props: props}
	for _, pp := range props.Partitions {
		p, err := openPartition(dataDir, pp)
		if p != nil {
			rd.parts = append(rd.parts, p)
		}
		if err != nil {
			return nil, errors.Join(err, rd.Close())
		}
	}
	sort.Slice(rd.parts, func(i, j int) bool { return rd.parts[i].props.Begin < rd.parts[j].props.Begin })
	return rd, nil
}

// openPartition returns the partially opened partition along with an error so it can be closed.
func openPartition(dataDir string, pp PartitionProperties) (p *partition, err error) {
	lexPath, docidsPath, freqsPath := pp.TermPartition().files(dataDir)
	p = &partition{props: pp}
	if p.lex, err = lexicon.Open(lexPath); err != nil {
		return nil, err
	}
	if p.lex.Len() != pp.Terms {
		return nil, fmt.Errorf("%w: %s holds %d terms, properties say %d", eliasfano.ErrCorrupted, lexPath, p.lex.Len(), pp.Terms)
	}
	if p.docids, err = openBitFile(docidsPath); err != nil {
		return nil, err
	}
	if p.freqs, err = openBitFile(freqsPath); err != nil {
		return p, err
	}
	return p, nil
}

func (rd *Reader) Properties() Properties { return *rd.props }
func (rd *Reader) NumDocs() uint64        { return rd.props.NumDocs }
func (rd *Reader) NumTerms() int          { return rd.props.NumTerms }

func (rd *Reader) Close() error {
	var errs []error
	for _, p := range rd.parts {
		if p.docids != nil {
			errs = append(errs, p.docids.close())
		}
		if p.freqs != nil {
			errs = append(errs, p.freqs.close())
		}
	}
	rd.parts = nil
	return errors.Join(errs...)
}

// Entry returns the lexicon record of a global term id, with the partition-local TermID.
func (rd *Reader) Entry(termID int) (lexicon.Entry, error) {
	_, e, err := rd.byID(termID)
	return e, err
}

func (rd *Reader) byID(termID int) (*partition, lexicon.Entry, error) {
	i := sort.Search(len(rd.parts), func(i int) bool { return rd.parts[i].props.End > termID })
	if termID < 0 || i == len(rd.parts) || termID < rd.parts[i].props.Begin {
		return nil, lexicon.Entry{}, fmt.Errorf("%w: id %d", ErrTermNotFound, termID)
	}
	p := rd.parts[i]
	e, ok := p.lex.ByID(termID - p.props.Begin)
	if !ok {
		return nil, lexicon.Entry{}, fmt.Errorf("%w: id %d", ErrTermNotFound, termID)
	}
	return p, e, nil
}

func (rd *Reader) byTerm(term string) (*partition, lexicon.Entry, error) {
	for _, p := range rd.parts {
		if e, ok := p.lex.Get(term); ok {
			return p, e, nil
		}
	}
	return nil, lexicon.Entry{}, fmt.Errorf("%w: %q", ErrTermNotFound, term)
}

// Postings opens the postings of term.
func (rd *Reader) Postings(term string) (*PostingsIterator, error) {
	p, e, err := rd.byTerm(term)
	if err != nil {
		return nil, err
	}
	return rd.postings(p, e)
}

// PostingsByID opens the postings of a global term id.
func (rd *Reader) PostingsByID(termID int) (*PostingsIterator, error) {
	p, e, err := rd.byID(termID)
	if err != nil {
		return nil, err
	}
	return rd.postings(p, e)
}

func (rd *Reader) postings(p *partition, e lexicon.Entry) (*PostingsIterator, error) {
	q := rd.props.Log2Quantum
	docParams, err := eliasfano.NewParams(e.DocFreq, rd.props.NumDocs, false, true, q)
	if err != nil {
		return nil, err
	}
	freqParams, err := eliasfano.NewParams(e.DocFreq, e.TermFreq, true, false, q)
	if err != nil {
		return nil, err
	}
	it := &PostingsIterator{entry: e}
	if it.docs, err = eliasfano.NewDecoder(p.docids.r, e.DocidOffset, docParams); err != nil {
		return nil, fmt.Errorf("%s term %q: %w", p.props.Prefix, e.Term, err)
	}
	if it.freqs, err = eliasfano.NewDecoder(p.freqs.r, e.FreqOffset, freqParams); err != nil {
		return nil, fmt.Errorf("%s term %q: %w", p.props.Prefix, e.Term, err)
	}
	return it, nil
}

// PostingsIterator yields (docID, frequency) pairs of one term. Frequencies are decoded lazily:
// SkipTo only moves the frequency decoder when a posting is returned.
type PostingsIterator struct {
	entry lexicon.Entry
	docs  *eliasfano.Decoder
	freqs *eliasfano.Decoder
	freq  uint64 // frequency of the last returned posting
}

var _ stream.Duo[uint64, uint64] = (*PostingsIterator)(nil)

func (it *PostingsIterator) Entry() lexicon.Entry { return it.entry }
func (it *PostingsIterator) HasNext() bool        { return it.docs.HasNext() }
func (it *PostingsIterator) Close()               {}

func (it *PostingsIterator) Next() (uint64, uint64, error) {
	if _, err := it.docs.Next(); err != nil {
		return 0, 0, err
	}
	doc := it.docs.Sum()
	freq, err := it.currentFreq()
	return doc, freq, err
}

// SkipTo returns the first posting with docID >= target. The last returned posting is returned
// again if it qualifies.
func (it *PostingsIterator) SkipTo(target uint64) (uint64, uint64, error) {
	prev := it.docs.Index()
	doc, err := it.docs.SkipTo(target)
	if err != nil {
		return 0, 0, err
	}
	if it.docs.Index() == prev && prev > 0 {
		return doc, it.freq, nil
	}
	freq, err := it.currentFreq()
	return doc, freq, err
}

// currentFreq decodes the frequency of the posting the doc-id decoder just read.
func (it *PostingsIterator) currentFreq() (uint64, error) {
	if err := it.freqs.SeekIndex(it.docs.Index() - 1); err != nil {
		return 0, err
	}
	f, err := it.freqs.Next()
	if err != nil {
		return 0, err
	}
	it.freq = f
	return f, nil
}
