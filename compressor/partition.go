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
	"fmt"
	"path/filepath"
)

const (
	LexiconExt    = ".lexicon"
	DocidsExt     = ".docids"
	FreqsExt      = ".freqs"
	PropertiesExt = ".properties"
)

// TermPartition is the half-open term id range [Begin, End) compressed into the files named
// after Prefix.
type TermPartition struct {
	Begin, End int
	Prefix     string
}

func (p TermPartition) String() string {
	return fmt.Sprintf("%s[%d,%d)", p.Prefix, p.Begin, p.End)
}

func (p TermPartition) Validate(numTerms int) error {
	if p.Begin < 0 || p.Begin >= p.End || p.End > numTerms {
		return fmt.Errorf("%w: %s with %d terms", ErrInvalidRange, p, numTerms)
	}
	if p.Prefix == "" || filepath.Base(p.Prefix) != p.Prefix {
		return fmt.Errorf("%w: bad prefix %q", ErrInvalidRange, p.Prefix)
	}
	return nil
}

func (p TermPartition) files(dir string) (lexicon, docids, freqs string) {
	base := filepath.Join(dir, p.Prefix)
	return base + LexiconExt, base + DocidsExt, base + FreqsExt
}

// Partitions splits [0, numTerms) into at most n contiguous ranges of nearly equal size,
// named <name>-000, <name>-001...
func Partitions(name string, numTerms, n int) []TermPartition {
	if numTerms <= 0 {
		return nil
	}
	n = max(1, min(n, numTerms))
	parts := make([]TermPartition, n)
	for i := range parts {
		parts[i] = TermPartition{
			Begin:  i * numTerms / n,
			End:    (i + 1) * numTerms / n,
			Prefix: fmt.Sprintf("%s-%03d", name, i),
		}
	}
	return parts
}
