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

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/erigontech/efpostings/common/dir"
)

// Properties describes a compressed index. It is written last, so its presence marks a complete
// index.
type Properties struct {
	NumDocs     uint64                `toml:"num_docs"`
	NumTerms    int                   `toml:"num_terms"`
	NumPostings uint64                `toml:"num_postings"`
	Log2Quantum int                   `toml:"log2_quantum"`
	Partitions  []PartitionProperties `toml:"partition"`
}

type PartitionProperties struct {
	Prefix    string `toml:"prefix"`
	Begin     int    `toml:"begin"`
	End       int    `toml:"end"`
	Terms     int    `toml:"terms"`
	Postings  uint64 `toml:"postings"`
	DocidBits uint64 `toml:"docid_bits"`
	FreqBits  uint64 `toml:"freq_bits"`
}

func (p PartitionProperties) TermPartition() TermPartition {
	return TermPartition{Begin: p.Begin, End: p.End, Prefix: p.Prefix}
}

func propertiesPath(dataDir, name string) string {
	return filepath.Join(dataDir, name+PropertiesExt)
}

func writeProperties(path string, p *Properties) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return err
	}
	return dir.WriteFileAtomic(path, data, 0644)
}

func ReadProperties(path string) (*Properties, error) {
	data, err := afero.ReadFile(dir.CFS, path)
	if err != nil {
		return nil, err
	}
	var p Properties
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}
