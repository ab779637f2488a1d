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

	"github.com/c2h5oh/datasize"

	"github.com/erigontech/efpostings/eliasfano"
)

type Config struct {
	Log2Quantum int               // pointer spacing of both channels
	CacheSize   datasize.ByteSize // in-memory bits per encoder before spilling
	TmpDir      string            // spill directory, the destination's temp dir when empty
	Workers     int               // partitions compressed concurrently
}

func DefaultConfig() Config {
	return Config{
		Log2Quantum: 8,
		CacheSize:   64 * datasize.MB,
		Workers:     1,
	}
}

func (c Config) Validate() error {
	if c.Log2Quantum < 0 || c.Log2Quantum > eliasfano.MaxLog2Quantum {
		return fmt.Errorf("%w: %d", eliasfano.ErrInvalidQuantum, c.Log2Quantum)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}
