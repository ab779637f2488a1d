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
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erigontech/efpostings/common/dir"
)

// CompressAll compresses parts, up to Config.Workers at a time, while holding the destination
// lock, then writes the properties file. Partitions must be disjoint. If any partition fails no
// partition files are left behind.
func (c *Compressor) CompressAll(ctx context.Context, parts []TermPartition) (*Properties, error) {
	if err := checkDisjoint(parts, c.src.NumTerms()); err != nil {
		c.logger.Error("[ef] refusing to compress", "index", c.name, "err", err)
		return nil, err
	}
	lock, err := c.dirs.Lock()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.dirs.DataDir, err)
	}
	defer lock.Unlock()
	if n, err := c.dirs.RemoveStaleTmp(); err != nil {
		return nil, err
	} else if n > 0 {
		c.logger.Warn("[ef] removed stale spill files", "dir", c.dirs.Tmp, "count", n)
	}

	started := time.Now()
	stats := make([]PartitionStats, len(parts))
	done := make([]bool, len(parts)) // failed partitions clean up after themselves
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			s, err := c.Compress(gctx, part)
			if err != nil {
				return err
			}
			stats[i], done[i] = s, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Join(err, c.removePartitions(parts, done))
	}

	props := &Properties{
		NumDocs:     c.src.NumDocs(),
		NumTerms:    c.src.NumTerms(),
		Log2Quantum: c.cfg.Log2Quantum,
	}
	for _, s := range stats {
		props.NumPostings += s.Postings
		props.Partitions = append(props.Partitions, PartitionProperties{
			Prefix:    s.Partition.Prefix,
			Begin:     s.Partition.Begin,
			End:       s.Partition.End,
			Terms:     s.Terms,
			Postings:  s.Postings,
			DocidBits: s.DocidBits,
			FreqBits:  s.FreqBits,
		})
	}
	if err := writeProperties(propertiesPath(c.dirs.DataDir, c.name), props); err != nil {
		return nil, errors.Join(err, c.removePartitions(parts, done))
	}
	c.logger.Info("[ef] index done", "index", c.name, "partitions", len(parts), "terms", props.NumTerms,
		"postings", props.NumPostings, "took", time.Since(started))
	return props, nil
}

func (c *Compressor) removePartitions(parts []TermPartition, done []bool) error {
	var paths []string
	for i, p := range parts {
		if !done[i] {
			continue
		}
		lex, docids, freqs := p.files(c.dirs.DataDir)
		paths = append(paths, lex, docids, freqs)
	}
	return dir.RemoveFiles(paths...)
}

func checkDisjoint(parts []TermPartition, numTerms int) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: no partitions", ErrInvalidRange)
	}
	sorted := make([]TermPartition, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })
	prefixes := map[string]struct{}{}
	for i, p := range sorted {
		if err := p.Validate(numTerms); err != nil {
			return err
		}
		if i > 0 && p.Begin < sorted[i-1].End {
			return fmt.Errorf("%w: %s overlaps %s", ErrInvalidRange, p, sorted[i-1])
		}
		if _, dup := prefixes[p.Prefix]; dup {
			return fmt.Errorf("%w: prefix %s used twice", ErrInvalidRange, p.Prefix)
		}
		prefixes[p.Prefix] = struct{}{}
	}
	return nil
}
