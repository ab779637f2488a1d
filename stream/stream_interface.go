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

package stream

import "errors"

// Streams are the iterator contract shared by the source index and the compressed index:
//   - return errors
//   - forward only
//   - no hidden prefetching: one Next() decodes exactly one element
//
//	for s.HasNext() {
//		k, v, err := s.Next()
//		if err != nil {
//			return err
//		}
//	}
//
//	Invariants:
//	 1. HasNext() is idempotent
//	 2. Next() after exhaustion returns ErrIteratorExhausted, never a zero value with nil error
//	 3. Close() releases underlying resources and is safe to call more than once

// ErrIteratorExhausted indicates the iterator has no more elements. It is the end-of-list marker
// returned by implementations of Next().
var ErrIteratorExhausted = errors.New("iterator exhausted")

// Uno - return 1 item. Example:
//
//	for s.HasNext() {
//		v, err := s.Next()
//		if err != nil {
//			return err
//		}
//	}
type Uno[V any] interface {
	Next() (V, error)
	HasNext() bool
	Close()
}

// Duo - return 2 items - for postings: document id and frequency.
//
//	for s.HasNext() {
//		k, v, err := s.Next()
//		if err != nil {
//			return err
//		}
//	}
type Duo[K, V any] interface {
	Next() (K, V, error)
	HasNext() bool
	Close()
}

// ToArrayDuo drains a Duo into two parallel slices and closes it.
func ToArrayDuo[K, V any](s Duo[K, V]) (keys []K, values []V, err error) {
	defer s.Close()
	for s.HasNext() {
		k, v, err := s.Next()
		if err != nil {
			return keys, values, err
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values, nil
}

// ToArray drains an Uno into a slice and closes it.
func ToArray[V any](s Uno[V]) (res []V, err error) {
	defer s.Close()
	for s.HasNext() {
		v, err := s.Next()
		if err != nil {
			return res, err
		}
		res = append(res, v)
	}
	return res, nil
}
