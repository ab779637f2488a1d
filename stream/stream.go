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

type (
	Empty[T any]       struct{}
	EmptyDuo[K, V any] struct{}
)

func (Empty[T]) HasNext() bool                     { return false }
func (Empty[T]) Next() (v T, err error)            { return v, ErrIteratorExhausted }
func (Empty[T]) Close()                            {}
func (EmptyDuo[K, V]) HasNext() bool               { return false }
func (EmptyDuo[K, V]) Next() (k K, v V, err error) { return k, v, ErrIteratorExhausted }
func (EmptyDuo[K, V]) Close()                      {}

type ArrStream[V any] struct {
	arr []V
	i   int
}

func Array[V any](arr []V) *ArrStream[V] { return &ArrStream[V]{arr: arr} }
func (it *ArrStream[V]) HasNext() bool   { return it.i < len(it.arr) }
func (it *ArrStream[V]) Close()          {}
func (it *ArrStream[V]) Next() (v V, err error) {
	if it.i >= len(it.arr) {
		return v, ErrIteratorExhausted
	}
	v = it.arr[it.i]
	it.i++
	return v, nil
}

// ArrDuo streams two parallel slices; the shorter one bounds it.
type ArrDuo[K, V any] struct {
	keys   []K
	values []V
	i      int
}

func PairsArray[K, V any](keys []K, values []V) *ArrDuo[K, V] {
	n := min(len(keys), len(values))
	return &ArrDuo[K, V]{keys: keys[:n], values: values[:n]}
}
func (it *ArrDuo[K, V]) HasNext() bool { return it.i < len(it.keys) }
func (it *ArrDuo[K, V]) Close()        {}
func (it *ArrDuo[K, V]) Next() (k K, v V, err error) {
	if it.i >= len(it.keys) {
		return k, v, ErrIteratorExhausted
	}
	k, v = it.keys[it.i], it.values[it.i]
	it.i++
	return k, v, nil
}
