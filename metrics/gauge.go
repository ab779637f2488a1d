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


package metrics

import "github.com/prometheus/client_golang/prometheus"

type Gauge interface {
	prometheus.Gauge
	ValueGetter
	SetUint64(v uint64)
}

type gauge struct{ prometheus.Gauge }

func (g *gauge) GetValue() float64      { return sample(g) }
func (g *gauge) GetValueUint64() uint64 { return uint64(sample(g)) }
func (g *gauge) SetUint64(v uint64)     { g.Set(float64(v)) }
