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

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Set is a group of metrics registered in their own prometheus registry. Metrics are named
// the VictoriaMetrics way, labels included: `ef_bits_written{channel="docids"}`.
type Set struct {
	mu       sync.Mutex
	reg      *prometheus.Registry
	counters map[string]*counter
	gauges   map[string]*gauge
}

var defaultSet = NewSet()

func NewSet() *Set {
	return &Set{
		reg:      prometheus.NewRegistry(),
		counters: map[string]*counter{},
		gauges:   map[string]*gauge{},
	}
}

// DefaultSet is the set used by the package level helpers.
func DefaultSet() *Set { return defaultSet }

func (s *Set) Registry() *prometheus.Registry { return s.reg }

func (s *Set) GetOrCreateCounter(name string, help ...string) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c, nil
	}
	if _, ok := s.gauges[name]; ok {
		return nil, fmt.Errorf("metric %q is already registered as a gauge", name)
	}
	metric, labels, err := parseMetric(name)
	if err != nil {
		return nil, err
	}
	c := &counter{prometheus.NewCounter(prometheus.CounterOpts{
		Name:        metric,
		Help:        strings.Join(help, " "),
		ConstLabels: labels,
	})}
	if err := s.reg.Register(c.Counter); err != nil {
		return nil, fmt.Errorf("register counter %q: %w", name, err)
	}
	s.counters[name] = c
	return c, nil
}

func (s *Set) GetOrCreateGauge(name string, help ...string) (Gauge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[name]; ok {
		return g, nil
	}
	if _, ok := s.counters[name]; ok {
		return nil, fmt.Errorf("metric %q is already registered as a counter", name)
	}
	metric, labels, err := parseMetric(name)
	if err != nil {
		return nil, err
	}
	g := &gauge{prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        metric,
		Help:        strings.Join(help, " "),
		ConstLabels: labels,
	})}
	if err := s.reg.Register(g.Gauge); err != nil {
		return nil, fmt.Errorf("register gauge %q: %w", name, err)
	}
	s.gauges[name] = g
	return g, nil
}

// Snapshot gathers the registry and returns every sample keyed by its full name.
func (s *Set) Snapshot() (map[string]float64, error) {
	families, err := s.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := formatMetric(mf.GetName(), m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}

func formatMetric(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// parseMetric splits `name{k="v",...}` into the metric name and its labels.
func parseMetric(s string) (string, prometheus.Labels, error) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, "}") {
		return "", nil, fmt.Errorf("missing closing brace in metric %q", s)
	}
	name := s[:open]
	labels := prometheus.Labels{}
	body := s[open+1 : len(s)-1]
	for body != "" {
		eq := strings.IndexByte(body, '=')
		if eq <= 0 || eq+1 >= len(body) || body[eq+1] != '"' {
			return "", nil, fmt.Errorf("malformed label in metric %q", s)
		}
		key := strings.TrimSpace(body[:eq])
		rest := body[eq+2:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated label value in metric %q", s)
		}
		labels[key] = rest[:end]
		body = strings.TrimPrefix(strings.TrimSpace(rest[end+1:]), ",")
	}
	return name, labels, nil
}
