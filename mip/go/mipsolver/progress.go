// Copyright 2010-2024 Google LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mipsolver

import (
	"fmt"
	"math"
	"time"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/types/known/structpb"
)

// Progress is a snapshot of the search. Objective values are in the sense of the
// model: for maximization BestBound is an upper bound on Objective.
type Progress struct {
	Nodes        int64
	Leaves       int64
	LpIterations int64
	QueueSize    int
	Cuts         int
	// Objective is the objective of the incumbent, infinite without incumbent.
	Objective float64
	// BestBound is the proven bound on the optimal objective.
	BestBound float64
	// Gap is the relative gap, +Inf without incumbent.
	Gap float64
	// Explored is the fraction of the search tree that was pruned.
	Explored float64
	Elapsed  time.Duration
	// Final is set on the report at the end of the search.
	Final bool
}

// number returns `v` as a JSON-compatible value, nil if it is not finite.
func number(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

// Struct returns `p` as a protobuf Struct. Infinite values are null.
func (p *Progress) Struct() (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"nodes":         p.Nodes,
		"leaves":        p.Leaves,
		"lp_iterations": p.LpIterations,
		"queue_size":    p.QueueSize,
		"cuts":          p.Cuts,
		"objective":     number(p.Objective),
		"best_bound":    number(p.BestBound),
		"gap":           number(p.Gap),
		"explored":      p.Explored,
		"elapsed_sec":   p.Elapsed.Seconds(),
		"final":         p.Final,
	})
	if err != nil {
		return nil, fmt.Errorf("converting progress: %w", err)
	}
	return s, nil
}

// Reporter receives progress snapshots.
type Reporter interface {
	Report(p *Progress)
}

// LogReporter writes progress lines to the log.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(p *Progress) {
	prefix := ""
	if p.Final {
		prefix = "final: "
	}
	log.Infof("%s%d nodes, %d leaves, %.2f%% explored, %d open, %d cuts, objective %g, bound %g, gap %.2f%%, %v",
		prefix, p.Nodes, p.Leaves, 100*p.Explored, p.QueueSize, p.Cuts, p.Objective, p.BestBound, 100*p.Gap, p.Elapsed.Round(time.Millisecond))
}

// MetricsReporter exports progress as Prometheus gauges.
type MetricsReporter struct {
	nodes     prometheus.Gauge
	leaves    prometheus.Gauge
	queueSize prometheus.Gauge
	objective prometheus.Gauge
	bestBound prometheus.Gauge
	gap       prometheus.Gauge
	explored  prometheus.Gauge
}

// NewMetricsReporter returns a MetricsReporter whose gauges are registered with
// `reg`. It panics if the gauges are already registered.
func NewMetricsReporter(reg prometheus.Registerer) *MetricsReporter {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mipsearch",
			Name:      name,
			Help:      help,
		})
	}
	r := &MetricsReporter{
		nodes:     gauge("nodes", "Number of evaluated nodes"),
		leaves:    gauge("leaves", "Number of search tree leaves"),
		queueSize: gauge("open_nodes", "Number of nodes in the queue"),
		objective: gauge("objective", "Objective of the incumbent"),
		bestBound: gauge("best_bound", "Proven bound on the optimal objective"),
		gap:       gauge("gap_ratio", "Relative gap between incumbent and bound"),
		explored:  gauge("explored_ratio", "Fraction of the search tree pruned"),
	}
	reg.MustRegister(r.nodes, r.leaves, r.queueSize, r.objective, r.bestBound, r.gap, r.explored)
	return r
}

// Report implements Reporter.
func (r *MetricsReporter) Report(p *Progress) {
	r.nodes.Set(float64(p.Nodes))
	r.leaves.Set(float64(p.Leaves))
	r.queueSize.Set(float64(p.QueueSize))
	r.objective.Set(p.Objective)
	r.bestBound.Set(p.BestBound)
	r.gap.Set(p.Gap)
	r.explored.Set(p.Explored)
}

// MultiReporter forwards progress to every reporter.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(p *Progress) {
	for _, r := range m {
		r.Report(p)
	}
}
