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

// Package separation generates cutting planes violated by relaxation solutions.
package separation

import (
	"math"

	log "github.com/golang/glog"
	"gonum.org/v1/gonum/floats"

	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
)

// MinEfficacy is the smallest distance between a relaxation solution and a cut
// for the cut to be used.
const MinEfficacy = 1e-4

// Separator finds inequalities violated by `x` that are valid for every integer
// feasible point within the bounds of `d`.
type Separator interface {
	Name() string
	Separate(d *domain.Domain, x []float64) []cutpool.Cut
}

// Efficacy returns the Euclidean distance from `x` to the hyperplane of `c`, zero
// if `x` satisfies the cut.
func Efficacy(c *cutpool.Cut, x []float64) float64 {
	viol := c.Violation(x)
	if viol <= 0 {
		return 0
	}
	norm := floats.Norm(c.Vals, 2)
	if norm == 0 {
		return 0
	}
	return viol / norm
}

// Stats counts the work of a Separation.
type Stats struct {
	Rounds    int64
	CutsFound int64
	CutsAdded int64
}

// Separation runs rounds of separators against a relaxation.
type Separation struct {
	pool       *cutpool.CutPool
	separators []Separator
	stats      Stats
}

// New returns a Separation adding its cuts to `pool`.
func New(pool *cutpool.CutPool, seps ...Separator) *Separation {
	return &Separation{pool: pool, separators: seps}
}

// Separate collects the cuts of all separators with at least MinEfficacy,
// ordered by decreasing efficacy.
func (s *Separation) Separate(d *domain.Domain, x []float64) []cutpool.Cut {
	type scored struct {
		cut cutpool.Cut
		eff float64
	}
	var found []scored
	for _, sep := range s.separators {
		for _, c := range sep.Separate(d, x) {
			c := c
			if c.Origin == "" {
				c.Origin = sep.Name()
			}
			if eff := Efficacy(&c, x); eff >= MinEfficacy {
				found = append(found, scored{c, eff})
			}
		}
	}
	// Stable insertion sort keeps separator order among equal efficacies.
	for i := 1; i < len(found); i++ {
		for k := i; k > 0 && found[k].eff > found[k-1].eff; k-- {
			found[k], found[k-1] = found[k-1], found[k]
		}
	}
	out := make([]cutpool.Cut, len(found))
	for i, f := range found {
		out[i] = f.cut
	}
	s.stats.CutsFound += int64(len(out))
	return out
}

// Run performs up to `rounds` rounds of separating, adding the cuts to the pool,
// propagating `d` and solving `relax` again. It expects `relax` to hold an
// optimal solution over `d` and returns the status of the last solve, or
// StatusInfeasible when propagation proves `d` infeasible. The cut pool is aged
// against the final solution.
func (s *Separation) Run(d *domain.Domain, relax *lprelax.Relaxation, rounds int) lprelax.Status {
	status := relax.Status()
	for round := 0; round < rounds && status == lprelax.StatusOptimal; round++ {
		if len(relax.Fractionals()) == 0 {
			break
		}
		s.stats.Rounds++
		added := 0
		for _, c := range s.Separate(d, relax.Solution()) {
			if _, ok := s.pool.AddCut(c); ok {
				added++
			}
		}
		s.stats.CutsAdded += int64(added)
		if added == 0 {
			break
		}
		log.V(1).Infof("separation round %d added %d cuts, pool size %d", round, added, s.pool.Len())
		d.Propagate()
		if d.Infeasible() {
			return lprelax.StatusInfeasible
		}
		before := relax.Objective()
		status = relax.Solve(d)
		if status == lprelax.StatusOptimal && relax.Objective()-before <= 1e-9*math.Max(1, math.Abs(before)) {
			// No progress on the bound.
			break
		}
	}
	if status == lprelax.StatusOptimal {
		s.pool.Age(relax.Solution())
	}
	return status
}

// Stats returns the counters of the Separation.
func (s *Separation) Stats() Stats {
	return s.stats
}
