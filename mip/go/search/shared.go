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

package search

import (
	"math"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/nodequeue"
	"github.com/branchcut/mipsearch/mip/go/pseudocost"
)

// Shared is the state of a solve shared between the search controller and the
// code driving it. Objective values are in minimization form and include the
// model offset.
type Shared struct {
	Model      *mipmodel.Model
	Global     *domain.Domain
	Pool       *cutpool.CutPool
	Relax      *lprelax.Relaxation
	Pseudocost *pseudocost.Estimator
	Queue      *nodequeue.Queue
	Validator  invariant.Validator
	// FeasibilityTolerance is used to accept incumbents and to derive the
	// upper limit from the incumbent objective.
	FeasibilityTolerance float64

	// Incumbent is the best integer feasible solution found, nil if none.
	Incumbent []float64
	// UpperBound is the objective of the incumbent, +Inf if none.
	UpperBound float64
	// UpperLimit is the objective a node must stay below to be explored.
	UpperLimit   float64
	NumSolutions int64

	NumNodes  int64
	NumLeaves int64
	// PrunedTreeWeight is the fraction of the search tree proven not to hold a
	// better solution. A node of depth d weighs 2^-d.
	PrunedTreeWeight float64
	// AbandonedBound is the smallest lower bound of the nodes given up after
	// relaxation failures, +Inf if none.
	AbandonedBound  float64
	AbandonedWeight float64
	NumAbandoned    int64
}

// NewShared returns the shared state of a solve of `m` over the global domain
// `global`. The pseudocost estimator, queue and validator get their defaults;
// callers may replace them before creating a Search.
func NewShared(m *mipmodel.Model, global *domain.Domain, pool *cutpool.CutPool, relax *lprelax.Relaxation) *Shared {
	return &Shared{
		Model:                m,
		Global:               global,
		Pool:                 pool,
		Relax:                relax,
		Pseudocost:           pseudocost.New(m),
		Queue:                nodequeue.New(),
		Validator:            invariant.Disabled(),
		FeasibilityTolerance: 1e-6,
		UpperBound:           math.Inf(1),
		UpperLimit:           math.Inf(1),
		AbandonedBound:       math.Inf(1),
	}
}

// AddIncumbent rounds the integer columns of `x` and accepts the result as the
// new incumbent if it is feasible and improves the upper bound. Accepting a
// solution tightens the objective cutoff of the global domain and prunes the
// queued nodes that can no longer improve. `feasible` reports whether the
// rounded point satisfies the model, whether or not it was accepted.
func (s *Shared) AddIncumbent(x []float64) (accepted, feasible bool) {
	sol := make([]float64, len(x))
	for j, v := range x {
		if s.Model.IsIntegral(j) {
			v = math.Round(v)
		}
		sol[j] = v
	}
	if !s.Model.Feasible(sol, s.FeasibilityTolerance) {
		log.V(1).Infof("rejected candidate solution violating the model after rounding")
		return false, false
	}
	obj := s.Model.Objective(sol)
	if obj >= s.UpperBound {
		return false, true
	}
	s.Incumbent = sol
	s.UpperBound = obj
	s.UpperLimit = obj - s.FeasibilityTolerance*math.Max(1, math.Abs(obj))
	s.NumSolutions++
	s.Validator.SetUpperLimit(s.Model.Objective, s.UpperLimit)
	s.Global.SetObjectiveCutoff(s.UpperLimit)
	s.PrunedTreeWeight += s.Queue.PerformBounding(s.UpperLimit)
	log.V(1).Infof("new incumbent with objective %v", s.Model.UserObjective(obj))
	return true, true
}

// Gap returns the relative gap between `lowerBound` and the upper bound, +Inf
// without incumbent.
func (s *Shared) Gap(lowerBound float64) float64 {
	if math.IsInf(s.UpperBound, 1) {
		return math.Inf(1)
	}
	if lowerBound >= s.UpperBound {
		return 0
	}
	return (s.UpperBound - lowerBound) / math.Max(1, math.Abs(s.UpperBound))
}
