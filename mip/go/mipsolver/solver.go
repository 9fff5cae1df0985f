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

// Package mipsolver solves mixed-integer linear models by branch and cut.
//
// A solve evaluates the root relaxation and separates cuts for it, then
// alternates between plunges, depth-first dives of the search controller, and
// installing the node with the best lower bound from the queue:
//
//	b := mipmodel.NewBuilder()
//	x := b.NewBoolVar()
//	y := b.NewBoolVar()
//	b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 2), 3)
//	b.Maximize(mipmodel.NewLinearExpr().AddSum(x, y))
//	m, err := b.Model()
//	...
//	s, err := mipsolver.New(m, mipsolver.DefaultOptions())
//	...
//	res := s.Solve()
package mipsolver

import (
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/nodequeue"
	"github.com/branchcut/mipsearch/mip/go/pseudocost"
	"github.com/branchcut/mipsearch/mip/go/search"
	"github.com/branchcut/mipsearch/mip/go/separation"
)

// ErrNoModel is returned by New for a nil model.
var ErrNoModel = errors.New("no model")

// Status is the outcome of a solve.
type Status int8

const (
	// StatusOptimal means the incumbent is optimal within the gap tolerances.
	StatusOptimal Status = iota
	// StatusInfeasible means the model has no integer feasible solution.
	StatusInfeasible
	// StatusUnbounded means the root relaxation is unbounded.
	StatusUnbounded
	// StatusLimitReached means the search stopped before proving optimality,
	// because of a limiter or because relaxation failures left nodes
	// unexplored. The incumbent, if any, and the bound are still valid.
	StatusLimitReached
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	case StatusLimitReached:
		return "LIMIT_REACHED"
	}
	return fmt.Sprintf("Status(%d)", int8(s))
}

// Result is the outcome of Solver.Solve. Objective values are in the sense of
// the model.
type Result struct {
	Status Status
	// Solution is the best solution found, nil if none.
	Solution  []float64
	Objective float64
	BestBound float64
	Gap       float64

	Nodes            int64
	Leaves           int64
	LpIterations     int64
	CutsAdded        int64
	PrunedTreeWeight float64
	// OpenNodes and OpenTreeWeight describe the queue when the search stopped
	// early.
	OpenNodes      int
	OpenTreeWeight float64
	Elapsed        time.Duration
	// RootBasis is the serialized basis of the root relaxation after
	// separation, nil if the root was not solved to optimality. It can be
	// passed back as Options.WarmStartBasis.
	RootBasis []byte
}

// Progress returns the final progress report of the solve.
func (r *Result) Progress() *Progress {
	return &Progress{
		Nodes:        r.Nodes,
		Leaves:       r.Leaves,
		LpIterations: r.LpIterations,
		QueueSize:    r.OpenNodes,
		Objective:    r.Objective,
		BestBound:    r.BestBound,
		Gap:          r.Gap,
		Explored:     r.PrunedTreeWeight,
		Elapsed:      r.Elapsed,
		Final:        true,
	}
}

// Solver runs the branch-and-cut search on a model.
type Solver struct {
	model     *mipmodel.Model
	opts      Options
	warmStart *lprelax.Basis
}

// New returns a Solver for `m`. It fails if the model is invalid or if the warm
// start basis cannot be decoded or does not fit the model.
func New(m *mipmodel.Model, opts Options) (*Solver, error) {
	if m == nil {
		return nil, ErrNoModel
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s := &Solver{model: m, opts: opts.withDefaults()}
	if len(opts.WarmStartBasis) > 0 {
		b, err := lprelax.UnmarshalBasis(opts.WarmStartBasis)
		if err != nil {
			return nil, fmt.Errorf("decoding warm start basis: %w", err)
		}
		if !b.Fits(m) {
			return nil, fmt.Errorf("warm start basis with %d columns and %d rows: %w", len(b.ColStatus), len(b.RowStatus), lprelax.ErrBasisMismatch)
		}
		s.warmStart = b
	}
	return s, nil
}

// run is the state of one solve.
type run struct {
	opts      Options
	model     *mipmodel.Model
	start     time.Time
	limiter   Limiter
	shared    *search.Shared
	search    *search.Search
	sep       *separation.Separation
	relax     *lprelax.Relaxation
	pool      *cutpool.CutPool
	rootBasis []byte

	lowerBound   float64
	limitReached bool
	lastDisplay  int64
}

// Solve runs the search until optimality is proven or the limiter of the options
// stops it.
func (s *Solver) Solve() *Result {
	return s.solve(s.opts.Limiter)
}

// SolveInterruptible is like Solve, but the search also stops once `interrupt` is
// closed.
func (s *Solver) SolveInterruptible(interrupt <-chan struct{}) *Result {
	return s.solve(AnyLimit(s.opts.Limiter, InterruptLimit(interrupt)))
}

func (s *Solver) solve(limiter Limiter) *Result {
	r := &run{
		opts:       s.opts,
		model:      s.model,
		start:      time.Now(),
		limiter:    limiter,
		lowerBound: math.Inf(-1),
	}
	if !r.setup(s.warmStart) {
		return r.result(StatusInfeasible)
	}
	return r.result(r.searchTree())
}

// setup builds the global domain and its propagators, extracts cliques and
// implications and probes. It returns false if the model is proven infeasible.
func (r *run) setup(warmStart *lprelax.Basis) bool {
	m, opts := r.model, r.opts
	v := opts.Validator
	r.pool = cutpool.NewCutPool(opts.CutAgeLimit, v)
	cliques := cutpool.NewCliqueTable(m, v)
	implications := cutpool.NewImplicationGraph(m)
	global := domain.New(m, domain.WithFeasibilityTolerance(opts.FeasibilityTolerance))
	global.AddPropagator(r.pool)
	global.AddPropagator(cliques)
	global.AddPropagator(implications)

	r.relax = lprelax.New(m, r.pool,
		lprelax.WithEngine(opts.Engine),
		lprelax.WithFeasibilityTolerance(opts.FeasibilityTolerance))
	if warmStart != nil {
		if err := r.relax.SetStoredBasis(warmStart); err != nil {
			log.Warningf("ignoring warm start basis: %v", err)
		} else {
			r.relax.RecoverBasis()
		}
	}
	r.shared = search.NewShared(m, global, r.pool, r.relax)
	r.shared.Validator = v
	r.shared.FeasibilityTolerance = opts.FeasibilityTolerance
	r.shared.Pseudocost = pseudocost.New(m,
		pseudocost.WithDecayFloor(opts.PseudocostDecayFloor),
		pseudocost.WithScorer(opts.Scorer))
	r.sep = separation.New(r.pool,
		separation.CliqueSeparator{Table: cliques},
		separation.CoverSeparator{Model: m},
		separation.ImpliedBoundSeparator{Graph: implications, Global: global})

	if global.Infeasible() {
		log.Infof("model bounds are empty")
		return false
	}
	numCliques := cliques.ExtractCliques()
	implications.ExtractVariableBounds(global)
	global.Propagate()
	if !global.Infeasible() {
		implications.Probe(global, opts.ProbingLimit)
	}
	if global.Infeasible() {
		log.Infof("propagation proved the model infeasible")
		return false
	}
	log.V(1).Infof("root setup: %d cliques, %d implications, %d bound changes", numCliques, implications.Len(), len(global.Stack()))
	v.CheckBounds(global.Lower(), global.Upper())
	global.SetDomainChangeStack(nil)
	global.ClearChangedCols()
	r.search = search.New(r.shared, opts.BranchingRule)
	return true
}

// searchTree evaluates the root and runs the plunge and queue loop.
func (r *run) searchTree() Status {
	srch, shared, relax := r.search, r.shared, r.relax
	global := shared.Global
	v := r.opts.Validator

	srch.InstallNode(nodequeue.OpenNode{LowerBound: math.Inf(-1), Estimate: math.Inf(-1)})
	res := srch.EvaluateNode()
	if relax.Status() == lprelax.StatusUnbounded {
		log.Infof("root relaxation is unbounded")
		return StatusUnbounded
	}
	if res == search.NodeOpen && relax.Status() == lprelax.StatusOptimal {
		log.V(1).Infof("root relaxation objective %v, %d fractional columns", relax.Objective(), len(relax.Fractionals()))
		switch status := r.sep.Run(srch.LocalDomain(), relax, r.opts.RootSeparationRounds); status {
		case lprelax.StatusOptimal:
			relax.StoreBasis()
			if b := relax.StoredBasis(); b != nil {
				r.rootBasis = b.Marshal()
			}
			log.V(1).Infof("root bound after %d separation rounds: %v", r.sep.Stats().Rounds, relax.Objective())
		case lprelax.StatusInfeasible:
			log.Infof("root separation proved the relaxation infeasible")
			srch.PruneCurrentNode()
		}
	}

	for srch.HasNode() {
		if r.shouldStop() {
			srch.OpenNodesToQueue()
			srch.FlushStatistics()
			break
		}
		r.setIterationLimit()

		// Plunge.
		plungeStart := shared.NumNodes
		for {
			if !srch.CurrentNodePruned() {
				srch.Dive()
			}
			shared.NumLeaves++
			srch.FlushStatistics()
			r.display()
			if !srch.Backtrack() {
				break
			}
			if srch.CurrentEstimate() >= shared.UpperLimit {
				break
			}
			if shared.NumNodes-plungeStart >= r.opts.PlungeNodeCap {
				log.V(2).Infof("plunge stopped after %d nodes", shared.NumNodes-plungeStart)
				break
			}
			if r.shouldStop() {
				break
			}
		}
		srch.OpenNodesToQueue()
		srch.FlushStatistics()
		r.updateLowerBound()
		if r.limitReached || r.gapClosed() {
			break
		}

		// Global propagation with the cuts, cliques and implications found so
		// far.
		global.Propagate()
		if global.Infeasible() {
			shared.Queue.Clear()
			shared.PrunedTreeWeight = 1
			r.updateLowerBound()
			break
		}
		v.CheckBounds(global.Lower(), global.Upper())
		if len(global.ChangedCols()) > 0 {
			global.SetDomainChangeStack(nil)
			srch.ResetLocalDomain()
			global.ClearChangedCols()
		}

		relax.ClearIterationLimit()
		for !shared.Queue.Empty() {
			if r.shouldStop() {
				break
			}
			n, _ := shared.Queue.PopBestBoundNode()
			srch.InstallNode(n)
			res := srch.EvaluateNode()
			if res == search.NodeOpen && relax.Status() == lprelax.StatusOptimal {
				switch r.sep.Run(srch.LocalDomain(), relax, r.opts.NodeSeparationRounds) {
				case lprelax.StatusOptimal:
					relax.StoreBasis()
				case lprelax.StatusInfeasible:
					srch.PruneCurrentNode()
				}
			}
			if srch.CurrentNodePruned() {
				srch.Backtrack()
				shared.NumLeaves++
				srch.FlushStatistics()
				r.display()
				continue
			}
			break
		}
		r.updateLowerBound()
		if r.limitReached {
			if srch.HasNode() {
				srch.OpenNodesToQueue()
				srch.FlushStatistics()
			}
			break
		}
	}
	r.updateLowerBound()

	switch {
	case r.limitReached:
		return StatusLimitReached
	case shared.Incumbent == nil && math.IsInf(shared.AbandonedBound, 1):
		return StatusInfeasible
	case shared.Incumbent != nil && r.gapClosed():
		return StatusOptimal
	}
	return StatusLimitReached
}

// setIterationLimit caps diving solves at a multiple of the average number of
// iterations per node.
func (r *run) setIterationLimit() {
	nodes := r.shared.NumNodes
	if nodes < 1 {
		nodes = 1
	}
	avg := float64(r.relax.NumIterations()) / float64(nodes)
	limit := int(r.opts.IterationLimitMultiplier * avg)
	if limit < r.opts.MinIterationLimit {
		limit = r.opts.MinIterationLimit
	}
	r.relax.SetIterationLimit(limit)
}

// updateLowerBound recomputes the global lower bound from the queue, the
// abandoned nodes and the incumbent. The bound never decreases.
func (r *run) updateLowerBound() {
	lb := math.Min(r.shared.UpperBound, r.shared.Queue.BestLowerBound())
	lb = math.Min(lb, r.shared.AbandonedBound)
	if r.search.HasNode() {
		lb = math.Min(lb, r.search.CurrentLowerBound())
	}
	if lb < r.lowerBound {
		r.opts.Validator.Assertf(lb >= r.lowerBound-1e-6*math.Max(1, math.Abs(r.lowerBound)),
			"global lower bound decreased from %v to %v", r.lowerBound, lb)
		return
	}
	r.lowerBound = lb
}

// gapClosed reports whether the incumbent is within the gap tolerances of the
// lower bound.
func (r *run) gapClosed() bool {
	ub := r.shared.UpperBound
	if math.IsInf(ub, 1) {
		return false
	}
	if r.lowerBound >= ub {
		return true
	}
	return ub-r.lowerBound <= r.opts.AbsoluteGap || r.shared.Gap(r.lowerBound) <= r.opts.RelativeGap
}

func (r *run) shouldStop() bool {
	if r.limitReached {
		return true
	}
	if r.limiter == nil {
		return false
	}
	if r.limiter.ShouldStop(r.progress(false)) {
		log.Infof("search limit reached")
		r.limitReached = true
	}
	return r.limitReached
}

func (r *run) display() {
	if r.shared.NumLeaves-r.lastDisplay < r.opts.DisplayFrequency {
		return
	}
	r.lastDisplay = r.shared.NumLeaves
	r.opts.Reporter.Report(r.progress(false))
}

func (r *run) progress(final bool) *Progress {
	m, shared := r.model, r.shared
	return &Progress{
		Nodes:        shared.NumNodes,
		Leaves:       shared.NumLeaves,
		LpIterations: r.relax.NumIterations(),
		QueueSize:    shared.Queue.Len(),
		Cuts:         r.pool.Len(),
		Objective:    m.UserObjective(shared.UpperBound),
		BestBound:    m.UserObjective(r.lowerBound),
		Gap:          shared.Gap(r.lowerBound),
		Explored:     shared.PrunedTreeWeight,
		Elapsed:      time.Since(r.start),
		Final:        final,
	}
}

func (r *run) result(status Status) *Result {
	res := &Result{Status: status, Elapsed: time.Since(r.start)}
	if r.shared == nil || r.search == nil {
		// Setup proved infeasibility.
		res.Objective = r.model.UserObjective(math.Inf(1))
		res.BestBound = res.Objective
		res.Gap = math.Inf(1)
		return res
	}
	shared := r.shared
	switch status {
	case StatusInfeasible:
		r.lowerBound = math.Inf(1)
	case StatusUnbounded:
		r.lowerBound = math.Inf(-1)
	}
	p := r.progress(true)
	r.opts.Reporter.Report(p)
	res.Solution = shared.Incumbent
	res.Objective = p.Objective
	res.BestBound = p.BestBound
	res.Gap = p.Gap
	if status == StatusInfeasible {
		res.Gap = math.Inf(1)
	}
	res.Nodes = shared.NumNodes
	res.Leaves = shared.NumLeaves
	res.LpIterations = r.relax.NumIterations()
	res.CutsAdded = r.sep.Stats().CutsAdded
	res.PrunedTreeWeight = shared.PrunedTreeWeight
	res.OpenNodes = shared.Queue.Len()
	res.OpenTreeWeight = shared.Queue.Weight()
	res.RootBasis = r.rootBasis
	log.Infof("solve finished with status %v after %d nodes", status, res.Nodes)
	return res
}
