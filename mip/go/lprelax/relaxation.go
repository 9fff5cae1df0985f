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

// Package lprelax wraps the continuous relaxation solved at every node.
//
// A Relaxation solves the model rows and the cuts of a pool over the bounds of a
// domain.Domain with a pluggable Engine. It keeps two bases: the one the engine
// starts from on the next solve, and a stored copy the search can go back to.
//
// Use it like this:
//
//	r := lprelax.New(model, pool)
//	r.SetIterationLimit(500)
//	if r.Solve(dom) == lprelax.StatusOptimal {
//	    r.StoreBasis()
//	}
package lprelax

import (
	"fmt"
	"math"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// Status is the outcome of a relaxation solve.
type Status int8

const (
	// StatusNotSet means that no solve happened since the last change.
	StatusNotSet Status = iota
	// StatusOptimal means that the relaxation was solved to optimality.
	StatusOptimal
	// StatusInfeasible means that the relaxation has no feasible point.
	StatusInfeasible
	// StatusUnbounded means that the relaxation objective is unbounded below.
	StatusUnbounded
	// StatusIterationLimit means that the iteration limit stopped the solve.
	StatusIterationLimit
	// StatusError means that the engine failed numerically.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNotSet:
		return "NOT_SET"
	case StatusOptimal:
		return "OPTIMAL"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	case StatusIterationLimit:
		return "ITERATION_LIMIT"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("Status(%d)", int8(s))
}

// Problem is one relaxation handed to an Engine.
type Problem struct {
	Model        *mipmodel.Model
	Lower, Upper []float64
	Cuts         []*cutpool.Cut
	// Basis is the warm start hint, nil for a cold solve.
	Basis *Basis
	// IterationLimit caps the work of the solve. Zero means no limit.
	IterationLimit int
	// FeasibilityTolerance is the primal tolerance. Zero selects 1e-6.
	FeasibilityTolerance float64
}

func (p *Problem) feasTol() float64 {
	if p.FeasibilityTolerance > 0 {
		return p.FeasibilityTolerance
	}
	return 1e-6
}

// Result is the outcome of Engine.Solve. Objective, X and Basis are only set
// when Status is StatusOptimal.
type Result struct {
	Status     Status
	Objective  float64
	X          []float64
	Basis      *Basis
	Iterations int
}

// Engine solves continuous relaxations.
type Engine interface {
	Solve(p *Problem) Result
}

// Fractional is an integer column with a fractional relaxation value.
type Fractional struct {
	Col   int
	Value float64
}

// Relaxation solves the relaxation of the nodes of the search.
type Relaxation struct {
	model   *mipmodel.Model
	pool    *cutpool.CutPool
	engine  Engine
	feasTol float64

	iterationLimit int
	hint           *Basis
	stored         *Basis

	last          Result
	numSolves     int64
	numIterations int64
	numColdRetry  int64
}

// Option configures a Relaxation.
type Option func(*Relaxation)

// WithEngine selects the engine. The default is SimplexEngine{}.
func WithEngine(e Engine) Option {
	return func(r *Relaxation) { r.engine = e }
}

// WithFeasibilityTolerance sets the primal feasibility and integrality
// tolerance.
func WithFeasibilityTolerance(tol float64) Option {
	return func(r *Relaxation) { r.feasTol = tol }
}

// New returns a Relaxation of `m` that includes the cuts of `pool`, which may be
// nil.
func New(m *mipmodel.Model, pool *cutpool.CutPool, opts ...Option) *Relaxation {
	r := &Relaxation{
		model:   m,
		pool:    pool,
		engine:  SimplexEngine{},
		feasTol: 1e-6,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Solve solves the relaxation over the bounds of `d` and returns its status. A
// warm-started solve ending in StatusError is retried once from scratch.
func (r *Relaxation) Solve(d *domain.Domain) Status {
	r.numSolves++
	if d.Infeasible() {
		r.last = Result{Status: StatusInfeasible}
		return r.last.Status
	}
	p := &Problem{
		Model:                r.model,
		Lower:                d.Lower(),
		Upper:                d.Upper(),
		Basis:                r.hint,
		IterationLimit:       r.iterationLimit,
		FeasibilityTolerance: r.feasTol,
	}
	if r.pool != nil {
		p.Cuts = r.pool.Cuts()
	}
	res := r.engine.Solve(p)
	r.numIterations += int64(res.Iterations)
	if res.Status == StatusError && p.Basis != nil {
		log.Warningf("warm-started relaxation failed, retrying from scratch")
		r.numColdRetry++
		p.Basis = nil
		res = r.engine.Solve(p)
		r.numIterations += int64(res.Iterations)
	}
	switch res.Status {
	case StatusOptimal:
		if res.Basis != nil {
			r.hint = res.Basis
		}
	case StatusError:
		r.hint = nil
	}
	r.last = res
	return res.Status
}

// SetIterationLimit caps the iterations of the following solves.
func (r *Relaxation) SetIterationLimit(n int) {
	if n < 0 {
		n = 0
	}
	r.iterationLimit = n
}

// ClearIterationLimit removes the iteration cap.
func (r *Relaxation) ClearIterationLimit() {
	r.iterationLimit = 0
}

// IterationLimit returns the current cap, zero if none.
func (r *Relaxation) IterationLimit() int {
	return r.iterationLimit
}

// StoreBasis saves the basis of the last optimal solve.
func (r *Relaxation) StoreBasis() {
	r.stored = r.hint
}

// StoredBasis returns the saved basis, nil if none.
func (r *Relaxation) StoredBasis() *Basis {
	return r.stored
}

// SetStoredBasis replaces the saved basis. It fails with ErrBasisMismatch if `b`
// does not have the dimensions of the model.
func (r *Relaxation) SetStoredBasis(b *Basis) error {
	if b != nil && !b.Fits(r.model) {
		return fmt.Errorf("basis with %d columns and %d rows for a model with %d columns and %d rows: %w",
			len(b.ColStatus), len(b.RowStatus), r.model.NumCols(), r.model.NumRows(), ErrBasisMismatch)
	}
	r.stored = b
	return nil
}

// RecoverBasis makes the next solve start from the saved basis.
func (r *Relaxation) RecoverBasis() {
	r.hint = r.stored
}

// InvalidateBasis makes the next solve start from scratch.
func (r *Relaxation) InvalidateBasis() {
	r.hint = nil
}

// Basis returns the basis the next solve starts from, nil if none.
func (r *Relaxation) Basis() *Basis {
	return r.hint
}

// Status returns the status of the last solve.
func (r *Relaxation) Status() Status {
	return r.last.Status
}

// Objective returns the objective of the last solve, in minimization form. It
// is +Inf unless the last solve was optimal.
func (r *Relaxation) Objective() float64 {
	if r.last.Status != StatusOptimal {
		return math.Inf(1)
	}
	return r.last.Objective
}

// Solution returns the primal values of the last optimal solve.
func (r *Relaxation) Solution() []float64 {
	if r.last.Status != StatusOptimal {
		return nil
	}
	return r.last.X
}

// Fractionals returns the integer columns whose value in the last optimal solve
// is not integral within the feasibility tolerance.
func (r *Relaxation) Fractionals() []Fractional {
	var out []Fractional
	for j, v := range r.Solution() {
		if !r.model.IsIntegral(j) {
			continue
		}
		if math.Abs(v-math.Round(v)) > r.feasTol {
			out = append(out, Fractional{Col: j, Value: v})
		}
	}
	return out
}

// LastIterations returns the iterations of the last solve.
func (r *Relaxation) LastIterations() int {
	return r.last.Iterations
}

// NumIterations returns the iterations of all solves.
func (r *Relaxation) NumIterations() int64 {
	return r.numIterations
}

// NumSolves returns the number of calls to Solve.
func (r *Relaxation) NumSolves() int64 {
	return r.numSolves
}

// NumColdRetries returns the number of failed warm solves retried from scratch.
func (r *Relaxation) NumColdRetries() int64 {
	return r.numColdRetry
}
