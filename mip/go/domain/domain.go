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

// Package domain stores the variable bounds of the tree search.
//
// A Domain holds the current lower and upper bound of every column together with
// an append-only change stack. Every tightening is pushed on the stack with the
// bound it replaced, so that the state at any earlier stack length can be restored
// exactly by truncation (Backtrack). Propagate runs the registered propagators
// until no further tightening is found.
package domain

import (
	"fmt"
	"math"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// BoundType selects the lower or the upper bound of a column.
type BoundType int8

const (
	// Lower is the lower bound of a column.
	Lower BoundType = iota
	// Upper is the upper bound of a column.
	Upper
)

func (t BoundType) String() string {
	if t == Lower {
		return ">="
	}
	return "<="
}

// Reason is the cause of a bound change.
type Reason int8

const (
	// ReasonBranching marks branching decisions and the node changes they replay.
	ReasonBranching Reason = iota
	// ReasonPropagation marks deductions of model rows, cliques and implications.
	ReasonPropagation
	// ReasonCut marks deductions of cutting planes.
	ReasonCut
)

func (r Reason) String() string {
	switch r {
	case ReasonBranching:
		return "branching"
	case ReasonPropagation:
		return "propagation"
	case ReasonCut:
		return "cut"
	}
	return fmt.Sprintf("Reason(%d)", int8(r))
}

// Change is a bound change `x[Col] >= Bound` or `x[Col] <= Bound`.
type Change struct {
	Col   int
	Type  BoundType
	Bound float64
}

func (c Change) String() string {
	return fmt.Sprintf("x%d %v %v", c.Col, c.Type, c.Bound)
}

// Flip returns the complementary branching decision on an integer column.
func (c Change) Flip() Change {
	if c.Type == Upper {
		return Change{Col: c.Col, Type: Lower, Bound: c.Bound + 1}
	}
	return Change{Col: c.Col, Type: Upper, Bound: c.Bound - 1}
}

// Entry is one element of the change stack.
type Entry struct {
	Change
	Prev   float64
	Reason Reason
}

// Propagator deduces bound changes from the current bounds of a Domain.
type Propagator interface {
	Propagate(d *Domain)
}

const (
	defaultFeasTol  = 1e-6
	defaultMaxRound = 100
	// Continuous columns are only tightened by at least this fraction of their
	// range, so that propagation terminates.
	minContinuousTightening = 1e-3
)

// Domain is the bound store of the search.
type Domain struct {
	model       *mipmodel.Model
	lower       []float64
	upper       []float64
	stack       []Entry
	propagators []Propagator
	global      bool

	infeasible    bool
	infeasiblePos int

	changedFlag []bool
	changedCols []int
	numChanges  int64

	objective    *mipmodel.SparseRow
	objCutoff    float64
	feasTol      float64
	maxRounds    int
	rowsDisabled bool
}

// Option configures a Domain.
type Option func(*Domain)

// WithFeasibilityTolerance sets the tolerance used to detect empty ranges and to
// round integer bounds.
func WithFeasibilityTolerance(tol float64) Option {
	return func(d *Domain) { d.feasTol = tol }
}

// WithMaxRounds caps the number of propagation rounds of a single Propagate call.
func WithMaxRounds(n int) Option {
	return func(d *Domain) { d.maxRounds = n }
}

// WithoutRowPropagation disables the built-in propagation of model rows.
func WithoutRowPropagation() Option {
	return func(d *Domain) { d.rowsDisabled = true }
}

// New returns the global domain of `m`, initialized with the model bounds.
func New(m *mipmodel.Model, opts ...Option) *Domain {
	n := m.NumCols()
	d := &Domain{
		model:         m,
		lower:         append([]float64(nil), m.ColLower...),
		upper:         append([]float64(nil), m.ColUpper...),
		global:        true,
		infeasiblePos: -1,
		changedFlag:   make([]bool, n),
		objCutoff:     math.Inf(1),
		feasTol:       defaultFeasTol,
		maxRounds:     defaultMaxRound,
	}
	for _, opt := range opts {
		opt(d)
	}
	for j := 0; j < n; j++ {
		if m.IsIntegral(j) {
			d.lower[j] = math.Ceil(d.lower[j] - d.feasTol)
			d.upper[j] = math.Floor(d.upper[j] + d.feasTol)
			if d.lower[j] > d.upper[j] {
				d.infeasible = true
			}
		}
	}
	if !d.rowsDisabled {
		d.propagators = append(d.propagators, rowPropagator{})
	}
	return d
}

// Clone returns a local copy of the domain with the same bounds, an empty change
// stack and the same propagators.
func (d *Domain) Clone() *Domain {
	c := &Domain{
		model:         d.model,
		lower:         append([]float64(nil), d.lower...),
		upper:         append([]float64(nil), d.upper...),
		propagators:   d.propagators,
		infeasible:    d.infeasible,
		infeasiblePos: -1,
		changedFlag:   make([]bool, len(d.lower)),
		objective:     d.objective,
		objCutoff:     d.objCutoff,
		feasTol:       d.feasTol,
		maxRounds:     d.maxRounds,
	}
	return c
}

// AddPropagator registers `p` to run in Propagate. Clones made afterwards share it.
func (d *Domain) AddPropagator(p Propagator) {
	d.propagators = append(d.propagators, p)
}

// Model returns the model the domain belongs to.
func (d *Domain) Model() *mipmodel.Model {
	return d.model
}

// Global reports whether the domain is the global domain, as opposed to a clone
// owned by the search.
func (d *Domain) Global() bool {
	return d.global
}

// FeasibilityTolerance returns the feasibility tolerance of the domain.
func (d *Domain) FeasibilityTolerance() float64 {
	return d.feasTol
}

// NumCols returns the number of columns.
func (d *Domain) NumCols() int {
	return len(d.lower)
}

// ColLower returns the lower bound of column `j`.
func (d *Domain) ColLower(j int) float64 {
	return d.lower[j]
}

// ColUpper returns the upper bound of column `j`.
func (d *Domain) ColUpper(j int) float64 {
	return d.upper[j]
}

// Lower returns the lower bounds. The slice must not be modified.
func (d *Domain) Lower() []float64 {
	return d.lower
}

// Upper returns the upper bounds. The slice must not be modified.
func (d *Domain) Upper() []float64 {
	return d.upper
}

// IsFixed reports whether the bounds of column `j` coincide.
func (d *Domain) IsFixed(j int) bool {
	return d.lower[j] == d.upper[j]
}

// Infeasible reports whether some column has an empty range or some
// propagator proved that no point satisfies the current bounds.
func (d *Domain) Infeasible() bool {
	return d.infeasible
}

// Len returns the length of the change stack, i.e. the rollback point of a node
// created now.
func (d *Domain) Len() int {
	return len(d.stack)
}

// Stack returns the change stack. The slice must not be modified.
func (d *Domain) Stack() []Entry {
	return d.stack
}

// NumChanges returns the number of bound changes applied over the lifetime of
// the domain.
func (d *Domain) NumChanges() int64 {
	return d.numChanges
}

// MarkInfeasible records that the current bounds admit no feasible point.
func (d *Domain) MarkInfeasible() {
	if d.infeasible {
		return
	}
	d.infeasible = true
	d.infeasiblePos = len(d.stack) - 1
}

func (d *Domain) markChanged(j int) {
	if !d.changedFlag[j] {
		d.changedFlag[j] = true
		d.changedCols = append(d.changedCols, j)
	}
}

// ChangeBound applies `c` if it tightens the current bound. Bounds of integer
// columns are rounded. It returns whether the bound changed.
func (d *Domain) ChangeBound(c Change, reason Reason) bool {
	if d.infeasible {
		return false
	}
	j := c.Col
	b := c.Bound
	integral := d.model.IsIntegral(j)
	var prev float64
	if c.Type == Lower {
		if integral {
			b = math.Ceil(b - d.feasTol)
		}
		if b <= d.lower[j] {
			return false
		}
		prev = d.lower[j]
		d.lower[j] = b
	} else {
		if integral {
			b = math.Floor(b + d.feasTol)
		}
		if b >= d.upper[j] {
			return false
		}
		prev = d.upper[j]
		d.upper[j] = b
	}
	d.stack = append(d.stack, Entry{Change: Change{Col: j, Type: c.Type, Bound: b}, Prev: prev, Reason: reason})
	d.numChanges++
	d.markChanged(j)
	if d.lower[j] > d.upper[j]+d.feasTol {
		d.infeasible = true
		d.infeasiblePos = len(d.stack) - 1
	} else if d.lower[j] > d.upper[j] {
		// Within tolerance: collapse the range instead of reporting infeasibility.
		if c.Type == Lower {
			d.lower[j] = d.upper[j]
			d.stack[len(d.stack)-1].Bound = d.upper[j]
		} else {
			d.upper[j] = d.lower[j]
			d.stack[len(d.stack)-1].Bound = d.lower[j]
		}
	}
	return true
}

// Backtrack undoes all changes at stack positions >= pos, restoring the bounds
// that held when the stack had length `pos`.
func (d *Domain) Backtrack(pos int) {
	if pos < 0 {
		pos = 0
	}
	for k := len(d.stack) - 1; k >= pos; k-- {
		e := d.stack[k]
		if e.Type == Lower {
			d.lower[e.Col] = e.Prev
		} else {
			d.upper[e.Col] = e.Prev
		}
	}
	if pos < len(d.stack) {
		d.stack = d.stack[:pos]
	}
	if d.infeasible && d.infeasiblePos >= pos {
		d.infeasible = false
		d.infeasiblePos = -1
	}
}

// SetDomainChangeStack commits the current bounds, so that they can no longer be
// undone, and replaces the change stack by `changes`, each applied as a branching
// change. Changes that do not tighten the committed bounds are skipped.
func (d *Domain) SetDomainChangeStack(changes []Change) {
	d.stack = d.stack[:0]
	if d.infeasiblePos >= 0 {
		d.infeasiblePos = -1
	}
	for _, c := range changes {
		d.ChangeBound(c, ReasonBranching)
		if d.infeasible {
			break
		}
	}
}

// ReducedStack returns one change per tightened bound of the stack, carrying the
// current value of that bound. Replaying it on the committed bounds reproduces the
// current bounds.
func (d *Domain) ReducedStack() []Change {
	type key struct {
		col int
		t   BoundType
	}
	seen := make(map[key]bool, len(d.stack))
	var out []Change
	for _, e := range d.stack {
		k := key{e.Col, e.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		b := d.lower[e.Col]
		if e.Type == Upper {
			b = d.upper[e.Col]
		}
		out = append(out, Change{Col: e.Col, Type: e.Type, Bound: b})
	}
	return out
}

// ChangedCols returns the columns tightened since the last ClearChangedCols.
func (d *Domain) ChangedCols() []int {
	return d.changedCols
}

// ClearChangedCols resets the set of changed columns.
func (d *Domain) ClearChangedCols() {
	for _, j := range d.changedCols {
		d.changedFlag[j] = false
	}
	d.changedCols = d.changedCols[:0]
}

// SetObjectiveCutoff makes propagation enforce `cost·x <= cutoff`, where the cost
// vector is the model objective without offset.
func (d *Domain) SetObjectiveCutoff(cutoff float64) {
	if d.objective == nil {
		var inds []int
		var vals []float64
		for j, c := range d.model.ColCost {
			if c != 0 {
				inds = append(inds, j)
				vals = append(vals, c)
			}
		}
		d.objective = &mipmodel.SparseRow{Inds: inds, Vals: vals}
	}
	d.objCutoff = cutoff - d.model.Offset
}

// Propagate applies the propagators until no bound changes or the domain becomes
// infeasible.
func (d *Domain) Propagate() {
	for round := 0; round < d.maxRounds && !d.infeasible; round++ {
		before := d.numChanges
		if d.objective != nil && !math.IsInf(d.objCutoff, 1) {
			d.PropagateRow(*d.objective, math.Inf(-1), d.objCutoff, ReasonPropagation)
		}
		for _, p := range d.propagators {
			if d.infeasible {
				break
			}
			p.Propagate(d)
		}
		if d.numChanges == before {
			return
		}
	}
	if !d.infeasible {
		log.V(2).Infof("propagation stopped after %d rounds", d.maxRounds)
	}
}

// Assert checks that every range is non-empty unless the domain is infeasible.
func (d *Domain) Assert() error {
	if d.infeasible {
		return nil
	}
	for j := range d.lower {
		if d.lower[j] > d.upper[j] {
			return fmt.Errorf("column %d has empty range [%v,%v] in a feasible domain", j, d.lower[j], d.upper[j])
		}
	}
	return nil
}
