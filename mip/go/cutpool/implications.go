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

package cutpool

import (
	"math"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// Implication is the deduction `If => Then`.
type Implication struct {
	If   Literal
	Then domain.Change
}

// ImplicationGraph stores implications from binary literals to bound changes.
type ImplicationGraph struct {
	model     *mipmodel.Model
	byLiteral map[Literal][]domain.Change
	count     int
}

// NewImplicationGraph returns an empty implication graph for `m`.
func NewImplicationGraph(m *mipmodel.Model) *ImplicationGraph {
	return &ImplicationGraph{
		model:     m,
		byLiteral: make(map[Literal][]domain.Change),
	}
}

// AddImplication records `lit => c`. Implications weaker than a stored one for the
// same literal and bound are dropped; stronger ones replace it.
func (g *ImplicationGraph) AddImplication(lit Literal, c domain.Change) bool {
	if !g.model.IsBinary(lit.Col) || lit.Col == c.Col {
		return false
	}
	list := g.byLiteral[lit]
	for k, old := range list {
		if old.Col != c.Col || old.Type != c.Type {
			continue
		}
		if (c.Type == domain.Upper && c.Bound >= old.Bound) || (c.Type == domain.Lower && c.Bound <= old.Bound) {
			return false
		}
		list[k] = c
		return true
	}
	g.byLiteral[lit] = append(list, c)
	g.count++
	return true
}

// Len returns the number of stored implications.
func (g *ImplicationGraph) Len() int {
	return g.count
}

// Implications returns the bound changes implied by `lit`.
func (g *ImplicationGraph) Implications(lit Literal) []domain.Change {
	return g.byLiteral[lit]
}

// All returns every stored implication.
func (g *ImplicationGraph) All() []Implication {
	out := make([]Implication, 0, g.count)
	for j := 0; j < g.model.NumCols(); j++ {
		for _, val := range []bool{false, true} {
			lit := Literal{Col: j, Val: val}
			for _, c := range g.byLiteral[lit] {
				out = append(out, Implication{If: lit, Then: c})
			}
		}
	}
	return out
}

// Propagate implements domain.Propagator: implications of fixed binary columns
// are applied.
func (g *ImplicationGraph) Propagate(d *domain.Domain) {
	if g.count == 0 {
		return
	}
	for j := 0; j < g.model.NumCols(); j++ {
		if !d.IsFixed(j) || !g.model.IsBinary(j) {
			continue
		}
		lit := Literal{Col: j, Val: d.ColLower(j) >= 1}
		for _, c := range g.byLiteral[lit] {
			d.ChangeBound(c, domain.ReasonPropagation)
			if d.Infeasible() {
				return
			}
		}
	}
}

// ExtractVariableBounds records implications from rows of the form
// `a*x + b*y <= rhs` with `y` binary: fixing `y` bounds `x`. It returns the number
// of implications added.
func (g *ImplicationGraph) ExtractVariableBounds(d *domain.Domain) int {
	added := 0
	for _, r := range g.model.Rows {
		if r.Len() != 2 {
			continue
		}
		if !math.IsInf(r.Upper, 1) {
			added += g.extractVariableBound(d, r.SparseRow, 1, r.Upper)
		}
		if !math.IsInf(r.Lower, -1) {
			added += g.extractVariableBound(d, r.SparseRow, -1, -r.Lower)
		}
	}
	return added
}

func (g *ImplicationGraph) extractVariableBound(d *domain.Domain, r mipmodel.SparseRow, sign, rhs float64) int {
	added := 0
	for yk := 0; yk < 2; yk++ {
		xk := 1 - yk
		y, x := r.Inds[yk], r.Inds[xk]
		if !g.model.IsBinary(y) {
			continue
		}
		a := sign * r.Vals[xk]
		b := sign * r.Vals[yk]
		for _, val := range []bool{false, true} {
			// a*x <= rhs - b*val
			bound := rhs
			if val {
				bound -= b
			}
			bound /= a
			var c domain.Change
			if a > 0 {
				if bound >= d.ColUpper(x) {
					continue
				}
				c = domain.Change{Col: x, Type: domain.Upper, Bound: bound}
			} else {
				if bound <= d.ColLower(x) {
					continue
				}
				c = domain.Change{Col: x, Type: domain.Lower, Bound: bound}
			}
			if g.AddImplication(Literal{Col: y, Val: val}, c) {
				added++
			}
		}
	}
	return added
}

// Probe tentatively fixes each unfixed binary column of `d` to 0 and to 1 and
// propagates. Deductions become implications; a value leading to infeasibility
// fixes the column to the other value in `d`. At most `limit` columns are probed.
// It returns the number of columns fixed.
func (g *ImplicationGraph) Probe(d *domain.Domain, limit int) int {
	fixed := 0
	probed := 0
	for j := 0; j < g.model.NumCols() && probed < limit && !d.Infeasible(); j++ {
		if !g.model.IsBinary(j) || d.IsFixed(j) {
			continue
		}
		probed++
		var infeasible [2]bool
		for v := 0; v < 2; v++ {
			pos := d.Len()
			c := domain.Change{Col: j, Type: domain.Upper, Bound: 0}
			if v == 1 {
				c = domain.Change{Col: j, Type: domain.Lower, Bound: 1}
			}
			d.ChangeBound(c, domain.ReasonBranching)
			d.Propagate()
			infeasible[v] = d.Infeasible()
			if !infeasible[v] {
				lit := Literal{Col: j, Val: v == 1}
				for _, e := range d.Stack()[pos+1:] {
					g.AddImplication(lit, e.Change)
				}
			}
			d.Backtrack(pos)
		}
		switch {
		case infeasible[0] && infeasible[1]:
			d.MarkInfeasible()
		case infeasible[0]:
			d.ChangeBound(domain.Change{Col: j, Type: domain.Lower, Bound: 1}, domain.ReasonPropagation)
			d.Propagate()
			fixed++
		case infeasible[1]:
			d.ChangeBound(domain.Change{Col: j, Type: domain.Upper, Bound: 0}, domain.ReasonPropagation)
			d.Propagate()
			fixed++
		}
	}
	if fixed > 0 {
		log.V(1).Infof("probing fixed %d of %d probed columns", fixed, probed)
	}
	return fixed
}
