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

package separation

import (
	"math"
	"sort"

	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

const violationTol = 1e-6

// CliqueSeparator separates the cliques of a clique table.
type CliqueSeparator struct {
	Table *cutpool.CliqueTable
}

// Name implements Separator.
func (CliqueSeparator) Name() string { return "clique" }

// Separate implements Separator.
func (s CliqueSeparator) Separate(_ *domain.Domain, x []float64) []cutpool.Cut {
	var cuts []cutpool.Cut
	for _, c := range s.Table.Cliques() {
		var sum float64
		for _, l := range c {
			sum += l.Value(x[l.Col])
		}
		if sum <= 1+violationTol {
			continue
		}
		row, rhs := cutpool.CliqueCut(c)
		cuts = append(cuts, cutpool.Cut{SparseRow: row, RHS: rhs, Global: true})
	}
	return cuts
}

// CoverSeparator separates minimal cover inequalities of the model rows whose
// columns are all binary.
type CoverSeparator struct {
	Model *mipmodel.Model
}

// Name implements Separator.
func (CoverSeparator) Name() string { return "cover" }

// Separate implements Separator.
func (s CoverSeparator) Separate(_ *domain.Domain, x []float64) []cutpool.Cut {
	var cuts []cutpool.Cut
	for _, r := range s.Model.Rows {
		if !math.IsInf(r.Upper, 1) {
			if c, ok := s.cover(r.SparseRow, 1, r.Upper, x); ok {
				cuts = append(cuts, c)
			}
		}
		if !math.IsInf(r.Lower, -1) {
			if c, ok := s.cover(r.SparseRow, -1, -r.Lower, x); ok {
				cuts = append(cuts, c)
			}
		}
	}
	return cuts
}

// cover handles `sign*r·x <= rhs`. Written over literals with positive weights,
// the row is a knapsack; a cover C of items whose weights exceed the capacity
// gives `sum_{k in C} lit_k <= |C| - 1`. Items are added greedily by increasing
// `(1 - lit*_k) / a_k`.
func (s CoverSeparator) cover(r mipmodel.SparseRow, sign, rhs float64, x []float64) (cutpool.Cut, bool) {
	type item struct {
		lit    cutpool.Literal
		weight float64
		value  float64
	}
	items := make([]item, 0, r.Len())
	for k, j := range r.Inds {
		if !s.Model.IsBinary(j) {
			return cutpool.Cut{}, false
		}
		a := sign * r.Vals[k]
		lit := cutpool.Literal{Col: j, Val: a > 0}
		if a < 0 {
			rhs -= a
			a = -a
		}
		items = append(items, item{lit: lit, weight: a, value: lit.Value(x[j])})
	}
	if len(items) < 2 || rhs < 0 {
		return cutpool.Cut{}, false
	}
	sort.SliceStable(items, func(a, b int) bool {
		return (1-items[a].value)/items[a].weight < (1-items[b].value)/items[b].weight
	})
	var weight, value float64
	var lits []cutpool.Literal
	for _, it := range items {
		lits = append(lits, it.lit)
		weight += it.weight
		value += it.value
		if weight > rhs+violationTol {
			break
		}
	}
	if weight <= rhs+violationTol {
		return cutpool.Cut{}, false
	}
	if value <= float64(len(lits)-1)+violationTol {
		return cutpool.Cut{}, false
	}
	row := mipmodel.SparseRow{Inds: make([]int, len(lits)), Vals: make([]float64, len(lits))}
	bound := float64(len(lits) - 1)
	for k, l := range lits {
		row.Inds[k] = l.Col
		if l.Val {
			row.Vals[k] = 1
		} else {
			row.Vals[k] = -1
			bound--
		}
	}
	return cutpool.Cut{SparseRow: row, RHS: bound, Global: true}, true
}

// ImpliedBoundSeparator separates the implications `lit => x <= b` (or
// `x >= b`) of an implication graph as the linear inequalities linking `x` and the
// literal over the range of `x`. Cuts over global bounds are global; cuts that
// need a local bound are local to the current node.
type ImpliedBoundSeparator struct {
	Graph  *cutpool.ImplicationGraph
	Global *domain.Domain
}

// Name implements Separator.
func (ImpliedBoundSeparator) Name() string { return "implied bound" }

// Separate implements Separator.
func (s ImpliedBoundSeparator) Separate(d *domain.Domain, x []float64) []cutpool.Cut {
	var cuts []cutpool.Cut
	for _, imp := range s.Graph.All() {
		c, ok := s.cut(d, imp)
		if ok && c.Violation(x) > violationTol {
			cuts = append(cuts, c)
		}
	}
	return cuts
}

func (s ImpliedBoundSeparator) cut(d *domain.Domain, imp cutpool.Implication) (cutpool.Cut, bool) {
	j, y := imp.Then.Col, imp.If.Col
	global := true
	// The bound on the side opposite to the implication.
	var other float64
	if imp.Then.Type == domain.Upper {
		other = s.Global.ColUpper(j)
		if math.IsInf(other, 1) {
			other, global = d.ColUpper(j), false
		}
		if math.IsInf(other, 1) || other <= imp.Then.Bound {
			return cutpool.Cut{}, false
		}
	} else {
		other = s.Global.ColLower(j)
		if math.IsInf(other, -1) {
			other, global = d.ColLower(j), false
		}
		if math.IsInf(other, -1) || other >= imp.Then.Bound {
			return cutpool.Cut{}, false
		}
	}
	gap := math.Abs(other - imp.Then.Bound)
	var c cutpool.Cut
	switch {
	case imp.Then.Type == domain.Upper && imp.If.Val:
		// x <= b + gap*(1-y)
		c = cutpool.Cut{SparseRow: pair(j, 1, y, gap), RHS: other}
	case imp.Then.Type == domain.Upper:
		// x <= b + gap*y
		c = cutpool.Cut{SparseRow: pair(j, 1, y, -gap), RHS: imp.Then.Bound}
	case imp.If.Val:
		// x >= b - gap*(1-y)
		c = cutpool.Cut{SparseRow: pair(j, -1, y, gap), RHS: -other}
	default:
		// x >= b - gap*y
		c = cutpool.Cut{SparseRow: pair(j, -1, y, -gap), RHS: -imp.Then.Bound}
	}
	c.Global = global
	if !global {
		c.ScopePos = d.Len()
	}
	return c, true
}

func pair(j int, a float64, y int, b float64) mipmodel.SparseRow {
	return mipmodel.NormalizeRow([]int{j, y}, []float64{a, b})
}
