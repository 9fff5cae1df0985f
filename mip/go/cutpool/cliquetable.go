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
	"fmt"
	"math"
	"sort"

	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// Literal is the statement `x[Col] == 1` if Val is true, `x[Col] == 0` otherwise.
type Literal struct {
	Col int
	Val bool
}

// Not returns the complement of the literal.
func (l Literal) Not() Literal {
	return Literal{Col: l.Col, Val: !l.Val}
}

func (l Literal) String() string {
	if l.Val {
		return fmt.Sprintf("x%d", l.Col)
	}
	return fmt.Sprintf("!x%d", l.Col)
}

// Value returns the value of the literal at the column value `v`.
func (l Literal) Value(v float64) float64 {
	if l.Val {
		return v
	}
	return 1 - v
}

// isTrue reports whether the bounds of `d` force the literal.
func (l Literal) isTrue(d *domain.Domain) bool {
	if l.Val {
		return d.ColLower(l.Col) >= 1
	}
	return d.ColUpper(l.Col) <= 0
}

// falsify returns the change making the literal false.
func (l Literal) falsify() domain.Change {
	if l.Val {
		return domain.Change{Col: l.Col, Type: domain.Upper, Bound: 0}
	}
	return domain.Change{Col: l.Col, Type: domain.Lower, Bound: 1}
}

// CliqueTable stores sets of literals of which at most one can be true.
type CliqueTable struct {
	model     *mipmodel.Model
	cliques   [][]Literal
	byLiteral map[Literal][]int
	seen      map[string]bool
	validator invariant.Validator
}

// NewCliqueTable returns an empty clique table for `m`.
func NewCliqueTable(m *mipmodel.Model, v invariant.Validator) *CliqueTable {
	if v == nil {
		v = invariant.Disabled()
	}
	return &CliqueTable{
		model:     m,
		byLiteral: make(map[Literal][]int),
		seen:      make(map[string]bool),
		validator: v,
	}
}

// AddClique records that at most one of `lits` is true. Cliques with fewer than
// two literals, non-binary columns or repeated columns are rejected.
func (ct *CliqueTable) AddClique(lits []Literal) bool {
	if len(lits) < 2 {
		return false
	}
	c := append([]Literal(nil), lits...)
	sort.Slice(c, func(i, j int) bool {
		if c[i].Col != c[j].Col {
			return c[i].Col < c[j].Col
		}
		return !c[i].Val && c[j].Val
	})
	for k, l := range c {
		if !ct.model.IsBinary(l.Col) {
			return false
		}
		if k > 0 && c[k-1].Col == l.Col {
			return false
		}
	}
	key := fmt.Sprint(c)
	if ct.seen[key] {
		return false
	}
	ct.seen[key] = true

	row, rhs := CliqueCut(c)
	ct.validator.CheckCut(row.Inds, row.Vals, rhs, "clique")

	idx := len(ct.cliques)
	ct.cliques = append(ct.cliques, c)
	for _, l := range c {
		ct.byLiteral[l] = append(ct.byLiteral[l], idx)
	}
	return true
}

// Len returns the number of cliques.
func (ct *CliqueTable) Len() int {
	return len(ct.cliques)
}

// Cliques returns the cliques. The slices must not be modified.
func (ct *CliqueTable) Cliques() [][]Literal {
	return ct.cliques
}

// CliquesOf returns the indices of the cliques containing `l`.
func (ct *CliqueTable) CliquesOf(l Literal) []int {
	return ct.byLiteral[l]
}

// CliqueCut returns the inequality `sum(literals) <= 1` as a row over the columns.
func CliqueCut(c []Literal) (mipmodel.SparseRow, float64) {
	row := mipmodel.SparseRow{Inds: make([]int, len(c)), Vals: make([]float64, len(c))}
	rhs := 1.0
	for k, l := range c {
		row.Inds[k] = l.Col
		if l.Val {
			row.Vals[k] = 1
		} else {
			row.Vals[k] = -1
			rhs--
		}
	}
	return row, rhs
}

// Propagate implements domain.Propagator: once a literal of a clique is true,
// all other literals are made false.
func (ct *CliqueTable) Propagate(d *domain.Domain) {
	for _, c := range ct.cliques {
		trueAt := -1
		for k, l := range c {
			if !l.isTrue(d) {
				continue
			}
			if trueAt >= 0 {
				d.MarkInfeasible()
				return
			}
			trueAt = k
		}
		if trueAt < 0 {
			continue
		}
		for k, l := range c {
			if k == trueAt {
				continue
			}
			d.ChangeBound(l.falsify(), domain.ReasonPropagation)
			if d.Infeasible() {
				return
			}
		}
	}
}

// ExtractCliques scans the rows of the model for binary columns that cannot be
// at one together and records them as cliques. It returns the number of cliques
// added.
func (ct *CliqueTable) ExtractCliques() int {
	added := 0
	for _, r := range ct.model.Rows {
		if !math.IsInf(r.Upper, 1) && ct.extractFromRow(r.SparseRow, 1, r.Upper) {
			added++
		}
		if !math.IsInf(r.Lower, -1) && ct.extractFromRow(r.SparseRow, -1, -r.Lower) {
			added++
		}
	}
	return added
}

// extractFromRow handles `sign*r·x <= rhs` when all columns of the row are binary.
// Negative coefficients are complemented so that the row reads
// `sum(a_k * lit_k) <= rhs'` with a_k > 0, and the literals with the largest
// coefficients that pairwise exceed rhs' form a clique.
func (ct *CliqueTable) extractFromRow(r mipmodel.SparseRow, sign, rhs float64) bool {
	type term struct {
		lit  Literal
		coef float64
	}
	terms := make([]term, 0, r.Len())
	for k, j := range r.Inds {
		if !ct.model.IsBinary(j) {
			return false
		}
		a := sign * r.Vals[k]
		if a > 0 {
			terms = append(terms, term{Literal{Col: j, Val: true}, a})
		} else {
			terms = append(terms, term{Literal{Col: j, Val: false}, -a})
			rhs -= a
		}
	}
	if len(terms) < 2 {
		return false
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].coef > terms[j].coef })
	const tol = 1e-9
	if terms[0].coef+terms[1].coef <= rhs+tol {
		return false
	}
	end := 2
	for end < len(terms) && terms[end-1].coef+terms[end].coef > rhs+tol {
		end++
	}
	lits := make([]Literal, end)
	for k := 0; k < end; k++ {
		lits[k] = terms[k].lit
	}
	return ct.AddClique(lits)
}
