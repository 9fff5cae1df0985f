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

package lprelax

import (
	"errors"
	"fmt"
	"math"

	log "github.com/golang/glog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

const (
	// DefaultSimplexTolerance is the reduced cost tolerance of SimplexEngine.
	DefaultSimplexTolerance = 1e-10
	// fixedTol is the range below which a column is treated as fixed.
	fixedTol = 1e-9
	// positiveTol is the value above which a standard form variable is basic.
	positiveTol = 1e-9
	// initPosTol matches the feasibility test lp.Simplex applies to a supplied
	// initial basis.
	initPosTol = 1e-13
)

// SimplexEngine solves relaxations with the dense simplex method of
// gonum.org/v1/gonum/optimize/convex/lp.
//
// The relaxation is converted to the standard form `min c·y, A·y = b, y >= 0`.
// Every row, cut and finite column range gets its own slack, so A always has
// full row rank. lp.Simplex has no iteration cap: the iteration limit of a
// Problem is ignored and the reported iteration count is an estimate (the basis
// size for a cold solve, the number of basis changes for a warm solve).
type SimplexEngine struct {
	// Tolerance on the reduced costs. Zero selects DefaultSimplexTolerance.
	Tolerance float64
}

type colKind int8

const (
	colFixed      colKind = iota // x = value
	colStandalone                // in no row: x = value
	colLower                     // x = l + y, optional row y + s = u - l
	colUpper                     // x = u - y
	colFree                      // x = y - yNeg
)

type stdCol struct {
	kind  colKind
	y     int
	yNeg  int
	slack int
	value float64
}

type stdRow struct {
	le, ge int // slack indices, -1 if absent
}

// standardForm is a relaxation in lp.Simplex form.
type standardForm struct {
	cols    []stdCol
	rows    []stdRow
	cutRows []int
	c       []float64
	entries []map[int]float64
	b       []float64
	slacks  []int
}

func (f *standardForm) newVar(cost float64) int {
	f.c = append(f.c, cost)
	return len(f.c) - 1
}

func (f *standardForm) newRow(terms map[int]float64, rhs float64, slackSign float64) int {
	s := f.newVar(0)
	f.slacks = append(f.slacks, s)
	row := make(map[int]float64, len(terms)+1)
	for k, v := range terms {
		row[k] = v
	}
	row[s] = slackSign
	f.entries = append(f.entries, row)
	f.b = append(f.b, rhs)
	return s
}

// linearTerms expresses `r·x` as `constant + terms·y`.
func (f *standardForm) linearTerms(r mipmodel.SparseRow) (map[int]float64, float64) {
	terms := make(map[int]float64, r.Len())
	var constant float64
	for k, j := range r.Inds {
		a := r.Vals[k]
		col := f.cols[j]
		switch col.kind {
		case colFixed, colStandalone:
			constant += a * col.value
		case colLower:
			constant += a * col.value
			terms[col.y] += a
		case colUpper:
			constant += a * col.value
			terms[col.y] -= a
		case colFree:
			terms[col.y] += a
			terms[col.yNeg] -= a
		}
	}
	return terms, constant
}

var errUnboundedColumn = errors.New("column is unbounded in the direction of its cost")

// buildStandardForm converts `p`. It returns infeasible when a row over fixed
// columns only is violated.
func buildStandardForm(p *Problem, feasTol float64) (f *standardForm, infeasible bool, err error) {
	m := p.Model
	n := m.NumCols()
	used := make([]bool, n)
	for _, r := range m.Rows {
		if math.IsInf(r.Lower, -1) && math.IsInf(r.Upper, 1) {
			continue
		}
		for _, j := range r.Inds {
			used[j] = true
		}
	}
	for _, c := range p.Cuts {
		for _, j := range c.Inds {
			used[j] = true
		}
	}

	f = &standardForm{cols: make([]stdCol, n), rows: make([]stdRow, m.NumRows())}
	var bounded []int
	for j := 0; j < n; j++ {
		l, u, cost := p.Lower[j], p.Upper[j], m.ColCost[j]
		if l > u+feasTol {
			return nil, true, nil
		}
		col := stdCol{y: -1, yNeg: -1, slack: -1}
		switch {
		case u-l <= fixedTol:
			col.kind, col.value = colFixed, l
		case !used[j]:
			col.kind = colStandalone
			switch {
			case cost > 0 && math.IsInf(l, -1), cost < 0 && math.IsInf(u, 1):
				return nil, false, fmt.Errorf("column %d: %w", j, errUnboundedColumn)
			case cost > 0:
				col.value = l
			case cost < 0:
				col.value = u
			case !math.IsInf(l, -1):
				col.value = l
			case !math.IsInf(u, 1):
				col.value = u
			}
		case !math.IsInf(l, -1):
			col.kind, col.value = colLower, l
			col.y = f.newVar(cost)
			if !math.IsInf(u, 1) {
				bounded = append(bounded, j)
			}
		case !math.IsInf(u, 1):
			col.kind, col.value = colUpper, u
			col.y = f.newVar(-cost)
		default:
			col.kind = colFree
			col.y = f.newVar(cost)
			col.yNeg = f.newVar(-cost)
		}
		f.cols[j] = col
	}
	for _, j := range bounded {
		f.cols[j].slack = f.newRow(map[int]float64{f.cols[j].y: 1}, p.Upper[j]-p.Lower[j], 1)
	}

	for i, r := range m.Rows {
		f.rows[i] = stdRow{le: -1, ge: -1}
		terms, constant := f.linearTerms(r.SparseRow)
		if len(terms) == 0 {
			if constant < r.Lower-feasTol*math.Max(1, math.Abs(r.Lower)) || constant > r.Upper+feasTol*math.Max(1, math.Abs(r.Upper)) {
				return nil, true, nil
			}
			continue
		}
		if !math.IsInf(r.Upper, 1) {
			f.rows[i].le = f.newRow(terms, r.Upper-constant, 1)
		}
		if !math.IsInf(r.Lower, -1) {
			f.rows[i].ge = f.newRow(terms, r.Lower-constant, -1)
		}
	}
	for _, c := range p.Cuts {
		terms, constant := f.linearTerms(c.SparseRow)
		if len(terms) == 0 {
			if constant > c.RHS+feasTol*math.Max(1, math.Abs(c.RHS)) {
				return nil, true, nil
			}
			f.cutRows = append(f.cutRows, -1)
			continue
		}
		f.cutRows = append(f.cutRows, f.newRow(terms, c.RHS-constant, 1))
	}
	return f, false, nil
}

func (f *standardForm) matrix() *mat.Dense {
	a := mat.NewDense(len(f.b), len(f.c), nil)
	for i, row := range f.entries {
		for k, v := range row {
			a.Set(i, k, v)
		}
	}
	return a
}

// primal recovers the model columns from the standard form values.
func (f *standardForm) primal(y []float64) []float64 {
	x := make([]float64, len(f.cols))
	for j, col := range f.cols {
		switch col.kind {
		case colFixed, colStandalone:
			x[j] = col.value
		case colLower:
			x[j] = col.value + y[col.y]
		case colUpper:
			x[j] = col.value - y[col.y]
		case colFree:
			x[j] = y[col.y] - y[col.yNeg]
		}
	}
	return x
}

// basicSet maps a model basis to standard form basic variables.
func (f *standardForm) basicSet(basis *Basis) []int {
	var basic []int
	add := func(k int) {
		if k >= 0 {
			basic = append(basic, k)
		}
	}
	for j, col := range f.cols {
		st := basis.ColStatus[j]
		switch col.kind {
		case colLower:
			switch {
			case st == Basic:
				add(col.y)
				add(col.slack)
			case st == AtUpper && col.slack >= 0:
				add(col.y)
			default:
				add(col.slack)
			}
		case colUpper:
			if st == Basic {
				add(col.y)
			}
		case colFree:
			if st == Basic {
				add(col.y)
			}
		}
	}
	for i, r := range f.rows {
		switch basis.RowStatus[i] {
		case AtUpper:
			add(r.ge)
		case AtLower:
			add(r.le)
		default:
			add(r.le)
			add(r.ge)
		}
	}
	for _, s := range f.cutRows {
		add(s)
	}
	return basic
}

// modelBasis maps standard form basic variables to a model basis.
func (f *standardForm) modelBasis(basic []int, lower, upper []float64) *Basis {
	isBasic := make([]bool, len(f.c))
	for _, k := range basic {
		isBasic[k] = true
	}
	on := func(k int) bool { return k >= 0 && isBasic[k] }
	b := &Basis{ColStatus: make([]VarStatus, len(f.cols)), RowStatus: make([]VarStatus, len(f.rows))}
	for j, col := range f.cols {
		var st VarStatus
		switch col.kind {
		case colFixed:
			st = AtLower
		case colStandalone:
			switch {
			case col.value == lower[j]:
				st = AtLower
			case col.value == upper[j]:
				st = AtUpper
			default:
				st = AtZero
			}
		case colLower:
			switch {
			case !on(col.y):
				st = AtLower
			case col.slack >= 0 && !on(col.slack):
				st = AtUpper
			default:
				st = Basic
			}
		case colUpper:
			st = AtUpper
			if on(col.y) {
				st = Basic
			}
		case colFree:
			st = AtZero
			if on(col.y) || on(col.yNeg) {
				st = Basic
			}
		}
		b.ColStatus[j] = st
	}
	for i, r := range f.rows {
		switch {
		case r.le >= 0 && !on(r.le):
			b.RowStatus[i] = AtUpper
		case r.ge >= 0 && !on(r.ge):
			b.RowStatus[i] = AtLower
		default:
			b.RowStatus[i] = Basic
		}
	}
	return b
}

// feasibleBasis reports whether the columns `basic` of `a` form a nonsingular
// basis with a nonnegative basic solution.
func feasibleBasis(a *mat.Dense, b []float64, basic []int) bool {
	m, _ := a.Dims()
	if len(basic) != m {
		return false
	}
	seen := make(map[int]bool, m)
	ab := mat.NewDense(m, m, nil)
	col := make([]float64, m)
	for k, j := range basic {
		if seen[j] {
			return false
		}
		seen[j] = true
		mat.Col(col, j, a)
		ab.SetCol(k, col)
	}
	var xb mat.VecDense
	if err := xb.SolveVec(ab, mat.NewVecDense(m, b)); err != nil {
		return false
	}
	for i := 0; i < m; i++ {
		if xb.AtVec(i) < -initPosTol {
			return false
		}
	}
	return true
}

// completeBasis extends the positive variables of `y` to a set of len(b)
// linearly independent columns of `a`, preferring slacks.
func (f *standardForm) completeBasis(a *mat.Dense, y []float64) []int {
	m, n := a.Dims()
	var basic []int
	var q [][]float64
	taken := make([]bool, n)
	try := func(j int) {
		if taken[j] || len(basic) == m {
			return
		}
		v := mat.Col(nil, j, a)
		r := append([]float64(nil), v...)
		for _, e := range q {
			floats.AddScaled(r, -floats.Dot(e, r), e)
		}
		norm := floats.Norm(r, 2)
		if norm <= 1e-9*math.Max(1, floats.Norm(v, 2)) {
			return
		}
		floats.Scale(1/norm, r)
		q = append(q, r)
		basic = append(basic, j)
		taken[j] = true
	}
	for j, v := range y {
		if v > positiveTol {
			try(j)
		}
	}
	for _, s := range f.slacks {
		try(s)
	}
	for j := 0; j < n; j++ {
		try(j)
	}
	return basic
}

// runSimplex calls lp.Simplex, turning its panics into errors.
func runSimplex(c []float64, a mat.Matrix, b []float64, tol float64, initial []int) (y []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lp.Simplex: %v", r)
		}
	}()
	_, y, err = lp.Simplex(c, a, b, tol, initial)
	return y, err
}

// Solve implements Engine.
func (e SimplexEngine) Solve(p *Problem) Result {
	tol := e.Tolerance
	if tol <= 0 {
		tol = DefaultSimplexTolerance
	}
	f, infeasible, err := buildStandardForm(p, p.feasTol())
	switch {
	case errors.Is(err, errUnboundedColumn):
		return Result{Status: StatusUnbounded}
	case err != nil:
		log.Errorf("building standard form: %v", err)
		return Result{Status: StatusError}
	case infeasible:
		return Result{Status: StatusInfeasible}
	}

	m := len(f.b)
	y := make([]float64, len(f.c))
	var basic []int
	iterations := 0
	if m == 0 {
		for _, c := range f.c {
			if c < -tol {
				return Result{Status: StatusUnbounded}
			}
		}
	} else {
		a := f.matrix()
		var initial []int
		if p.Basis.Fits(p.Model) {
			initial = f.basicSet(p.Basis)
			if !feasibleBasis(a, f.b, initial) {
				log.V(2).Info("warm start basis rejected, solving from scratch")
				initial = nil
			}
		}
		y, err = runSimplex(f.c, a, f.b, tol, initial)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return Result{Status: StatusInfeasible, Iterations: m}
		case errors.Is(err, lp.ErrUnbounded):
			return Result{Status: StatusUnbounded, Iterations: m}
		case err != nil:
			log.Warningf("simplex failed on a %dx%d standard form: %v", m, len(f.c), err)
			return Result{Status: StatusError, Iterations: m}
		}
		basic = f.completeBasis(a, y)
		iterations = m
		if initial != nil {
			iterations = 1 + countNew(initial, basic)
		}
	}

	x := f.primal(y)
	return Result{
		Status:     StatusOptimal,
		Objective:  p.Model.Objective(x),
		X:          x,
		Basis:      f.modelBasis(basic, p.Lower, p.Upper),
		Iterations: iterations,
	}
}

func countNew(from, to []int) int {
	in := make(map[int]bool, len(from))
	for _, k := range from {
		in[k] = true
	}
	n := 0
	for _, k := range to {
		if !in[k] {
			n++
		}
	}
	return n
}
