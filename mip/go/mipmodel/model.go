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

// Package mipmodel offers a user-friendly API to build mixed-integer linear models.
//
// The `Builder` struct accumulates columns, rows and the objective and provides helper
// methods for adding constraints and variables to the model.
// The `Var` struct is a reference to a specific column of the model.
// The `Model` struct is the immutable result consumed by the tree search.
package mipmodel

import (
	"errors"
	"fmt"
	"math"
	"sort"

	log "github.com/golang/glog"
)

var (
	// ErrMixedModels holds the error when elements added to a model are different.
	ErrMixedModels = errors.New("elements are not part of the same model")
	// ErrInvalidModel is returned when a model fails validation.
	ErrInvalidModel = errors.New("invalid model")
)

// Inf is the value used for missing bounds.
var Inf = math.Inf(1)

// VarType is the integrality requirement of a column.
type VarType int8

const (
	// Continuous columns may take any value within their bounds.
	Continuous VarType = iota
	// Integer columns must take integral values.
	Integer
)

// Sense is the optimization direction of the user objective.
type Sense int8

const (
	// Minimize the objective.
	Minimize Sense = 1
	// Maximize the objective.
	Maximize Sense = -1
)

// SparseRow is a sparse linear form. Indices are sorted and unique.
type SparseRow struct {
	Inds []int
	Vals []float64
}

// Len returns the number of nonzeros.
func (r SparseRow) Len() int {
	return len(r.Inds)
}

// Activity returns the value of the linear form at `x`.
func (r SparseRow) Activity(x []float64) float64 {
	var s float64
	for k, j := range r.Inds {
		s += r.Vals[k] * x[j]
	}
	return s
}

// NormalizeRow merges duplicated indices, drops zero coefficients and sorts the
// result by index.
func NormalizeRow(inds []int, vals []float64) SparseRow {
	acc := make(map[int]float64, len(inds))
	for k, j := range inds {
		acc[j] += vals[k]
	}
	r := SparseRow{}
	for j, v := range acc {
		if v != 0 {
			r.Inds = append(r.Inds, j)
		}
	}
	sort.Ints(r.Inds)
	r.Vals = make([]float64, len(r.Inds))
	for k, j := range r.Inds {
		r.Vals[k] = acc[j]
	}
	return r
}

// Row is a ranged linear constraint `Lower <= a·x <= Upper`.
type Row struct {
	SparseRow
	Lower float64
	Upper float64
	Name  string
}

// Model is a mixed-integer linear model in minimization form.
type Model struct {
	Name        string
	ColCost     []float64
	ColLower    []float64
	ColUpper    []float64
	Integrality []VarType
	ColNames    []string
	Rows        []Row
	// Offset is added to the objective value.
	Offset float64
	// Sense is the direction the user asked for. Costs and offset are already
	// multiplied by it.
	Sense Sense
}

// NumCols returns the number of columns.
func (m *Model) NumCols() int {
	return len(m.ColCost)
}

// NumRows returns the number of rows.
func (m *Model) NumRows() int {
	return len(m.Rows)
}

// IsIntegral returns whether column `j` has an integrality requirement.
func (m *Model) IsIntegral(j int) bool {
	return m.Integrality[j] == Integer
}

// IsBinary returns whether column `j` is an integer column within [0,1].
func (m *Model) IsBinary(j int) bool {
	return m.Integrality[j] == Integer && m.ColLower[j] == 0 && m.ColUpper[j] == 1
}

// Objective returns the minimization objective value of `x`, including the offset.
func (m *Model) Objective(x []float64) float64 {
	obj := m.Offset
	for j, c := range m.ColCost {
		obj += c * x[j]
	}
	return obj
}

// UserObjective converts an internal objective value to the user's sense.
func (m *Model) UserObjective(obj float64) float64 {
	return float64(m.Sense) * obj
}

// Feasible returns whether `x` satisfies the bounds, rows and integrality of the
// model within `tol`.
func (m *Model) Feasible(x []float64, tol float64) bool {
	if len(x) != m.NumCols() {
		return false
	}
	for j, v := range x {
		if v < m.ColLower[j]-tol || v > m.ColUpper[j]+tol {
			return false
		}
		if m.IsIntegral(j) && math.Abs(v-math.Round(v)) > tol {
			return false
		}
	}
	for _, r := range m.Rows {
		a := r.Activity(x)
		if a < r.Lower-tol || a > r.Upper+tol {
			return false
		}
	}
	return true
}

// Validate checks the dimensions and values of the model.
func (m *Model) Validate() error {
	n := m.NumCols()
	if len(m.ColLower) != n || len(m.ColUpper) != n || len(m.Integrality) != n {
		return fmt.Errorf("column arrays have inconsistent lengths: %w", ErrInvalidModel)
	}
	for j := 0; j < n; j++ {
		if math.IsNaN(m.ColCost[j]) || math.IsInf(m.ColCost[j], 0) {
			return fmt.Errorf("column %d has cost %v: %w", j, m.ColCost[j], ErrInvalidModel)
		}
		if m.ColLower[j] > m.ColUpper[j] || math.IsInf(m.ColLower[j], 1) || math.IsInf(m.ColUpper[j], -1) {
			return fmt.Errorf("column %d has bounds [%v,%v]: %w", j, m.ColLower[j], m.ColUpper[j], ErrInvalidModel)
		}
	}
	for i, r := range m.Rows {
		if len(r.Inds) != len(r.Vals) {
			return fmt.Errorf("row %d has %d indices and %d values: %w", i, len(r.Inds), len(r.Vals), ErrInvalidModel)
		}
		if r.Lower > r.Upper {
			return fmt.Errorf("row %d has bounds [%v,%v]: %w", i, r.Lower, r.Upper, ErrInvalidModel)
		}
		for _, j := range r.Inds {
			if j < 0 || j >= n {
				return fmt.Errorf("row %d references column %d: %w", i, j, ErrInvalidModel)
			}
		}
	}
	return nil
}

// Var is a reference to a column of the model.
type Var struct {
	ind int
	b   *Builder
}

// Index returns the column index of the variable.
func (v Var) Index() int {
	return v.ind
}

// Name returns the name of the variable.
func (v Var) Name() string {
	return v.b.model.ColNames[v.ind]
}

// WithName sets the name of the variable.
func (v Var) WithName(s string) Var {
	v.b.model.ColNames[v.ind] = s
	return v
}

// LinearExpr is a container for a linear expression.
type LinearExpr struct {
	vars   []Var
	coeffs []float64
	offset float64
}

// NewLinearExpr creates a new empty LinearExpr.
func NewLinearExpr() *LinearExpr {
	return &LinearExpr{}
}

// AddTerm adds `coeff*v` to the LinearExpr and returns itself.
func (l *LinearExpr) AddTerm(v Var, coeff float64) *LinearExpr {
	l.vars = append(l.vars, v)
	l.coeffs = append(l.coeffs, coeff)
	return l
}

// AddSum adds the sum of the variables to the LinearExpr and returns itself.
func (l *LinearExpr) AddSum(vs ...Var) *LinearExpr {
	for _, v := range vs {
		l.AddTerm(v, 1)
	}
	return l
}

// AddWeightedSum adds the variables with the corresponding coefficients to the
// LinearExpr and returns itself.
func (l *LinearExpr) AddWeightedSum(vs []Var, coeffs []float64) *LinearExpr {
	if len(coeffs) != len(vs) {
		log.Fatalf("vs and coeffs must be the same length: %v != %v", len(vs), len(coeffs))
	}
	for i, v := range vs {
		l.AddTerm(v, coeffs[i])
	}
	return l
}

// AddConstant adds the constant to the LinearExpr and returns itself.
func (l *LinearExpr) AddConstant(c float64) *LinearExpr {
	l.offset += c
	return l
}

// Builder accumulates a Model.
type Builder struct {
	model *Model
	// The first and only the first error is reported in Model.
	err error
}

// NewBuilder creates and returns a new model Builder.
func NewBuilder() *Builder {
	return &Builder{model: &Model{Sense: Minimize}}
}

// SetName sets the name of the model.
func (b *Builder) SetName(name string) {
	b.model.Name = name
}

func (b *Builder) setErrorf(format string, a ...any) {
	err := fmt.Errorf(format, a...)
	log.Errorf("%v; use `-log_backtrace_at` flag to get the error stack", err)
	if b.err == nil {
		b.err = err
	}
}

// checkSameModelAndSetErrorf returns true if `v` belongs to `b`. Otherwise an
// error is recorded on `b`.
func (b *Builder) checkSameModelAndSetErrorf(v Var, format string, a ...any) bool {
	if v.b == b {
		return true
	}
	args := make([]any, len(a)+1)
	copy(args, a)
	args[len(a)] = ErrMixedModels
	b.setErrorf(format+": %w", args...)
	return false
}

func (b *Builder) newColumn(lb, ub float64, t VarType) Var {
	if math.IsNaN(lb) || math.IsNaN(ub) || lb > ub {
		b.setErrorf("invalid bounds [%v,%v] for column %d: %w", lb, ub, len(b.model.ColCost), ErrInvalidModel)
	}
	v := Var{ind: len(b.model.ColCost), b: b}
	b.model.ColCost = append(b.model.ColCost, 0)
	b.model.ColLower = append(b.model.ColLower, lb)
	b.model.ColUpper = append(b.model.ColUpper, ub)
	b.model.Integrality = append(b.model.Integrality, t)
	b.model.ColNames = append(b.model.ColNames, "")
	return v
}

// NewVar creates a new continuous variable with bounds [lb,ub].
func (b *Builder) NewVar(lb, ub float64) Var {
	return b.newColumn(lb, ub, Continuous)
}

// NewIntVar creates a new integer variable with bounds [lb,ub]. Fractional bounds
// are rounded inwards.
func (b *Builder) NewIntVar(lb, ub float64) Var {
	return b.newColumn(math.Ceil(lb), math.Floor(ub), Integer)
}

// NewBoolVar creates a new binary variable.
func (b *Builder) NewBoolVar() Var {
	return b.newColumn(0, 1, Integer)
}

// AddRow adds the constraint `lb <= expr <= ub`. The constant of `expr` is moved to
// the bounds.
func (b *Builder) AddRow(lb float64, expr *LinearExpr, ub float64) int {
	inds := make([]int, 0, len(expr.vars))
	for _, v := range expr.vars {
		if !b.checkSameModelAndSetErrorf(v, "invalid variable %v added to row %d", v.Index(), len(b.model.Rows)) {
			return -1
		}
		inds = append(inds, v.ind)
	}
	if lb > ub {
		b.setErrorf("row %d has bounds [%v,%v]: %w", len(b.model.Rows), lb, ub, ErrInvalidModel)
	}
	row := Row{
		SparseRow: NormalizeRow(inds, expr.coeffs),
		Lower:     lb - expr.offset,
		Upper:     ub - expr.offset,
	}
	b.model.Rows = append(b.model.Rows, row)
	return len(b.model.Rows) - 1
}

// AddLessOrEqual adds `expr <= ub`.
func (b *Builder) AddLessOrEqual(expr *LinearExpr, ub float64) int {
	return b.AddRow(math.Inf(-1), expr, ub)
}

// AddGreaterOrEqual adds `expr >= lb`.
func (b *Builder) AddGreaterOrEqual(expr *LinearExpr, lb float64) int {
	return b.AddRow(lb, expr, math.Inf(1))
}

// AddEquality adds `expr == rhs`.
func (b *Builder) AddEquality(expr *LinearExpr, rhs float64) int {
	return b.AddRow(rhs, expr, rhs)
}

// AddAtMostOne adds `sum(vs) <= 1`.
func (b *Builder) AddAtMostOne(vs ...Var) int {
	return b.AddLessOrEqual(NewLinearExpr().AddSum(vs...), 1)
}

func (b *Builder) setObjective(obj *LinearExpr, s Sense) {
	for j := range b.model.ColCost {
		b.model.ColCost[j] = 0
	}
	for i, v := range obj.vars {
		if !b.checkSameModelAndSetErrorf(v, "invalid variable %v added to the objective", v.Index()) {
			return
		}
		b.model.ColCost[v.ind] += float64(s) * obj.coeffs[i]
	}
	b.model.Offset = float64(s) * obj.offset
	b.model.Sense = s
}

// Minimize sets a linear minimization objective.
func (b *Builder) Minimize(obj *LinearExpr) {
	b.setObjective(obj, Minimize)
}

// Maximize sets a linear maximization objective.
func (b *Builder) Maximize(obj *LinearExpr) {
	b.setObjective(obj, Maximize)
}

// Model returns the built model. The model returned is a pointer to the model in
// Builder, and if modified, future calls to the Builder API can result in an
// invalid model.
//
// Model returns an error when invalid parameters have been used during model
// building (e.g. passing variables from other builders).
func (b *Builder) Model() (*Model, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.model.Validate(); err != nil {
		return nil, err
	}
	return b.model, nil
}
