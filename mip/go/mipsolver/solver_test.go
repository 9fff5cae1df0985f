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

package mipsolver

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/search"
)

const tol = 1e-6

// engineFunc adapts a function to lprelax.Engine.
type engineFunc func(p *lprelax.Problem) lprelax.Result

func (f engineFunc) Solve(p *lprelax.Problem) lprelax.Result { return f(p) }

// neverIntegral sets every unfixed column to the middle of its bounds and
// reports infeasibility once all columns are fixed, so that the search never
// finds a solution and every leaf is at full depth.
func neverIntegral(p *lprelax.Problem) lprelax.Result {
	x := make([]float64, len(p.Lower))
	fixed := true
	for j := range x {
		x[j] = p.Lower[j]
		if p.Lower[j] < p.Upper[j] {
			x[j] += 0.5
			fixed = false
		}
	}
	if fixed {
		return lprelax.Result{Status: lprelax.StatusInfeasible, Iterations: 1}
	}
	return lprelax.Result{Status: lprelax.StatusOptimal, X: x, Iterations: 1}
}

// recorder keeps every progress report.
type recorder struct {
	reports []*Progress
}

func (r *recorder) Report(p *Progress) {
	r.reports = append(r.reports, p)
}

func build(t *testing.T, b *mipmodel.Builder) *mipmodel.Model {
	t.Helper()
	m, err := b.Model()
	if err != nil {
		t.Fatalf("Model() returned with unexpected error %v", err)
	}
	return m
}

type knapsack struct {
	values   []float64
	weights  [][]float64
	capacity []float64
}

var (
	singleKnapsack = knapsack{
		values:   []float64{10, 13, 7, 8, 9, 4},
		weights:  [][]float64{{5, 7, 4, 5, 6, 3}},
		capacity: []float64{15},
	}
	doubleKnapsack = knapsack{
		values:   []float64{6, 5, 8, 9, 6, 7, 3},
		weights:  [][]float64{{2, 3, 6, 7, 5, 9, 4}, {5, 4, 3, 7, 2, 5, 3}},
		capacity: []float64{20, 14},
	}
)

// model returns the knapsack as a maximization, or as the minimization of the
// negated values.
func (k knapsack) model(t *testing.T, minimize bool) *mipmodel.Model {
	t.Helper()
	b := mipmodel.NewBuilder()
	var xs []mipmodel.Var
	for range k.values {
		xs = append(xs, b.NewBoolVar())
	}
	for i, w := range k.weights {
		b.AddLessOrEqual(mipmodel.NewLinearExpr().AddWeightedSum(xs, w), k.capacity[i])
	}
	if minimize {
		neg := make([]float64, len(k.values))
		for j, v := range k.values {
			neg[j] = -v
		}
		b.Minimize(mipmodel.NewLinearExpr().AddWeightedSum(xs, neg))
	} else {
		b.Maximize(mipmodel.NewLinearExpr().AddWeightedSum(xs, k.values))
	}
	return build(t, b)
}

// bruteForce returns the best value and the best subset of the knapsack.
func (k knapsack) bruteForce() (float64, []float64) {
	n := len(k.values)
	best, bestX := math.Inf(-1), []float64(nil)
	for mask := 0; mask < 1<<n; mask++ {
		x := make([]float64, n)
		var value float64
		for j := 0; j < n; j++ {
			if mask&(1<<j) != 0 {
				x[j] = 1
				value += k.values[j]
			}
		}
		fits := true
		for i, w := range k.weights {
			var load float64
			for j := range x {
				load += w[j] * x[j]
			}
			fits = fits && load <= k.capacity[i]
		}
		if fits && value > best {
			best, bestX = value, x
		}
	}
	return best, bestX
}

func solve(t *testing.T, m *mipmodel.Model, opts Options) *Result {
	t.Helper()
	s, err := New(m, opts)
	if err != nil {
		t.Fatalf("New() returned with unexpected error %v", err)
	}
	return s.Solve()
}

func TestSolver_IntegralRoot(t *testing.T) {
	b := mipmodel.NewBuilder()
	x := b.NewBoolVar()
	y := b.NewBoolVar()
	b.AddGreaterOrEqual(mipmodel.NewLinearExpr().AddSum(x, y), 1)
	b.Minimize(mipmodel.NewLinearExpr().AddTerm(x, 1).AddTerm(y, 2))
	m := build(t, b)

	res := solve(t, m, DefaultOptions())
	want := &Result{
		Status:           StatusOptimal,
		Solution:         []float64{1, 0},
		Objective:        1,
		BestBound:        1,
		Nodes:            1,
		Leaves:           1,
		PrunedTreeWeight: 1,
	}
	opts := []cmp.Option{
		cmpopts.EquateApprox(0, tol),
		cmpopts.IgnoreFields(Result{}, "LpIterations", "CutsAdded", "Elapsed", "RootBasis"),
	}
	if diff := cmp.Diff(want, res, opts...); diff != "" {
		t.Errorf("Solve() returned with unexpected diff (-want+got):\n%s", diff)
	}
}

func TestSolver_RootCutClosesGap(t *testing.T) {
	b := mipmodel.NewBuilder()
	x := b.NewBoolVar()
	y := b.NewBoolVar()
	b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 2), 3)
	b.Maximize(mipmodel.NewLinearExpr().AddSum(x, y))
	m := build(t, b)

	res := solve(t, m, DefaultOptions())
	if res.Status != StatusOptimal {
		t.Fatalf("Solve() status = %v, want %v", res.Status, StatusOptimal)
	}
	if math.Abs(res.Objective-1) > tol {
		t.Errorf("Solve() objective = %v, want 1", res.Objective)
	}
	if res.Nodes != 1 {
		t.Errorf("Solve() nodes = %v, want 1", res.Nodes)
	}
	if res.CutsAdded == 0 {
		t.Errorf("Solve() added no cut")
	}
	if res.RootBasis == nil {
		t.Errorf("Solve() returned no root basis")
	}
}

func TestSolver_Knapsack(t *testing.T) {
	tests := []struct {
		name     string
		k        knapsack
		minimize bool
		rule     search.BranchingRule
	}{
		{name: "Single", k: singleKnapsack},
		{name: "SingleMinimize", k: singleKnapsack, minimize: true},
		{name: "Double", k: doubleKnapsack},
		{name: "DoubleMostFractional", k: doubleKnapsack, rule: search.MostFractionalRule{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := test.k.model(t, test.minimize)
			best, _ := test.k.bruteForce()
			if test.minimize {
				best = -best
			}
			opts := DefaultOptions()
			opts.BranchingRule = test.rule
			res := solve(t, m, opts)
			if res.Status != StatusOptimal {
				t.Fatalf("Solve() status = %v, want %v", res.Status, StatusOptimal)
			}
			if math.Abs(res.Objective-best) > tol {
				t.Errorf("Solve() objective = %v, want %v", res.Objective, best)
			}
			if !m.Feasible(res.Solution, tol) {
				t.Errorf("Solve() solution %v is infeasible", res.Solution)
			}
			if got := m.UserObjective(m.Objective(res.Solution)); math.Abs(got-res.Objective) > tol {
				t.Errorf("objective of the solution = %v, want %v", got, res.Objective)
			}
			if res.Gap > DefaultOptions().RelativeGap {
				t.Errorf("Solve() gap = %v", res.Gap)
			}
		})
	}
}

func TestSolver_GeneralIntegers(t *testing.T) {
	b := mipmodel.NewBuilder()
	x := b.NewIntVar(0, 10)
	y := b.NewIntVar(0, 10)
	b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 3), 12)
	b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 3).AddTerm(y, 2), 12)
	b.Minimize(mipmodel.NewLinearExpr().AddTerm(x, -1).AddTerm(y, -1))
	m := build(t, b)

	res := solve(t, m, DefaultOptions())
	if res.Status != StatusOptimal {
		t.Fatalf("Solve() status = %v, want %v", res.Status, StatusOptimal)
	}
	if math.Abs(res.Objective+4) > tol {
		t.Errorf("Solve() objective = %v, want -4", res.Objective)
	}
	if !m.Feasible(res.Solution, tol) {
		t.Errorf("Solve() solution %v is infeasible", res.Solution)
	}
}

func TestSolver_RoundedSolutionViolatesRow(t *testing.T) {
	// The relaxation optimum x = 5e-7 is integral within tolerance but rounds
	// to the infeasible x = 0.
	b := mipmodel.NewBuilder()
	x := b.NewIntVar(0, 10)
	b.AddGreaterOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 1e7), 5)
	b.Minimize(mipmodel.NewLinearExpr().AddTerm(x, 1))
	m := build(t, b)

	res := solve(t, m, DefaultOptions())
	if res.Status != StatusOptimal {
		t.Fatalf("Solve() status = %v, want %v", res.Status, StatusOptimal)
	}
	if diff := cmp.Diff([]float64{1}, res.Solution); diff != "" {
		t.Errorf("Solve() solution returned with unexpected diff (-want+got):\n%s", diff)
	}
	if math.Abs(res.Objective-1) > tol {
		t.Errorf("Solve() objective = %v, want 1", res.Objective)
	}
}

func TestSolver_SeparationProvesRootInfeasible(t *testing.T) {
	b := mipmodel.NewBuilder()
	x := b.NewBoolVar()
	y := b.NewBoolVar()
	b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 2), 3)
	b.Maximize(mipmodel.NewLinearExpr().AddSum(x, y))
	m := build(t, b)

	// The first solve violates the clique x + y <= 1, every later one is
	// infeasible.
	solves := 0
	opts := DefaultOptions()
	opts.Engine = engineFunc(func(p *lprelax.Problem) lprelax.Result {
		solves++
		if solves > 1 {
			return lprelax.Result{Status: lprelax.StatusInfeasible, Iterations: 1}
		}
		return lprelax.Result{Status: lprelax.StatusOptimal, Objective: -1.5, X: []float64{0.75, 0.75}, Iterations: 1}
	})
	res := solve(t, m, opts)

	if res.Status != StatusInfeasible {
		t.Errorf("Solve() status = %v, want %v", res.Status, StatusInfeasible)
	}
	if res.CutsAdded == 0 {
		t.Errorf("Solve() added no cut")
	}
	if res.RootBasis != nil {
		t.Errorf("Solve() exported a root basis after proving infeasibility")
	}
	if res.Nodes != 1 {
		t.Errorf("Solve() nodes = %v, want 1", res.Nodes)
	}
	// The root is closed right after separation, without a third solve.
	if solves != 2 {
		t.Errorf("relaxation solved %d times, want 2", solves)
	}
	if res.PrunedTreeWeight != 1 {
		t.Errorf("Solve() pruned weight = %v, want 1", res.PrunedTreeWeight)
	}
}

func TestSolver_Infeasible(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *mipmodel.Builder)
	}{
		{
			name: "ProvenByPropagation",
			build: func(b *mipmodel.Builder) {
				x := b.NewBoolVar()
				y := b.NewBoolVar()
				b.AddGreaterOrEqual(mipmodel.NewLinearExpr().AddSum(x, y), 3)
			},
		},
		{
			name: "ProvenByBranching",
			build: func(b *mipmodel.Builder) {
				x := b.NewBoolVar()
				y := b.NewBoolVar()
				b.AddEquality(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 2), 1)
				b.Minimize(mipmodel.NewLinearExpr().AddSum(x, y))
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := mipmodel.NewBuilder()
			test.build(b)
			res := solve(t, build(t, b), DefaultOptions())
			if res.Status != StatusInfeasible {
				t.Errorf("Solve() status = %v, want %v", res.Status, StatusInfeasible)
			}
			if res.Solution != nil {
				t.Errorf("Solve() solution = %v, want nil", res.Solution)
			}
			if !math.IsInf(res.Gap, 1) {
				t.Errorf("Solve() gap = %v, want +Inf", res.Gap)
			}
		})
	}
}

func TestSolver_Unbounded(t *testing.T) {
	b := mipmodel.NewBuilder()
	x := b.NewVar(0, math.Inf(1))
	y := b.NewBoolVar()
	b.Maximize(mipmodel.NewLinearExpr().AddTerm(x, 1).AddTerm(y, 1))
	res := solve(t, build(t, b), DefaultOptions())
	if res.Status != StatusUnbounded {
		t.Errorf("Solve() status = %v, want %v", res.Status, StatusUnbounded)
	}
}

func TestSolver_PlungeCapKeepsOpenNodes(t *testing.T) {
	b := mipmodel.NewBuilder()
	var xs []mipmodel.Var
	for i := 0; i < 20; i++ {
		xs = append(xs, b.NewBoolVar())
	}
	b.Minimize(mipmodel.NewLinearExpr().AddSum(xs...))
	m := build(t, b)

	opts := DefaultOptions()
	opts.Engine = engineFunc(neverIntegral)
	opts.PlungeNodeCap = 30
	// Stop as soon as the first plunge handed its open nodes to the queue.
	opts.Limiter = LimiterFunc(func(p *Progress) bool { return p.QueueSize > 0 })
	res := solve(t, m, opts)

	if res.Status != StatusLimitReached {
		t.Errorf("Solve() status = %v, want %v", res.Status, StatusLimitReached)
	}
	if res.Nodes < opts.PlungeNodeCap {
		t.Errorf("Solve() nodes = %v, want at least %v", res.Nodes, opts.PlungeNodeCap)
	}
	if res.OpenNodes == 0 {
		t.Errorf("Solve() left no open nodes")
	}
	if got := res.PrunedTreeWeight + res.OpenTreeWeight; math.Abs(got-1) > 1e-12 {
		t.Errorf("pruned weight %v + open weight %v = %v, want 1", res.PrunedTreeWeight, res.OpenTreeWeight, got)
	}
	if res.Solution != nil {
		t.Errorf("Solve() solution = %v, want nil", res.Solution)
	}
	if res.BestBound != 0 {
		t.Errorf("Solve() best bound = %v, want 0", res.BestBound)
	}
}

func TestSolver_NodeLimit(t *testing.T) {
	b := mipmodel.NewBuilder()
	var xs []mipmodel.Var
	for i := 0; i < 20; i++ {
		xs = append(xs, b.NewBoolVar())
	}
	b.Minimize(mipmodel.NewLinearExpr().AddSum(xs...))
	m := build(t, b)

	opts := DefaultOptions()
	opts.Engine = engineFunc(neverIntegral)
	opts.Limiter = NodeLimit(10)
	res := solve(t, m, opts)
	if res.Status != StatusLimitReached {
		t.Errorf("Solve() status = %v, want %v", res.Status, StatusLimitReached)
	}
	if res.Nodes < 10 {
		t.Errorf("Solve() nodes = %v, want at least 10", res.Nodes)
	}
	if got := res.PrunedTreeWeight + res.OpenTreeWeight; math.Abs(got-1) > 1e-12 {
		t.Errorf("pruned weight %v + open weight %v = %v, want 1", res.PrunedTreeWeight, res.OpenTreeWeight, got)
	}
}

func TestSolver_SolveInterruptible(t *testing.T) {
	m := singleKnapsack.model(t, false)
	best, _ := singleKnapsack.bruteForce()
	s, err := New(m, DefaultOptions())
	if err != nil {
		t.Fatalf("New() returned with unexpected error %v", err)
	}
	interrupt := make(chan struct{})
	close(interrupt)
	res := s.SolveInterruptible(interrupt)
	if res.Status != StatusLimitReached {
		t.Errorf("SolveInterruptible() status = %v, want %v", res.Status, StatusLimitReached)
	}
	if res.BestBound < best-tol {
		t.Errorf("SolveInterruptible() best bound = %v, below the optimum %v", res.BestBound, best)
	}
}

func TestSolver_BoundIsMonotone(t *testing.T) {
	m := doubleKnapsack.model(t, true)
	rec := &recorder{}
	opts := DefaultOptions()
	opts.DisplayFrequency = 1
	opts.Reporter = rec
	opts.PlungeNodeCap = 3
	res := solve(t, m, opts)
	if res.Status != StatusOptimal {
		t.Fatalf("Solve() status = %v, want %v", res.Status, StatusOptimal)
	}
	if len(rec.reports) == 0 {
		t.Fatalf("no progress reported")
	}
	for i := 1; i < len(rec.reports); i++ {
		if prev, cur := rec.reports[i-1].BestBound, rec.reports[i].BestBound; cur < prev {
			t.Errorf("report %d: best bound decreased from %v to %v", i, prev, cur)
		}
	}
	last := rec.reports[len(rec.reports)-1]
	if !last.Final {
		t.Errorf("last report is not final")
	}
	if last.Nodes != res.Nodes {
		t.Errorf("final report nodes = %v, want %v", last.Nodes, res.Nodes)
	}
}

func TestSolver_DebugSolution(t *testing.T) {
	for _, k := range []knapsack{singleKnapsack, doubleKnapsack} {
		m := k.model(t, false)
		_, x := k.bruteForce()
		checker := invariant.NewChecker(x, false)
		opts := DefaultOptions()
		opts.Validator = checker
		res := solve(t, m, opts)
		if res.Status != StatusOptimal {
			t.Errorf("Solve() status = %v, want %v", res.Status, StatusOptimal)
		}
		if got := checker.Violations(); len(got) != 0 {
			t.Errorf("Solve() violated invariants: %v", got)
		}
	}
}

func TestSolver_WarmStart(t *testing.T) {
	m := singleKnapsack.model(t, false)
	first := solve(t, m, DefaultOptions())
	if first.RootBasis == nil {
		t.Fatalf("Solve() returned no root basis")
	}
	opts := DefaultOptions()
	opts.WarmStartBasis = first.RootBasis
	second := solve(t, m, opts)
	if second.Status != StatusOptimal {
		t.Fatalf("warm started Solve() status = %v, want %v", second.Status, StatusOptimal)
	}
	if math.Abs(second.Objective-first.Objective) > tol {
		t.Errorf("warm started Solve() objective = %v, want %v", second.Objective, first.Objective)
	}
}

func TestNew_Errors(t *testing.T) {
	m := singleKnapsack.model(t, false)
	short := (&lprelax.Basis{ColStatus: []lprelax.VarStatus{lprelax.AtLower}}).Marshal()
	tests := []struct {
		name    string
		model   *mipmodel.Model
		basis   []byte
		wantErr error
	}{
		{name: "NoModel", wantErr: ErrNoModel},
		{name: "BasisMismatch", model: m, basis: short, wantErr: lprelax.ErrBasisMismatch},
		{name: "CorruptBasis", model: m, basis: []byte{0xff}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.WarmStartBasis = test.basis
			_, err := New(test.model, opts)
			if err == nil {
				t.Fatalf("New() returned no error")
			}
			if test.wantErr != nil && !errors.Is(err, test.wantErr) {
				t.Errorf("New() error = %v, want %v", err, test.wantErr)
			}
		})
	}
}
