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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

func mustModel(t *testing.T, build func(b *mipmodel.Builder)) *mipmodel.Model {
	t.Helper()
	b := mipmodel.NewBuilder()
	build(b)
	m, err := b.Model()
	if err != nil {
		t.Fatalf("Model() returned with unexpected error %v", err)
	}
	return m
}

func TestEfficacy(t *testing.T) {
	c := &cutpool.Cut{SparseRow: mipmodel.SparseRow{Inds: []int{0, 1}, Vals: []float64{1, 1}}, RHS: 1}
	if got, want := Efficacy(c, []float64{1, 1}), 1/math.Sqrt2; math.Abs(got-want) > 1e-12 {
		t.Errorf("Efficacy() = %v, want %v", got, want)
	}
	if got := Efficacy(c, []float64{0.5, 0.5}); got != 0 {
		t.Errorf("Efficacy() of a satisfied cut = %v, want 0", got)
	}
}

func TestCoverSeparator(t *testing.T) {
	m := mustModel(t, func(b *mipmodel.Builder) {
		x := []mipmodel.Var{b.NewBoolVar(), b.NewBoolVar(), b.NewBoolVar()}
		b.AddLessOrEqual(mipmodel.NewLinearExpr().AddWeightedSum(x, []float64{3, 2, 4}), 6)
	})
	tests := []struct {
		name string
		x    []float64
		want []cutpool.Cut
	}{
		{
			name: "Violated",
			x:    []float64{1, 0, 0.75},
			want: []cutpool.Cut{{SparseRow: mipmodel.SparseRow{Inds: []int{0, 2}, Vals: []float64{1, 1}}, RHS: 1, Global: true}},
		},
		{
			name: "Satisfied",
			x:    []float64{0.5, 1, 0.5},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := CoverSeparator{Model: m}.Separate(nil, test.x)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("Separate() returned with unexpected diff (-want+got);\n%s", diff)
			}
		})
	}
}

func TestImpliedBoundSeparator(t *testing.T) {
	m := mustModel(t, func(b *mipmodel.Builder) {
		b.NewVar(0, 10)
		b.NewBoolVar()
		b.NewVar(0, math.Inf(1))
	})
	g := cutpool.NewImplicationGraph(m)
	g.AddImplication(cutpool.Literal{Col: 1, Val: false}, domain.Change{Col: 0, Type: domain.Upper, Bound: 0})
	g.AddImplication(cutpool.Literal{Col: 1, Val: false}, domain.Change{Col: 2, Type: domain.Upper, Bound: 0})
	global := domain.New(m)
	local := global.Clone()
	local.ChangeBound(domain.Change{Col: 2, Type: domain.Upper, Bound: 8}, domain.ReasonBranching)

	sep := ImpliedBoundSeparator{Graph: g, Global: global}
	got := sep.Separate(local, []float64{5, 0.2, 4})
	want := []cutpool.Cut{
		// x0 <= 10*y1 over the global range of x0.
		{SparseRow: mipmodel.SparseRow{Inds: []int{0, 1}, Vals: []float64{1, -10}}, RHS: 0, Global: true},
		// x2 <= 8*y1 only holds below the local bound of x2.
		{SparseRow: mipmodel.SparseRow{Inds: []int{1, 2}, Vals: []float64{-8, 1}}, RHS: 0, ScopePos: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Separate() returned with unexpected diff (-want+got);\n%s", diff)
	}
}

// exclusivePair is max x + y subject to 2x + 2y <= 3 over binaries.
func exclusivePair(t *testing.T) *mipmodel.Model {
	return mustModel(t, func(b *mipmodel.Builder) {
		x := b.NewBoolVar()
		y := b.NewBoolVar()
		b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 2), 3)
		b.Maximize(mipmodel.NewLinearExpr().AddSum(x, y))
	})
}

func TestSeparation_RunExcludesBothAtOne(t *testing.T) {
	m := exclusivePair(t)
	checker := invariant.NewChecker([]float64{1, 0}, false)
	pool := cutpool.NewCutPool(0, checker)
	cliques := cutpool.NewCliqueTable(m, checker)
	if got := cliques.ExtractCliques(); got != 1 {
		t.Fatalf("ExtractCliques() = %v, want 1", got)
	}
	d := domain.New(m)
	d.AddPropagator(pool)
	d.AddPropagator(cliques)
	relax := lprelax.New(m, pool)
	if got := relax.Solve(d); got != lprelax.StatusOptimal {
		t.Fatalf("Solve() = %v, want %v", got, lprelax.StatusOptimal)
	}
	if got := relax.Objective(); math.Abs(got+1.5) > 1e-7 {
		t.Fatalf("Objective() = %v before separation, want -1.5", got)
	}

	sep := New(pool, CliqueSeparator{Table: cliques}, CoverSeparator{Model: m})
	if got := sep.Run(d, relax, 5); got != lprelax.StatusOptimal {
		t.Fatalf("Run() = %v, want %v", got, lprelax.StatusOptimal)
	}
	if got := relax.Objective(); math.Abs(got+1) > 1e-7 {
		t.Errorf("Objective() = %v after separation, want -1", got)
	}
	if got := len(relax.Fractionals()); got != 0 {
		t.Errorf("len(Fractionals()) = %v after separation, want 0", got)
	}

	cuts := pool.Cuts()
	if len(cuts) != 1 {
		t.Fatalf("pool holds %d cuts, want 1", len(cuts))
	}
	if diff := cmp.Diff([]float64{1, 1}, cuts[0].Vals); diff != "" {
		t.Errorf("cut returned with unexpected diff (-want+got);\n%s", diff)
	}
	if viol := cuts[0].Violation([]float64{1, 1}); viol <= 0 {
		t.Errorf("cut violation at (1, 1) = %v, want > 0", viol)
	}
	if got := checker.Violations(); len(got) != 0 {
		t.Errorf("Violations() = %v, want none", got)
	}
	want := Stats{Rounds: 1, CutsFound: 2, CutsAdded: 1}
	if diff := cmp.Diff(want, sep.Stats()); diff != "" {
		t.Errorf("Stats() returned with unexpected diff (-want+got);\n%s", diff)
	}
}

func TestSeparation_SeparateOrdersByEfficacy(t *testing.T) {
	m := mustModel(t, func(b *mipmodel.Builder) {
		x := []mipmodel.Var{b.NewBoolVar(), b.NewBoolVar(), b.NewBoolVar()}
		b.AddLessOrEqual(mipmodel.NewLinearExpr().AddWeightedSum(x, []float64{3, 2, 4}), 6)
	})
	cliques := cutpool.NewCliqueTable(m, nil)
	cliques.AddClique([]cutpool.Literal{{Col: 1, Val: true}, {Col: 2, Val: true}})
	cliques.AddClique([]cutpool.Literal{{Col: 0, Val: true}, {Col: 2, Val: true}})
	sep := New(cutpool.NewCutPool(0, nil), CliqueSeparator{Table: cliques})

	got := sep.Separate(nil, []float64{1, 0.5, 0.75})
	var effs []float64
	for i := range got {
		effs = append(effs, Efficacy(&got[i], []float64{1, 0.5, 0.75}))
	}
	want := []float64{0.75 / math.Sqrt2, 0.25 / math.Sqrt2}
	if diff := cmp.Diff(want, effs, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Separate() efficacies returned with unexpected diff (-want+got);\n%s", diff)
	}
	if got[0].Origin != "clique" {
		t.Errorf("Separate() origin = %q, want %q", got[0].Origin, "clique")
	}
}
