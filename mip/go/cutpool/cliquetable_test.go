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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

func threeBinaries(t *testing.T, rows func(b *mipmodel.Builder, x []mipmodel.Var)) *mipmodel.Model {
	t.Helper()
	return buildModel(t, func(b *mipmodel.Builder) {
		// x[3] is continuous.
		x := []mipmodel.Var{b.NewBoolVar(), b.NewBoolVar(), b.NewBoolVar(), b.NewVar(0, 1)}
		rows(b, x)
	})
}

func TestCliqueTable_AddClique(t *testing.T) {
	m := threeBinaries(t, func(*mipmodel.Builder, []mipmodel.Var) {})
	ct := NewCliqueTable(m, nil)

	tests := []struct {
		name string
		lits []Literal
		want bool
	}{
		{name: "Valid", lits: []Literal{{Col: 1, Val: true}, {Col: 0, Val: false}}, want: true},
		{name: "Duplicate", lits: []Literal{{Col: 0, Val: false}, {Col: 1, Val: true}}, want: false},
		{name: "Single", lits: []Literal{{Col: 2, Val: true}}, want: false},
		{name: "RepeatedColumn", lits: []Literal{{Col: 2, Val: true}, {Col: 2, Val: false}}, want: false},
		{name: "NotBinary", lits: []Literal{{Col: 2, Val: true}, {Col: 3, Val: true}}, want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ct.AddClique(test.lits); got != test.want {
				t.Errorf("AddClique(%v) = %v, want %v", test.lits, got, test.want)
			}
		})
	}

	want := [][]Literal{{{Col: 0, Val: false}, {Col: 1, Val: true}}}
	if diff := cmp.Diff(want, ct.Cliques()); diff != "" {
		t.Errorf("Cliques() returned with unexpected diff (-want+got);\n%s", diff)
	}
	if diff := cmp.Diff([]int{0}, ct.CliquesOf(Literal{Col: 1, Val: true})); diff != "" {
		t.Errorf("CliquesOf() returned with unexpected diff (-want+got);\n%s", diff)
	}
}

func TestCliqueCut(t *testing.T) {
	gotRow, gotRHS := CliqueCut([]Literal{{Col: 0, Val: false}, {Col: 1, Val: true}, {Col: 2, Val: false}})
	want := row([]int{0, 1, 2}, []float64{-1, 1, -1})
	if diff := cmp.Diff(want, gotRow); diff != "" {
		t.Errorf("CliqueCut() returned with unexpected diff (-want+got);\n%s", diff)
	}
	if gotRHS != -1 {
		t.Errorf("CliqueCut() rhs = %v, want -1", gotRHS)
	}
}

func TestCliqueTable_ExtractCliques(t *testing.T) {
	tests := []struct {
		name string
		rows func(b *mipmodel.Builder, x []mipmodel.Var)
		want [][]Literal
	}{
		{
			name: "PairExceedsCapacity",
			rows: func(b *mipmodel.Builder, x []mipmodel.Var) {
				b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x[0], 2).AddTerm(x[1], 2), 3)
			},
			want: [][]Literal{{{Col: 0, Val: true}, {Col: 1, Val: true}}},
		},
		{
			name: "LargestCoefficients",
			rows: func(b *mipmodel.Builder, x []mipmodel.Var) {
				b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x[0], 3).AddTerm(x[1], 2).AddTerm(x[2], 4), 6)
			},
			want: [][]Literal{{{Col: 0, Val: true}, {Col: 2, Val: true}}},
		},
		{
			name: "Complemented",
			rows: func(b *mipmodel.Builder, x []mipmodel.Var) {
				// x0 <= x1.
				b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x[0], 1).AddTerm(x[1], -1), 0)
			},
			want: [][]Literal{{{Col: 0, Val: true}, {Col: 1, Val: false}}},
		},
		{
			name: "GreaterOrEqual",
			rows: func(b *mipmodel.Builder, x []mipmodel.Var) {
				// At least one of x1, x2 is one.
				b.AddGreaterOrEqual(mipmodel.NewLinearExpr().AddSum(x[1], x[2]), 1)
			},
			want: [][]Literal{{{Col: 1, Val: false}, {Col: 2, Val: false}}},
		},
		{
			name: "NoClique",
			rows: func(b *mipmodel.Builder, x []mipmodel.Var) {
				b.AddLessOrEqual(mipmodel.NewLinearExpr().AddSum(x[0], x[1], x[2]), 2)
			},
		},
		{
			name: "ContinuousColumn",
			rows: func(b *mipmodel.Builder, x []mipmodel.Var) {
				b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x[0], 2).AddTerm(x[3], 2), 3)
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ct := NewCliqueTable(threeBinaries(t, test.rows), nil)
			ct.ExtractCliques()
			if diff := cmp.Diff(test.want, ct.Cliques()); diff != "" {
				t.Errorf("ExtractCliques() returned with unexpected diff (-want+got);\n%s", diff)
			}
		})
	}
}

func TestCliqueTable_Propagate(t *testing.T) {
	m := threeBinaries(t, func(*mipmodel.Builder, []mipmodel.Var) {})
	ct := NewCliqueTable(m, nil)
	ct.AddClique([]Literal{{Col: 0, Val: true}, {Col: 1, Val: true}, {Col: 2, Val: false}})
	d := domain.New(m, domain.WithoutRowPropagation())
	d.AddPropagator(ct)

	pos := d.Len()
	d.ChangeBound(domain.Change{Col: 0, Type: domain.Lower, Bound: 1}, domain.ReasonBranching)
	d.Propagate()
	if diff := cmp.Diff([]float64{1, 0, 1, 1}, d.Upper()); diff != "" {
		t.Errorf("Propagate() upper bounds returned with unexpected diff (-want+got);\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 0, 1, 0}, d.Lower()); diff != "" {
		t.Errorf("Propagate() lower bounds returned with unexpected diff (-want+got);\n%s", diff)
	}

	d.Backtrack(pos)
	d.ChangeBound(domain.Change{Col: 1, Type: domain.Lower, Bound: 1}, domain.ReasonBranching)
	d.ChangeBound(domain.Change{Col: 2, Type: domain.Upper, Bound: 0}, domain.ReasonBranching)
	d.Propagate()
	if !d.Infeasible() {
		t.Errorf("Infeasible() = false with two true literals in a clique, want true")
	}
}

func TestCliqueTable_ExtractedCliquesAreValid(t *testing.T) {
	m := threeBinaries(t, func(b *mipmodel.Builder, x []mipmodel.Var) {
		b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x[0], 3).AddTerm(x[1], 2).AddTerm(x[2], 4), 6)
		b.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x[1], 5).AddTerm(x[2], -2), 3)
	})
	// Every feasible 0/1 point must satisfy every clique.
	for mask := 0; mask < 8; mask++ {
		sol := []float64{float64(mask & 1), float64(mask >> 1 & 1), float64(mask >> 2 & 1), 0}
		if !m.Feasible(sol, 1e-9) {
			continue
		}
		checker := invariant.NewChecker(sol, false)
		ct := NewCliqueTable(m, checker)
		if got := ct.ExtractCliques(); got == 0 {
			t.Fatalf("ExtractCliques() = 0, want at least one clique")
		}
		if got := checker.Violations(); len(got) != 0 {
			t.Errorf("solution %v: Violations() = %v, want none", sol, got)
		}
	}
}
