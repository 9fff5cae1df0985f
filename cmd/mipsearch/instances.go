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

package main

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

var generators = map[string]func(n int, r *rand.Rand) *mipmodel.Builder{
	"knapsack":   knapsack,
	"setpacking": setPacking,
	"assignment": assignment,
}

func instanceKinds() []string {
	var kinds []string
	for k := range generators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// generate returns the instance `kind` of size `n` drawn from `seed`.
func generate(kind string, n int, seed int64) (*mipmodel.Model, error) {
	gen, ok := generators[kind]
	if !ok {
		return nil, fmt.Errorf("unknown instance kind %q, want one of %v", kind, instanceKinds())
	}
	if n <= 0 {
		return nil, fmt.Errorf("instance size must be positive, got %d", n)
	}
	b := gen(n, rand.New(rand.NewSource(seed)))
	b.SetName(fmt.Sprintf("%s-%d-%d", kind, n, seed))
	m, err := b.Model()
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate the MIP model: %w", err)
	}
	return m, nil
}

// knapsack maximizes the value of `n` items under a capacity of half their
// total weight.
func knapsack(n int, r *rand.Rand) *mipmodel.Builder {
	b := mipmodel.NewBuilder()
	xs := make([]mipmodel.Var, n)
	values := make([]float64, n)
	weights := make([]float64, n)
	var total float64
	for i := range xs {
		xs[i] = b.NewBoolVar().WithName(fmt.Sprintf("item_%d", i))
		weights[i] = float64(1 + r.Intn(20))
		values[i] = weights[i] + float64(r.Intn(10))
		total += weights[i]
	}
	b.AddLessOrEqual(mipmodel.NewLinearExpr().AddWeightedSum(xs, weights), float64(int(total/2)))
	b.Maximize(mipmodel.NewLinearExpr().AddWeightedSum(xs, values))
	return b
}

// setPacking maximizes the value of `n` sets, `n` random conflicts of two to
// four sets allowing at most one of them.
func setPacking(n int, r *rand.Rand) *mipmodel.Builder {
	b := mipmodel.NewBuilder()
	xs := make([]mipmodel.Var, n)
	values := make([]float64, n)
	for i := range xs {
		xs[i] = b.NewBoolVar().WithName(fmt.Sprintf("set_%d", i))
		values[i] = float64(1 + r.Intn(10))
	}
	for c := 0; c < n; c++ {
		k := 2 + r.Intn(3)
		if k > n {
			k = n
		}
		var conflict []mipmodel.Var
		for _, j := range r.Perm(n)[:k] {
			conflict = append(conflict, xs[j])
		}
		if len(conflict) > 1 {
			b.AddAtMostOne(conflict...)
		}
	}
	b.Maximize(mipmodel.NewLinearExpr().AddWeightedSum(xs, values))
	return b
}

// assignment assigns `n` workers to `n` tasks at minimum cost.
func assignment(n int, r *rand.Rand) *mipmodel.Builder {
	b := mipmodel.NewBuilder()
	x := make([][]mipmodel.Var, n)
	obj := mipmodel.NewLinearExpr()
	for i := range x {
		x[i] = make([]mipmodel.Var, n)
		for j := range x[i] {
			x[i][j] = b.NewBoolVar().WithName(fmt.Sprintf("x_%d_%d", i, j))
			obj.AddTerm(x[i][j], float64(1+r.Intn(20)))
		}
	}
	for i := 0; i < n; i++ {
		b.AddEquality(mipmodel.NewLinearExpr().AddSum(x[i]...), 1)
		task := mipmodel.NewLinearExpr()
		for j := 0; j < n; j++ {
			task.AddTerm(x[j][i], 1)
		}
		b.AddEquality(task, 1)
	}
	b.Minimize(obj)
	return b
}
