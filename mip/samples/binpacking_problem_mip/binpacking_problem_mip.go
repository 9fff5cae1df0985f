// Copyright 2010-2025 Google LLC
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

// The binpacking_problem_mip command is an example of a bin packing problem where
// slack indicators are linked to the bin loads by big-M rows.
package main

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/mipsolver"
)

const (
	binCapacity   = 100
	slackCapacity = 20
	safeCapacity  = binCapacity - slackCapacity
	numBins       = 5
)

type item struct {
	Cost, Copies float64
}

func binpackingProblemMip() error {
	model := mipmodel.NewBuilder()

	items := []item{{20, 6}, {15, 6}, {30, 4}, {45, 3}}
	numItems := len(items)

	// Main variables.
	x := make([][]mipmodel.Var, numItems)
	for i, item := range items {
		x[i] = make([]mipmodel.Var, numBins)
		for b := 0; b < numBins; b++ {
			x[i][b] = model.NewIntVar(0, item.Copies)
		}
	}

	// Load variables.
	load := make([]mipmodel.Var, numBins)
	for b := 0; b < numBins; b++ {
		load[b] = model.NewVar(0, binCapacity)
	}

	// Slack variables.
	slacks := make([]mipmodel.Var, numBins)
	for b := 0; b < numBins; b++ {
		slacks[b] = model.NewBoolVar()
	}

	// Links load and x.
	for b := 0; b < numBins; b++ {
		expr := mipmodel.NewLinearExpr().AddTerm(load[b], -1)
		for i := 0; i < numItems; i++ {
			expr.AddTerm(x[i][b], items[i].Cost)
		}
		model.AddEquality(expr, 0)
	}

	// Place all items.
	for i := 0; i < numItems; i++ {
		model.AddEquality(mipmodel.NewLinearExpr().AddSum(x[i]...), items[i].Copies)
	}

	// slacks[b] => load[b] <= safeCapacity, as load[b] + slackCapacity*slacks[b] <= binCapacity.
	for b := 0; b < numBins; b++ {
		model.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(load[b], 1).AddTerm(slacks[b], slackCapacity), binCapacity)
	}

	// Maximize sum of slacks.
	model.Maximize(mipmodel.NewLinearExpr().AddSum(slacks...))

	// Solve.
	m, err := model.Model()
	if err != nil {
		return fmt.Errorf("failed to instantiate the MIP model: %w", err)
	}
	solver, err := mipsolver.New(m, mipsolver.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to create the solver: %w", err)
	}
	res := solver.Solve()

	fmt.Println("Status: ", res.Status)
	fmt.Println("Objective: ", res.Objective)
	fmt.Println("Statistics: ")
	fmt.Println("  - nodes         : ", res.Nodes)
	fmt.Println("  - lp iterations : ", res.LpIterations)
	fmt.Println("  - cuts          : ", res.CutsAdded)
	fmt.Println("  - wall time     : ", res.Elapsed)

	return nil
}

func main() {
	if err := binpackingProblemMip(); err != nil {
		log.Exitf("binpackingProblemMip returned with error: %v", err)
	}
}
