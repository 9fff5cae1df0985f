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

// The solve_with_limits_sample_mip command is an example of setting a time limit
// and a node limit on the search, and of interrupting it.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/mipsolver"
)

func solveWithLimitsSampleMip() error {
	model := mipmodel.NewBuilder()

	values := []float64{4, 2, 10, 1, 2, 7, 3, 8, 6, 5, 9, 4}
	weights := []float64{12, 2, 4, 1, 1, 6, 3, 7, 5, 4, 8, 3}
	x := make([]mipmodel.Var, len(values))
	for i := range x {
		x[i] = model.NewBoolVar()
	}
	model.AddLessOrEqual(mipmodel.NewLinearExpr().AddWeightedSum(x, weights), 20)
	model.Maximize(mipmodel.NewLinearExpr().AddWeightedSum(x, values))

	m, err := model.Model()
	if err != nil {
		return fmt.Errorf("failed to instantiate the MIP model: %w", err)
	}

	// Sets a time limit of 10 seconds and a node limit of 1000.
	opts := mipsolver.DefaultOptions()
	opts.Limiter = mipsolver.AnyLimit(mipsolver.TimeLimit(10*time.Second), mipsolver.NodeLimit(1000))
	solver, err := mipsolver.New(m, opts)
	if err != nil {
		return fmt.Errorf("failed to create the solver: %w", err)
	}

	// Ctrl-C stops the search with the best solution found so far.
	interrupt := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		<-sig
		close(interrupt)
	}()

	res := solver.SolveInterruptible(interrupt)
	fmt.Printf("Status: %v\n", res.Status)
	if res.Solution != nil {
		fmt.Printf(" objective = %v\n", res.Objective)
		fmt.Printf(" bound     = %v\n", res.BestBound)
		for i, v := range x {
			if res.Solution[v.Index()] > 0.5 {
				fmt.Printf(" item %d\n", i)
			}
		}
	}

	return nil
}

func main() {
	if err := solveWithLimitsSampleMip(); err != nil {
		log.Exitf("solveWithLimitsSampleMip returned with error: %v", err)
	}
}
