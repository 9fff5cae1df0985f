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

// [START program]
// The simple_mip_program command is an example of a simple mixed-integer program.
package main

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/mipsolver"
)

func simpleMipProgram() error {
	model := mipmodel.NewBuilder()

	x := model.NewIntVar(0, 10).WithName("x")
	y := model.NewIntVar(0, 10).WithName("y")
	z := model.NewVar(0, 2.5).WithName("z")

	// 2x + 3y + z <= 12.
	model.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 2).AddTerm(y, 3).AddTerm(z, 1), 12)
	// 3x + 2y <= 12.
	model.AddLessOrEqual(mipmodel.NewLinearExpr().AddTerm(x, 3).AddTerm(y, 2), 12)
	model.Maximize(mipmodel.NewLinearExpr().AddSum(x, y).AddTerm(z, 0.5))

	m, err := model.Model()
	if err != nil {
		return fmt.Errorf("failed to instantiate the MIP model: %w", err)
	}
	solver, err := mipsolver.New(m, mipsolver.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to create the solver: %w", err)
	}
	res := solver.Solve()

	switch res.Status {
	case mipsolver.StatusOptimal, mipsolver.StatusLimitReached:
		if res.Solution == nil {
			fmt.Println("No solution found.")
			break
		}
		for _, v := range []mipmodel.Var{x, y, z} {
			fmt.Printf("%s = %v\n", v.Name(), res.Solution[v.Index()])
		}
		fmt.Printf("objective = %v\n", res.Objective)
	default:
		fmt.Println("Status: ", res.Status)
	}

	return nil
}

func main() {
	if err := simpleMipProgram(); err != nil {
		log.Exitf("simpleMipProgram returned with error: %v", err)
	}
}

// [END program]
