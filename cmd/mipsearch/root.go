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
	"flag"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/branchcut/mipsearch/mip/go/mipsolver"
	"github.com/branchcut/mipsearch/mip/go/search"
)

// config holds the flags shared by the subcommands.
type config struct {
	seed        int64
	nodeLimit   int64
	timeLimit   time.Duration
	branching   string
	plungeCap   int64
	jsonOutput  bool
	metricsAddr string
	debug       bool
}

// options maps the flags onto solver options.
func (c *config) options() (mipsolver.Options, error) {
	opts := mipsolver.DefaultOptions()
	switch c.branching {
	case "pseudocost":
		opts.BranchingRule = search.PseudocostRule{}
	case "mostfractional":
		opts.BranchingRule = search.MostFractionalRule{}
	default:
		return opts, fmt.Errorf("unknown branching rule %q", c.branching)
	}
	if c.plungeCap > 0 {
		opts.PlungeNodeCap = c.plungeCap
	}
	var limits []mipsolver.Limiter
	if c.nodeLimit > 0 {
		limits = append(limits, mipsolver.NodeLimit(c.nodeLimit))
	}
	if c.timeLimit > 0 {
		limits = append(limits, mipsolver.TimeLimit(c.timeLimit))
	}
	if len(limits) > 0 {
		opts.Limiter = mipsolver.AnyLimit(limits...)
	}
	return opts, nil
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	cmd := &cobra.Command{
		Use:   "mipsearch",
		Short: "Branch-and-cut search for mixed-integer linear models",
		Long: `mipsearch generates mixed-integer models and solves them with a
branch-and-cut search: cuts at the root, depth-first plunges and a best-bound
node queue.`,
		SilenceUsage: true,
	}
	flags := cmd.PersistentFlags()
	flags.Int64Var(&cfg.seed, "seed", 1, "Random seed of the generated instance")
	flags.Int64Var(&cfg.nodeLimit, "node-limit", 0, "Stop after this many nodes (0 for no limit)")
	flags.DurationVar(&cfg.timeLimit, "time-limit", 0, "Stop after this duration (0 for no limit)")
	flags.StringVar(&cfg.branching, "branching", "pseudocost", "Branching rule: pseudocost, mostfractional")
	flags.Int64Var(&cfg.plungeCap, "plunge-cap", 0, "Nodes per plunge before returning to the queue (0 for the default)")
	flags.BoolVar(&cfg.jsonOutput, "json", false, "Print the result as JSON")
	flags.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the solve")
	flags.BoolVar(&cfg.debug, "debug", false, "Check internal invariants during the search")
	// glog flags.
	flags.AddGoFlagSet(flag.CommandLine)

	cmd.AddCommand(newSolveCmd(cfg))
	return cmd
}
