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
	"github.com/branchcut/mipsearch/mip/go/cutpool"
	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/pseudocost"
	"github.com/branchcut/mipsearch/mip/go/search"
)

// Options configures a Solver. Start from DefaultOptions. A zero
// PlungeNodeCap, DisplayFrequency, IterationLimitMultiplier, MinIterationLimit,
// CutAgeLimit, FeasibilityTolerance or PseudocostDecayFloor selects the default.
// Zero separation rounds, probing limit or gap tolerances are taken as given
// and turn the feature off.
type Options struct {
	// PlungeNodeCap is the number of nodes after which a plunge returns to the
	// queue.
	PlungeNodeCap int64
	// DisplayFrequency is the number of leaves between two progress reports.
	DisplayFrequency int64
	// IterationLimitMultiplier scales the average number of relaxation
	// iterations per node into the iteration limit of diving solves.
	IterationLimitMultiplier float64
	// MinIterationLimit is the smallest iteration limit of diving solves.
	MinIterationLimit int
	// CutAgeLimit is the number of separation rounds a cut may stay inactive.
	CutAgeLimit int
	// RootSeparationRounds and NodeSeparationRounds cap the separation rounds
	// at the root and at nodes installed from the queue.
	RootSeparationRounds int
	NodeSeparationRounds int
	// ProbingLimit is the number of binary columns probed at the root.
	ProbingLimit int

	FeasibilityTolerance float64
	// The search stops once the absolute or the relative gap falls below these
	// values.
	AbsoluteGap float64
	RelativeGap float64

	// BranchingRule selects branching columns, search.PseudocostRule if nil.
	BranchingRule search.BranchingRule
	// Scorer combines the pseudocost gains, pseudocost.ProductScorer if nil.
	Scorer pseudocost.Scorer
	// PseudocostDecayFloor is the minimal weight of a new pseudocost
	// observation. A negative value keeps a plain running mean.
	PseudocostDecayFloor float64

	// Limiter stops the search. It is queried between plunges.
	Limiter Limiter
	// Reporter receives progress every DisplayFrequency leaves and once at the
	// end. LogReporter if nil.
	Reporter Reporter
	// Validator checks internal invariants, invariant.Disabled() if nil.
	Validator invariant.Validator
	// Engine solves the relaxations, lprelax.SimplexEngine if nil.
	Engine lprelax.Engine
	// WarmStartBasis is a serialized lprelax.Basis for the root relaxation.
	WarmStartBasis []byte
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		PlungeNodeCap:            1000,
		DisplayFrequency:         100,
		IterationLimitMultiplier: 10,
		MinIterationLimit:        1000,
		CutAgeLimit:              cutpool.DefaultAgeLimit,
		RootSeparationRounds:     20,
		NodeSeparationRounds:     5,
		ProbingLimit:             100,
		FeasibilityTolerance:     1e-6,
		AbsoluteGap:              1e-6,
		RelativeGap:              1e-4,
		PseudocostDecayFloor:     pseudocost.DefaultDecayFloor,
	}
}

// withDefaults fills the zero fields of `o`.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PlungeNodeCap <= 0 {
		o.PlungeNodeCap = d.PlungeNodeCap
	}
	if o.DisplayFrequency <= 0 {
		o.DisplayFrequency = d.DisplayFrequency
	}
	if o.IterationLimitMultiplier <= 0 {
		o.IterationLimitMultiplier = d.IterationLimitMultiplier
	}
	if o.MinIterationLimit <= 0 {
		o.MinIterationLimit = d.MinIterationLimit
	}
	if o.CutAgeLimit <= 0 {
		o.CutAgeLimit = d.CutAgeLimit
	}
	if o.RootSeparationRounds < 0 {
		o.RootSeparationRounds = 0
	}
	if o.NodeSeparationRounds < 0 {
		o.NodeSeparationRounds = 0
	}
	if o.ProbingLimit < 0 {
		o.ProbingLimit = 0
	}
	if o.FeasibilityTolerance <= 0 {
		o.FeasibilityTolerance = d.FeasibilityTolerance
	}
	switch {
	case o.PseudocostDecayFloor == 0:
		o.PseudocostDecayFloor = d.PseudocostDecayFloor
	case o.PseudocostDecayFloor < 0:
		o.PseudocostDecayFloor = 0
	}
	if o.BranchingRule == nil {
		o.BranchingRule = search.PseudocostRule{}
	}
	if o.Scorer == nil {
		o.Scorer = pseudocost.ProductScorer{}
	}
	if o.Reporter == nil {
		o.Reporter = LogReporter{}
	}
	if o.Validator == nil {
		o.Validator = invariant.Disabled()
	}
	if o.Engine == nil {
		o.Engine = lprelax.SimplexEngine{}
	}
	return o
}
