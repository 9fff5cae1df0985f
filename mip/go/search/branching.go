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

package search

import (
	"math"

	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/pseudocost"
)

// BranchingRule selects the column to branch on among the fractional columns of
// a relaxation solution.
type BranchingRule interface {
	// Select returns an index into `cands`, which is never empty.
	Select(pc *pseudocost.Estimator, cands []lprelax.Fractional) int
}

// PseudocostRule picks the candidate with the highest pseudocost score.
type PseudocostRule struct{}

// Select implements BranchingRule.
func (PseudocostRule) Select(pc *pseudocost.Estimator, cands []lprelax.Fractional) int {
	best, bestScore := 0, math.Inf(-1)
	for i, c := range cands {
		if score := pc.Score(c.Col, c.Value); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// MostFractionalRule picks the candidate whose value is closest to one half.
type MostFractionalRule struct{}

// Select implements BranchingRule.
func (MostFractionalRule) Select(_ *pseudocost.Estimator, cands []lprelax.Fractional) int {
	best, bestFrac := 0, -1.0
	for i, c := range cands {
		f := c.Value - math.Floor(c.Value)
		if f = math.Min(f, 1-f); f > bestFrac {
			best, bestFrac = i, f
		}
	}
	return best
}
