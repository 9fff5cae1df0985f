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

// Package search implements the depth-first part of the branch-and-bound tree
// search.
//
// A Search holds a stack of nodes over a local copy of the global domain. The
// bottom node is installed from the node queue; every other node is a child
// created by branching its predecessor. Each node remembers the length of the
// domain change stack at which its branching decision was applied, so that the
// sibling is reached by truncating the change stack and applying the flipped
// decision.
package search

import (
	"math"

	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/lprelax"
	"github.com/branchcut/mipsearch/mip/go/nodequeue"
)

// NodeResult is the outcome of evaluating or branching a node.
type NodeResult int8

const (
	// NodeOpen is an evaluated node that must be branched.
	NodeOpen NodeResult = iota
	// NodeBranched is a node whose first child is installed.
	NodeBranched
	// NodePruned is a node proven infeasible, bound exceeding or integer
	// feasible.
	NodePruned
	// NodeRequeued is a node whose relaxation hit the iteration limit. It is
	// handed to the queue by OpenNodesToQueue.
	NodeRequeued
	// NodeAbandoned is a node given up after a relaxation failure.
	NodeAbandoned
)

func (r NodeResult) String() string {
	switch r {
	case NodeOpen:
		return "open"
	case NodeBranched:
		return "branched"
	case NodePruned:
		return "pruned"
	case NodeRequeued:
		return "requeued"
	case NodeAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// openSubtrees values of a node.
const (
	subtreesDone = 0
	// One child is done or on the stack, the other child is still open.
	subtreesOne = 1
	// The node itself is unexplored.
	subtreesAll = 2
)

type nodeData struct {
	lowerBound   float64
	estimate     float64
	depth        int
	openSubtrees int8
	evaluated    bool

	// Last optimal relaxation of the node.
	hasSolution bool
	lpObjective float64

	// Set when the node is branched.
	branching     domain.Change
	branchPos     int
	otherEstimate float64
	otherDelta    float64
	// pcBranch is false when the branching was not on a fractional value, in
	// which case the children give no pseudocost observation.
	pcBranch bool
	basis    *lprelax.Basis

	// Pseudocost observation the node contributes once solved; pcCol is -1 if
	// none.
	pcCol     int
	pcDelta   float64
	parentObj float64
}

// Search is the search controller.
type Search struct {
	shared *Shared
	rule   BranchingRule
	local  *domain.Domain
	nodes  []nodeData

	requeued []nodequeue.OpenNode

	// Counters not yet flushed to the shared state.
	numNodes        int64
	treeWeight      float64
	abandonedWeight float64
}

// New returns a Search without installed node. A nil rule selects
// PseudocostRule.
func New(shared *Shared, rule BranchingRule) *Search {
	if rule == nil {
		rule = PseudocostRule{}
	}
	return &Search{
		shared: shared,
		rule:   rule,
		local:  shared.Global.Clone(),
	}
}

// LocalDomain returns the domain of the current node.
func (s *Search) LocalDomain() *domain.Domain {
	return s.local
}

// ResetLocalDomain replaces the local domain by a copy of the global domain. It
// must only be called without installed node.
func (s *Search) ResetLocalDomain() {
	s.shared.Validator.Assertf(!s.HasNode(), "local domain reset with %d nodes on the stack", len(s.nodes))
	s.local = s.shared.Global.Clone()
	s.shared.Pool.Backtrack(0)
}

// HasNode reports whether a node is installed.
func (s *Search) HasNode() bool {
	return len(s.nodes) > 0
}

// Depth returns the depth of the current node, -1 if none.
func (s *Search) Depth() int {
	if !s.HasNode() {
		return -1
	}
	return s.top().depth
}

// CurrentNodePruned reports whether the current node is closed, true if there is
// none.
func (s *Search) CurrentNodePruned() bool {
	return !s.HasNode() || s.top().openSubtrees == subtreesDone
}

// PruneCurrentNode closes the current node, for example after separation
// proved its domain infeasible.
func (s *Search) PruneCurrentNode() {
	if s.CurrentNodePruned() {
		return
	}
	s.prune(s.top())
}

// CurrentEstimate returns the estimate of the current node, +Inf if none.
func (s *Search) CurrentEstimate() float64 {
	if !s.HasNode() {
		return math.Inf(1)
	}
	return s.top().estimate
}

// CurrentLowerBound returns the lower bound of the current node, +Inf if none.
func (s *Search) CurrentLowerBound() float64 {
	if !s.HasNode() {
		return math.Inf(1)
	}
	return s.top().lowerBound
}

func (s *Search) top() *nodeData {
	return &s.nodes[len(s.nodes)-1]
}

// InstallNode makes `n` the current node: the local domain is rolled back to the
// global bounds and the changes of `n` are applied, and the next relaxation
// solve starts from the stored basis.
func (s *Search) InstallNode(n nodequeue.OpenNode) {
	s.shared.Validator.Assertf(!s.HasNode(), "node installed over %d nodes on the stack", len(s.nodes))
	s.nodes = s.nodes[:0]
	s.local.Backtrack(0)
	s.shared.Pool.Backtrack(0)
	s.local.SetDomainChangeStack(n.Changes)
	s.shared.Relax.RecoverBasis()
	s.nodes = append(s.nodes, nodeData{
		lowerBound:   n.LowerBound,
		estimate:     n.Estimate,
		depth:        n.Depth,
		openSubtrees: subtreesAll,
		pcCol:        -1,
	})
}

// EvaluateNode propagates the local domain and solves the relaxation of the
// current node. Integer feasible relaxation solutions are offered as incumbent.
// Calling it again on an open node solves the relaxation again, for example
// after cuts were added.
func (s *Search) EvaluateNode() NodeResult {
	if !s.HasNode() {
		s.shared.Validator.Assertf(false, "EvaluateNode called without installed node")
		return NodePruned
	}
	n := s.top()
	if n.openSubtrees == subtreesDone {
		return NodePruned
	}
	first := !n.evaluated
	if first {
		n.evaluated = true
		s.numNodes++
	}
	if n.lowerBound >= s.shared.UpperLimit {
		return s.prune(n)
	}
	s.local.Propagate()
	if s.local.Infeasible() {
		return s.prune(n)
	}

	relax := s.shared.Relax
	switch status := relax.Solve(s.local); status {
	case lprelax.StatusOptimal:
	case lprelax.StatusInfeasible:
		return s.prune(n)
	case lprelax.StatusIterationLimit:
		if relax.IterationLimit() > 0 {
			return s.requeue(n)
		}
		return s.failed(n, status)
	default:
		return s.failed(n, status)
	}

	obj := relax.Objective()
	if first && n.pcCol >= 0 {
		s.shared.Pseudocost.AddObservation(n.pcCol, n.pcDelta, obj-n.parentObj)
	}
	n.hasSolution = true
	n.lpObjective = obj
	if obj > n.lowerBound {
		n.lowerBound = obj
	}
	fracs := relax.Fractionals()
	if len(fracs) == 0 {
		if s.addIncumbent(relax.Solution()) {
			return s.prune(n)
		}
		// Rounding within the integrality tolerance broke a row. Nothing is
		// proven about the node, so it is split like a node without solution.
		n.hasSolution = false
		if s.splitColumn() >= 0 {
			log.V(1).Infof("rounded relaxation solution of node at depth %d violates the model, splitting", n.depth)
			return NodeOpen
		}
		return s.failed(n, lprelax.StatusError)
	}
	if n.lowerBound >= s.shared.UpperLimit {
		return s.prune(n)
	}
	est := n.lowerBound
	for _, f := range fracs {
		est += s.shared.Pseudocost.Estimate(f.Col, f.Value)
	}
	n.estimate = est
	return NodeOpen
}

// addIncumbent offers `x` as incumbent and reports whether its rounding is
// feasible.
func (s *Search) addIncumbent(x []float64) bool {
	accepted, feasible := s.shared.AddIncumbent(x)
	if accepted {
		s.local.SetObjectiveCutoff(s.shared.UpperLimit)
	}
	return feasible
}

func (s *Search) prune(n *nodeData) NodeResult {
	n.openSubtrees = subtreesDone
	s.treeWeight += nodequeue.TreeWeight(n.depth)
	return NodePruned
}

func (s *Search) requeue(n *nodeData) NodeResult {
	log.V(2).Infof("node at depth %d hit the iteration limit, moving it to the queue", n.depth)
	s.requeued = append(s.requeued, nodequeue.OpenNode{
		Changes:    s.local.ReducedStack(),
		LowerBound: n.lowerBound,
		Estimate:   n.estimate,
		Depth:      n.depth,
	})
	n.openSubtrees = subtreesDone
	return NodeRequeued
}

// failed handles a relaxation that could not be solved. The node keeps its lower
// bound and is split on an unfixed integer column, or given up if there is none.
func (s *Search) failed(n *nodeData, status lprelax.Status) NodeResult {
	n.hasSolution = false
	if s.splitColumn() >= 0 {
		log.Warningf("relaxation of node at depth %d ended with status %v, splitting without solution", n.depth, status)
		return NodeOpen
	}
	log.Warningf("relaxation of node at depth %d ended with status %v, abandoning node with bound %v", n.depth, status, n.lowerBound)
	n.openSubtrees = subtreesDone
	s.abandonedWeight += nodequeue.TreeWeight(n.depth)
	s.shared.AbandonedBound = math.Min(s.shared.AbandonedBound, n.lowerBound)
	s.shared.NumAbandoned++
	return NodeAbandoned
}

// splitColumn returns the unfixed integer column with the smallest range, -1 if
// every integer column is fixed.
func (s *Search) splitColumn() int {
	best, bestRange := -1, math.Inf(1)
	for j := 0; j < s.local.NumCols(); j++ {
		if !s.shared.Model.IsIntegral(j) || s.local.IsFixed(j) {
			continue
		}
		if r := s.local.ColUpper(j) - s.local.ColLower(j); r < bestRange {
			best, bestRange = j, r
		}
	}
	return best
}

// Branch creates the two children of the current open node and installs the
// more promising one. The other child stays on the stack as an open subtree of
// the node.
func (s *Search) Branch() NodeResult {
	if s.CurrentNodePruned() {
		s.shared.Validator.Assertf(false, "Branch called without open node")
		return NodePruned
	}
	n := s.top()
	var first, second domain.Change
	var firstEst, secondEst, firstDelta, secondDelta float64
	pcBranch := n.hasSolution
	if n.hasSolution {
		fracs := s.shared.Relax.Fractionals()
		if len(fracs) == 0 {
			s.shared.Validator.Assertf(false, "Branch called on an integral relaxation solution")
			return s.prune(n)
		}
		f := fracs[s.rule.Select(s.shared.Pseudocost, fracs)]
		pc := s.shared.Pseudocost
		downGain, upGain := pc.Gains(f.Col, f.Value)
		base := n.estimate - pc.Estimate(f.Col, f.Value)
		down := domain.Change{Col: f.Col, Type: domain.Upper, Bound: math.Floor(f.Value)}
		up := domain.Change{Col: f.Col, Type: domain.Lower, Bound: math.Ceil(f.Value)}
		if upGain <= downGain {
			first, firstEst, firstDelta = up, base+upGain, up.Bound-f.Value
			second, secondEst, secondDelta = down, base+downGain, down.Bound-f.Value
		} else {
			first, firstEst, firstDelta = down, base+downGain, down.Bound-f.Value
			second, secondEst, secondDelta = up, base+upGain, up.Bound-f.Value
		}
	} else {
		j := s.splitColumn()
		if j < 0 {
			return s.failed(n, lprelax.StatusError)
		}
		lo, hi := s.local.ColLower(j), s.local.ColUpper(j)
		var mid float64
		switch {
		case !math.IsInf(lo, -1) && !math.IsInf(hi, 1):
			mid = math.Floor((lo + hi) / 2)
		case !math.IsInf(lo, -1):
			mid = lo
		case !math.IsInf(hi, 1):
			mid = hi - 1
		}
		first = domain.Change{Col: j, Type: domain.Upper, Bound: mid}
		second = first.Flip()
		firstEst, secondEst = n.estimate, n.estimate
	}
	s.shared.Validator.Assertf(second == first.Flip(), "children %v and %v are not complementary", first, second)

	n.branching = first
	n.branchPos = s.local.Len()
	n.otherEstimate = secondEst
	n.otherDelta = secondDelta
	n.pcBranch = pcBranch
	n.basis = s.shared.Relax.Basis()
	n.openSubtrees = subtreesOne
	child := s.child(n, firstEst, firstDelta)
	s.local.ChangeBound(first, domain.ReasonBranching)
	s.nodes = append(s.nodes, child)
	return NodeBranched
}

func (s *Search) child(parent *nodeData, estimate, delta float64) nodeData {
	c := nodeData{
		lowerBound:   parent.lowerBound,
		estimate:     estimate,
		depth:        parent.depth + 1,
		openSubtrees: subtreesAll,
		pcCol:        -1,
	}
	if parent.pcBranch {
		c.pcCol = parent.branching.Col
		c.pcDelta = delta
		c.parentObj = parent.lpObjective
	}
	return c
}

// Dive evaluates and branches into the preferred child until a node is closed.
func (s *Search) Dive() NodeResult {
	for {
		r := s.EvaluateNode()
		if r != NodeOpen {
			return r
		}
		if r = s.Branch(); r != NodeBranched {
			return r
		}
	}
}

// Backtrack installs the open sibling closest to the top of the stack. It
// returns false when no open subtree remains, in which case the local domain is
// back at the global bounds.
func (s *Search) Backtrack() bool {
	return s.backtrack(true)
}

func (s *Search) backtrack(recoverBasis bool) bool {
	for {
		for s.HasNode() && s.top().openSubtrees == subtreesDone {
			s.nodes = s.nodes[:len(s.nodes)-1]
		}
		if !s.HasNode() {
			s.local.Backtrack(0)
			s.shared.Pool.Backtrack(0)
			return false
		}
		n := s.top()
		if n.openSubtrees == subtreesAll {
			// The current node has not been closed yet.
			return true
		}
		s.local.Backtrack(n.branchPos)
		s.shared.Pool.Backtrack(n.branchPos)
		flipped := n.branching.Flip()
		n.openSubtrees = subtreesDone
		child := s.child(n, n.otherEstimate, n.otherDelta)
		basis := n.basis
		s.local.ChangeBound(flipped, domain.ReasonBranching)
		s.nodes = append(s.nodes, child)

		c := s.top()
		if c.lowerBound >= s.shared.UpperLimit {
			s.prune(c)
			continue
		}
		s.local.Propagate()
		if s.local.Infeasible() {
			s.prune(c)
			continue
		}
		if recoverBasis && basis != nil {
			if err := s.shared.Relax.SetStoredBasis(basis); err != nil {
				log.Warningf("discarding the basis of the parent node: %v", err)
				s.shared.Relax.InvalidateBasis()
			} else {
				s.shared.Relax.RecoverBasis()
			}
		}
		return true
	}
}

// OpenNodesToQueue moves every open subtree of the stack, and the nodes that hit
// the iteration limit, to the queue. Afterwards no node is installed.
func (s *Search) OpenNodesToQueue() {
	if s.HasNode() && s.top().openSubtrees == subtreesDone {
		s.backtrack(false)
	}
	for s.HasNode() {
		n := s.top()
		if n.lowerBound >= s.shared.UpperLimit {
			s.treeWeight += nodequeue.TreeWeight(n.depth)
		} else {
			s.shared.Queue.Push(nodequeue.OpenNode{
				Changes:    s.local.ReducedStack(),
				LowerBound: n.lowerBound,
				Estimate:   n.estimate,
				Depth:      n.depth,
			})
		}
		n.openSubtrees = subtreesDone
		s.backtrack(false)
	}
	for _, n := range s.requeued {
		if n.LowerBound >= s.shared.UpperLimit {
			s.treeWeight += nodequeue.TreeWeight(n.Depth)
			continue
		}
		s.shared.Queue.Push(n)
	}
	s.requeued = s.requeued[:0]
}

// FlushStatistics adds the counters of the search to the shared state.
func (s *Search) FlushStatistics() {
	s.shared.NumNodes += s.numNodes
	s.shared.PrunedTreeWeight += s.treeWeight
	s.shared.AbandonedWeight += s.abandonedWeight
	s.numNodes = 0
	s.treeWeight = 0
	s.abandonedWeight = 0
}
