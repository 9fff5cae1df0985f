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

// Package nodequeue stores the open nodes of the search.
//
// Every node is kept in two heaps at once: one ordered by lower bound and one by
// estimate. Ties are broken by insertion order so that the search is
// deterministic.
package nodequeue

import (
	"container/heap"
	"math"

	"github.com/branchcut/mipsearch/mip/go/domain"
)

// OpenNode is a subproblem waiting in the queue.
type OpenNode struct {
	// Changes are the bound changes that, applied to the global domain, give the
	// bounds of the node.
	Changes    []domain.Change
	LowerBound float64
	Estimate   float64
	Depth      int
}

// TreeWeight returns the fraction of the search tree below a node of depth
// `depth`.
func TreeWeight(depth int) float64 {
	return math.Ldexp(1, -depth)
}

type entry struct {
	node     OpenNode
	seq      uint64
	boundPos int
	estimPos int
}

type boundHeap []*entry

func (h boundHeap) Len() int { return len(h) }
func (h boundHeap) Less(i, j int) bool {
	if h[i].node.LowerBound != h[j].node.LowerBound {
		return h[i].node.LowerBound < h[j].node.LowerBound
	}
	return h[i].seq < h[j].seq
}
func (h boundHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].boundPos = i
	h[j].boundPos = j
}
func (h *boundHeap) Push(x any) {
	e := x.(*entry)
	e.boundPos = len(*h)
	*h = append(*h, e)
}
func (h *boundHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	e.boundPos = -1
	return e
}

type estimHeap []*entry

func (h estimHeap) Len() int { return len(h) }
func (h estimHeap) Less(i, j int) bool {
	a, b := h[i].node, h[j].node
	if a.Estimate != b.Estimate {
		return a.Estimate < b.Estimate
	}
	if a.LowerBound != b.LowerBound {
		return a.LowerBound < b.LowerBound
	}
	return h[i].seq < h[j].seq
}
func (h estimHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].estimPos = i
	h[j].estimPos = j
}
func (h *estimHeap) Push(x any) {
	e := x.(*entry)
	e.estimPos = len(*h)
	*h = append(*h, e)
}
func (h *estimHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	e.estimPos = -1
	return e
}

// Queue is a priority queue of open nodes.
type Queue struct {
	bound boundHeap
	estim estimHeap
	seq   uint64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push inserts `n`.
func (q *Queue) Push(n OpenNode) {
	e := &entry{node: n, seq: q.seq}
	q.seq++
	heap.Push(&q.bound, e)
	heap.Push(&q.estim, e)
}

// PopBestBoundNode removes and returns the node with the smallest lower bound.
// Among equal bounds the node pushed first is returned.
func (q *Queue) PopBestBoundNode() (OpenNode, bool) {
	if len(q.bound) == 0 {
		return OpenNode{}, false
	}
	e := heap.Pop(&q.bound).(*entry)
	heap.Remove(&q.estim, e.estimPos)
	return e.node, true
}

// PopBestNode removes and returns the node with the smallest estimate. The
// solver installs nodes in best-bound order. This is for callers that want
// estimate order.
func (q *Queue) PopBestNode() (OpenNode, bool) {
	if len(q.estim) == 0 {
		return OpenNode{}, false
	}
	e := heap.Pop(&q.estim).(*entry)
	heap.Remove(&q.bound, e.boundPos)
	return e.node, true
}

// BestLowerBound returns the smallest lower bound in the queue, +Inf if the
// queue is empty.
func (q *Queue) BestLowerBound() float64 {
	if len(q.bound) == 0 {
		return math.Inf(1)
	}
	return q.bound[0].node.LowerBound
}

// PerformBounding removes the nodes whose lower bound is at least `cutoff` and
// returns their tree weight.
func (q *Queue) PerformBounding(cutoff float64) float64 {
	var pruned float64
	var keep []*entry
	for _, e := range q.bound {
		if e.node.LowerBound >= cutoff {
			pruned += TreeWeight(e.node.Depth)
			continue
		}
		keep = append(keep, e)
	}
	if len(keep) == len(q.bound) {
		return 0
	}
	// Survivors are reinserted in heap order. Ties stay ordered by seq.
	q.bound = q.bound[:0]
	q.estim = q.estim[:0]
	for i, e := range keep {
		e.boundPos, e.estimPos = i, i
		q.bound = append(q.bound, e)
		q.estim = append(q.estim, e)
	}
	heap.Init(&q.bound)
	heap.Init(&q.estim)
	return pruned
}

// Weight returns the total tree weight of the queued nodes.
func (q *Queue) Weight() float64 {
	var w float64
	for _, e := range q.bound {
		w += TreeWeight(e.node.Depth)
	}
	return w
}

// Clear removes all nodes.
func (q *Queue) Clear() {
	q.bound = nil
	q.estim = nil
}

// Empty reports whether the queue holds no node.
func (q *Queue) Empty() bool {
	return len(q.bound) == 0
}

// Len returns the number of queued nodes.
func (q *Queue) Len() int {
	return len(q.bound)
}
