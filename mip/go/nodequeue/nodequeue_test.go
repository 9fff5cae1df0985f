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

package nodequeue

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/branchcut/mipsearch/mip/go/domain"
)

func TestQueue_Empty(t *testing.T) {
	q := New()
	if !q.Empty() || q.Len() != 0 {
		t.Errorf("New() queue: Empty() = %v, Len() = %v, want true, 0", q.Empty(), q.Len())
	}
	if got := q.BestLowerBound(); !math.IsInf(got, 1) {
		t.Errorf("BestLowerBound() = %v, want +Inf", got)
	}
	if _, ok := q.PopBestBoundNode(); ok {
		t.Errorf("PopBestBoundNode() on empty queue returned a node")
	}
	if _, ok := q.PopBestNode(); ok {
		t.Errorf("PopBestNode() on empty queue returned a node")
	}
	if got := q.PerformBounding(0); got != 0 {
		t.Errorf("PerformBounding() on empty queue = %v, want 0", got)
	}
}

func TestQueue_PopOrder(t *testing.T) {
	nodes := []OpenNode{
		{LowerBound: 3, Estimate: 4, Depth: 1},
		{LowerBound: 1, Estimate: 9, Depth: 2},
		{LowerBound: 2, Estimate: 2, Depth: 3},
		{LowerBound: 1, Estimate: 5, Depth: 4},
	}
	tests := []struct {
		name string
		pop  func(q *Queue) (OpenNode, bool)
		want []int
	}{
		{
			name: "BestBound",
			pop:  (*Queue).PopBestBoundNode,
			want: []int{2, 4, 3, 1},
		},
		{
			name: "BestEstimate",
			pop:  (*Queue).PopBestNode,
			want: []int{3, 1, 4, 2},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q := New()
			for _, n := range nodes {
				q.Push(n)
			}
			var got []int
			for !q.Empty() {
				n, ok := test.pop(q)
				if !ok {
					t.Fatalf("pop on non-empty queue returned no node")
				}
				got = append(got, n.Depth)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("pop order returned with unexpected diff (-want+got);\n%s", diff)
			}
		})
	}
}

func TestQueue_KeepsChanges(t *testing.T) {
	q := New()
	changes := []domain.Change{{Col: 0, Type: domain.Upper, Bound: 0}, {Col: 3, Type: domain.Lower, Bound: 2}}
	q.Push(OpenNode{Changes: changes, LowerBound: 1, Estimate: 1, Depth: 2})
	got, _ := q.PopBestNode()
	want := OpenNode{Changes: changes, LowerBound: 1, Estimate: 1, Depth: 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PopBestNode() returned with unexpected diff (-want+got);\n%s", diff)
	}
}

func TestQueue_PerformBounding(t *testing.T) {
	q := New()
	q.Push(OpenNode{LowerBound: 1, Estimate: 1, Depth: 1})
	q.Push(OpenNode{LowerBound: 5, Estimate: 5, Depth: 2})
	q.Push(OpenNode{LowerBound: 4, Estimate: 0, Depth: 3})
	q.Push(OpenNode{LowerBound: 2, Estimate: 3, Depth: 3})

	if got, want := q.Weight(), 0.5+0.25+0.125+0.125; got != want {
		t.Errorf("Weight() = %v, want %v", got, want)
	}
	if got, want := q.PerformBounding(4), 0.25+0.125; got != want {
		t.Errorf("PerformBounding(4) = %v, want %v", got, want)
	}
	if got := q.Len(); got != 2 {
		t.Errorf("Len() = %v after bounding, want 2", got)
	}
	if got := q.PerformBounding(4); got != 0 {
		t.Errorf("second PerformBounding(4) = %v, want 0", got)
	}
	if got, _ := q.PopBestNode(); got.LowerBound != 1 {
		t.Errorf("PopBestNode().LowerBound = %v, want 1", got.LowerBound)
	}
	if got := q.BestLowerBound(); got != 2 {
		t.Errorf("BestLowerBound() = %v, want 2", got)
	}
	q.Clear()
	if !q.Empty() {
		t.Errorf("Empty() = false after Clear()")
	}
}

func TestQueue_PerformBoundingKeepsTieOrder(t *testing.T) {
	q := New()
	for d := 1; d <= 6; d++ {
		lb := 1.0
		if d%3 == 0 {
			lb = 9
		}
		q.Push(OpenNode{LowerBound: lb, Estimate: 2, Depth: d})
	}
	q.PerformBounding(5)
	var got []int
	for !q.Empty() {
		n, _ := q.PopBestBoundNode()
		got = append(got, n.Depth)
	}
	if diff := cmp.Diff([]int{1, 2, 4, 5}, got); diff != "" {
		t.Errorf("PopBestBoundNode() order after bounding returned with unexpected diff (-want+got):\n%s", diff)
	}
}

// TestQueue_RandomOperations checks both orders against a linear scan.
func TestQueue_RandomOperations(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	q := New()
	var live []OpenNode
	remove := func(n OpenNode) {
		for i, m := range live {
			if m.Depth == n.Depth {
				live = append(live[:i], live[i+1:]...)
				return
			}
		}
		t.Fatalf("popped node %+v is not in the queue", n)
	}
	next := 0
	for step := 0; step < 2000; step++ {
		switch op := r.Intn(5); {
		case op < 2:
			// Depth doubles as a unique identifier.
			n := OpenNode{LowerBound: float64(r.Intn(10)), Estimate: float64(r.Intn(10)), Depth: next}
			next++
			q.Push(n)
			live = append(live, n)
		case op == 2 && len(live) > 0:
			n, _ := q.PopBestBoundNode()
			for _, m := range live {
				if m.LowerBound < n.LowerBound || (m.LowerBound == n.LowerBound && m.Depth < n.Depth) {
					t.Fatalf("PopBestBoundNode() = %+v, but %+v is better", n, m)
				}
			}
			remove(n)
		case op == 3 && len(live) > 0:
			n, _ := q.PopBestNode()
			for _, m := range live {
				better := m.Estimate < n.Estimate ||
					(m.Estimate == n.Estimate && m.LowerBound < n.LowerBound) ||
					(m.Estimate == n.Estimate && m.LowerBound == n.LowerBound && m.Depth < n.Depth)
				if better {
					t.Fatalf("PopBestNode() = %+v, but %+v is better", n, m)
				}
			}
			remove(n)
		case op == 4 && r.Intn(10) == 0:
			cutoff := float64(r.Intn(10))
			q.PerformBounding(cutoff)
			kept := live[:0]
			for _, m := range live {
				if m.LowerBound < cutoff {
					kept = append(kept, m)
				}
			}
			live = kept
		}
		if q.Len() != len(live) {
			t.Fatalf("step %d: Len() = %v, want %v", step, q.Len(), len(live))
		}
		want := math.Inf(1)
		for _, m := range live {
			want = math.Min(want, m.LowerBound)
		}
		if got := q.BestLowerBound(); got != want {
			t.Fatalf("step %d: BestLowerBound() = %v, want %v", step, got, want)
		}
	}
}
