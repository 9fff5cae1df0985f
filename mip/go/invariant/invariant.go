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

// Package invariant provides the consistency checks run by the tree search.
//
// Production solves use Disabled(). Tests use a Checker, optionally seeded with a
// known feasible solution that is replayed against every global bound and every
// cut the search derives.
package invariant

import (
	"fmt"
	"sync"

	log "github.com/golang/glog"
)

// Validator receives the consistency checks of the search.
type Validator interface {
	// Assertf reports an internal contract violation when `ok` is false.
	Assertf(ok bool, format string, args ...any)
	// CheckBounds verifies that global bounds do not cut off the debug solution.
	CheckBounds(lower, upper []float64)
	// CheckCut verifies that the globally valid cut `a·x <= rhs` holds at the
	// debug solution.
	CheckCut(inds []int, vals []float64, rhs float64, origin string)
	// SetUpperLimit tells the validator that only solutions with objective below
	// `limit` are still sought. A debug solution at or above the limit may be cut
	// off from then on.
	SetUpperLimit(objective func(x []float64) float64, limit float64)
}

type disabled struct{}

func (disabled) Assertf(bool, string, ...any)                   {}
func (disabled) CheckBounds([]float64, []float64)               {}
func (disabled) CheckCut([]int, []float64, float64, string)     {}
func (disabled) SetUpperLimit(func([]float64) float64, float64) {}

// Disabled returns a Validator that checks nothing.
func Disabled() Validator {
	return disabled{}
}

// Checker is a Validator that either aborts the process or records violations.
type Checker struct {
	solution []float64
	fatal    bool
	tol      float64
	// retired is set once the debug solution is no longer better than the
	// incumbent.
	retired bool

	mu         sync.Mutex
	violations []string
}

// NewChecker returns a Checker. `solution` may be nil, in which case only
// contract assertions are checked. With `fatal` set, violations call log.Fatalf.
func NewChecker(solution []float64, fatal bool) *Checker {
	return &Checker{solution: solution, fatal: fatal, tol: 1e-6}
}

func (c *Checker) report(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.fatal {
		log.Fatalf("invariant violated: %s", msg)
	}
	log.Errorf("invariant violated: %s", msg)
	c.mu.Lock()
	c.violations = append(c.violations, msg)
	c.mu.Unlock()
}

// Assertf implements Validator.
func (c *Checker) Assertf(ok bool, format string, args ...any) {
	if !ok {
		c.report(format, args...)
	}
}

// CheckBounds implements Validator.
func (c *Checker) CheckBounds(lower, upper []float64) {
	if c.solution == nil || c.isRetired() {
		return
	}
	for j, v := range c.solution {
		if v+c.tol < lower[j] || v-c.tol > upper[j] {
			c.report("debug solution value x[%d]=%v outside global bounds [%v,%v]", j, v, lower[j], upper[j])
		}
	}
}

// CheckCut implements Validator.
func (c *Checker) CheckCut(inds []int, vals []float64, rhs float64, origin string) {
	if c.solution == nil || c.isRetired() {
		return
	}
	var act float64
	for k, j := range inds {
		act += vals[k] * c.solution[j]
	}
	if act > rhs+c.tol {
		c.report("%s cut with activity %v > rhs %v cuts off the debug solution", origin, act, rhs)
	}
}

// SetUpperLimit implements Validator.
func (c *Checker) SetUpperLimit(objective func(x []float64) float64, limit float64) {
	if c.solution == nil {
		return
	}
	if objective(c.solution) >= limit {
		c.mu.Lock()
		c.retired = true
		c.mu.Unlock()
	}
}

func (c *Checker) isRetired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retired
}

// Solution returns the debug solution, nil if none.
func (c *Checker) Solution() []float64 {
	return c.solution
}

// Violations returns the recorded violations.
func (c *Checker) Violations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.violations...)
}
