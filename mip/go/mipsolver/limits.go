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
	"context"
	"time"
)

// Limiter decides whether the search must stop. It is polled between plunges
// and after every dive, never concurrently.
type Limiter interface {
	ShouldStop(p *Progress) bool
}

// LimiterFunc adapts a function to Limiter.
type LimiterFunc func(p *Progress) bool

// ShouldStop implements Limiter.
func (f LimiterFunc) ShouldStop(p *Progress) bool {
	return f(p)
}

// NodeLimit stops once `n` nodes were evaluated.
func NodeLimit(n int64) Limiter {
	return LimiterFunc(func(p *Progress) bool { return p.Nodes >= n })
}

// TimeLimit stops once the search ran for `d`.
func TimeLimit(d time.Duration) Limiter {
	return LimiterFunc(func(p *Progress) bool { return p.Elapsed >= d })
}

// GapLimit stops once the relative gap is at most `gap`.
func GapLimit(gap float64) Limiter {
	return LimiterFunc(func(p *Progress) bool { return p.Gap <= gap })
}

// InterruptLimit stops once `interrupt` is closed.
func InterruptLimit(interrupt <-chan struct{}) Limiter {
	return LimiterFunc(func(*Progress) bool {
		select {
		case <-interrupt:
			return true
		default:
			return false
		}
	})
}

// ContextLimit stops once `ctx` is done.
func ContextLimit(ctx context.Context) Limiter {
	return InterruptLimit(ctx.Done())
}

// AnyLimit stops as soon as one of `limits` does. Nil limiters are ignored.
func AnyLimit(limits ...Limiter) Limiter {
	return LimiterFunc(func(p *Progress) bool {
		for _, l := range limits {
			if l != nil && l.ShouldStop(p) {
				return true
			}
		}
		return false
	})
}
