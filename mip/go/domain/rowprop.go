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

package domain

import (
	"math"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// rowPropagator propagates the rows of the model.
type rowPropagator struct{}

func (rowPropagator) Propagate(d *Domain) {
	for i := range d.model.Rows {
		r := &d.model.Rows[i]
		d.PropagateRow(r.SparseRow, r.Lower, r.Upper, ReasonPropagation)
		if d.infeasible {
			return
		}
	}
}

// MinActivity returns the minimal activity of `r` over the current bounds.
func (d *Domain) MinActivity(r mipmodel.SparseRow) float64 {
	var act float64
	for k, j := range r.Inds {
		if a := r.Vals[k]; a > 0 {
			act += a * d.lower[j]
		} else {
			act += a * d.upper[j]
		}
	}
	return act
}

// PropagateRow tightens the bounds of the columns of `r` using the activity
// bounds of `lower <= r·x <= upper`. If no point within the bounds satisfies the
// row, the domain is marked infeasible.
func (d *Domain) PropagateRow(r mipmodel.SparseRow, lower, upper float64, reason Reason) {
	if !math.IsInf(upper, 1) {
		d.propagateLessOrEqual(r, 1, upper, reason)
	}
	if !math.IsInf(lower, -1) && !d.infeasible {
		d.propagateLessOrEqual(r, -1, -lower, reason)
	}
}

// propagateLessOrEqual handles `sign*r·x <= rhs`.
func (d *Domain) propagateLessOrEqual(r mipmodel.SparseRow, sign, rhs float64, reason Reason) {
	var minAct float64
	numInf := 0
	infPos := -1
	for k, j := range r.Inds {
		a := sign * r.Vals[k]
		c := a * d.lower[j]
		if a < 0 {
			c = a * d.upper[j]
		}
		if math.IsInf(c, -1) {
			numInf++
			infPos = k
			continue
		}
		minAct += c
	}
	if numInf > 1 {
		return
	}
	if numInf == 0 && minAct > rhs+d.feasTol*math.Max(1, math.Abs(rhs)) {
		d.MarkInfeasible()
		return
	}
	for k, j := range r.Inds {
		if numInf == 1 && k != infPos {
			continue
		}
		a := sign * r.Vals[k]
		if math.Abs(a) < 1e-9 {
			continue
		}
		resid := minAct
		if numInf == 0 {
			if a > 0 {
				resid -= a * d.lower[j]
			} else {
				resid -= a * d.upper[j]
			}
		}
		bound := (rhs - resid) / a
		if math.IsNaN(bound) || math.IsInf(bound, 0) {
			continue
		}
		var c Change
		if a > 0 {
			c = Change{Col: j, Type: Upper, Bound: bound}
		} else {
			c = Change{Col: j, Type: Lower, Bound: bound}
		}
		if !d.worthTightening(c) {
			continue
		}
		d.ChangeBound(c, reason)
		if d.infeasible {
			return
		}
	}
}

// worthTightening filters out changes that do not tighten a bound, and on
// continuous columns changes smaller than a fraction of the range.
func (d *Domain) worthTightening(c Change) bool {
	j := c.Col
	if d.model.IsIntegral(j) {
		if c.Type == Upper {
			return math.Floor(c.Bound+d.feasTol) < d.upper[j]
		}
		return math.Ceil(c.Bound-d.feasTol) > d.lower[j]
	}
	rng := d.upper[j] - d.lower[j]
	var step float64
	if c.Type == Upper {
		step = d.upper[j] - c.Bound
	} else {
		step = c.Bound - d.lower[j]
	}
	if math.IsInf(rng, 1) {
		return step > 0
	}
	return step > minContinuousTightening*math.Max(1, rng)
}
