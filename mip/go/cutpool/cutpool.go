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

// Package cutpool holds the knowledge derived during the search that is shared by
// all nodes: cutting planes (CutPool), mutual exclusions between binary columns
// (CliqueTable) and logical deductions (ImplicationGraph).
//
// All three implement domain.Propagator.
package cutpool

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	log "github.com/golang/glog"

	"github.com/branchcut/mipsearch/mip/go/domain"
	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// DefaultAgeLimit is the number of consecutive inactive rounds after which a cut
// is evicted.
const DefaultAgeLimit = 10

// Cut is the linear inequality `Row·x <= RHS`.
type Cut struct {
	mipmodel.SparseRow
	RHS float64
	// Global cuts are valid for the whole model. Local cuts are valid while the
	// first ScopePos entries of the local domain stack are unchanged.
	Global   bool
	ScopePos int
	// Origin names the separator that produced the cut.
	Origin string
}

// Violation returns `Row·x - RHS`.
func (c *Cut) Violation(x []float64) float64 {
	return c.Activity(x) - c.RHS
}

type poolEntry struct {
	Cut
	age     int
	hash    uint64
	deleted bool
}

// CutPool stores cutting planes with age bookkeeping.
type CutPool struct {
	entries   []poolEntry
	byHash    map[uint64][]int
	numActive int
	ageLimit  int
	validator invariant.Validator
	feasTol   float64

	numAdded   int64
	numEvicted int64
}

// NewCutPool returns an empty pool evicting cuts after `ageLimit` inactive
// rounds. A non-positive limit selects DefaultAgeLimit.
func NewCutPool(ageLimit int, v invariant.Validator) *CutPool {
	if ageLimit <= 0 {
		ageLimit = DefaultAgeLimit
	}
	if v == nil {
		v = invariant.Disabled()
	}
	return &CutPool{
		byHash:    make(map[uint64][]int),
		ageLimit:  ageLimit,
		validator: v,
		feasTol:   1e-6,
	}
}

func fingerprint(r mipmodel.SparseRow, rhs float64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for k, j := range r.Inds {
		binary.LittleEndian.PutUint64(buf[:], uint64(j))
		d.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.Vals[k]))
		d.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(rhs))
	d.Write(buf[:])
	return d.Sum64()
}

func sameRow(a, b mipmodel.SparseRow) bool {
	if len(a.Inds) != len(b.Inds) {
		return false
	}
	for k := range a.Inds {
		if a.Inds[k] != b.Inds[k] || a.Vals[k] != b.Vals[k] {
			return false
		}
	}
	return true
}

// AddCut normalizes `c` and inserts it. It returns the index of the cut and
// whether it was new; duplicates and empty cuts are rejected.
func (p *CutPool) AddCut(c Cut) (int, bool) {
	c.SparseRow = mipmodel.NormalizeRow(c.Inds, c.Vals)
	if c.Len() == 0 {
		return -1, false
	}
	h := fingerprint(c.SparseRow, c.RHS)
	for _, idx := range p.byHash[h] {
		e := &p.entries[idx]
		if !e.deleted && e.RHS == c.RHS && sameRow(e.SparseRow, c.SparseRow) {
			if c.Global && !e.Global {
				e.Global = true
			}
			e.age = 0
			return idx, false
		}
	}
	if c.Global {
		p.validator.CheckCut(c.Inds, c.Vals, c.RHS, c.Origin)
	}
	p.entries = append(p.entries, poolEntry{Cut: c, hash: h})
	idx := len(p.entries) - 1
	p.byHash[h] = append(p.byHash[h], idx)
	p.numActive++
	p.numAdded++
	log.V(2).Infof("added %s cut %d with %d nonzeros (global=%v)", c.Origin, idx, c.Len(), c.Global)
	return idx, true
}

// Len returns the number of cuts in the pool.
func (p *CutPool) Len() int {
	return p.numActive
}

// NumAdded returns the number of cuts ever added.
func (p *CutPool) NumAdded() int64 {
	return p.numAdded
}

// NumEvicted returns the number of cuts removed by aging.
func (p *CutPool) NumEvicted() int64 {
	return p.numEvicted
}

// Cuts returns the cuts currently in the pool, in insertion order.
func (p *CutPool) Cuts() []*Cut {
	out := make([]*Cut, 0, p.numActive)
	for i := range p.entries {
		if !p.entries[i].deleted {
			out = append(out, &p.entries[i].Cut)
		}
	}
	return out
}

func (p *CutPool) remove(idx int) {
	e := &p.entries[idx]
	if e.deleted {
		return
	}
	e.deleted = true
	p.numActive--
	bucket := p.byHash[e.hash]
	for k, i := range bucket {
		if i == idx {
			bucket = append(bucket[:k], bucket[k+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(p.byHash, e.hash)
	} else {
		p.byHash[e.hash] = bucket
	}
}

// Age updates the age of every cut against the relaxation solution `x`: cuts that
// are tight or violated are reset to age 0, the others grow older. Cuts older
// than the age limit are evicted. It returns the number of evicted cuts.
func (p *CutPool) Age(x []float64) int {
	evicted := 0
	for i := range p.entries {
		e := &p.entries[i]
		if e.deleted {
			continue
		}
		if e.Violation(x) >= -p.feasTol*math.Max(1, math.Abs(e.RHS)) {
			e.age = 0
			continue
		}
		e.age++
		if e.age > p.ageLimit {
			p.remove(i)
			evicted++
		}
	}
	p.numEvicted += int64(evicted)
	p.compact()
	return evicted
}

// Backtrack drops the local cuts whose scope ends below stack position `pos`.
func (p *CutPool) Backtrack(pos int) {
	for i := range p.entries {
		e := &p.entries[i]
		if !e.deleted && !e.Global && e.ScopePos > pos {
			p.remove(i)
		}
	}
	p.compact()
}

// compact rebuilds the entry slice once more than half of it is deleted.
func (p *CutPool) compact() {
	if len(p.entries) < 64 || 2*p.numActive > len(p.entries) {
		return
	}
	live := make([]poolEntry, 0, p.numActive)
	for _, e := range p.entries {
		if !e.deleted {
			live = append(live, e)
		}
	}
	p.entries = live
	p.byHash = make(map[uint64][]int, len(live))
	for i, e := range live {
		p.byHash[e.hash] = append(p.byHash[e.hash], i)
	}
}

// Propagate implements domain.Propagator. The global domain only uses global
// cuts.
func (p *CutPool) Propagate(d *domain.Domain) {
	for i := range p.entries {
		e := &p.entries[i]
		if e.deleted || (d.Global() && !e.Global) {
			continue
		}
		d.PropagateRow(e.SparseRow, math.Inf(-1), e.RHS, domain.ReasonCut)
		if d.Infeasible() {
			return
		}
	}
}
