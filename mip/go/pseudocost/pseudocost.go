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

// Package pseudocost estimates the objective degradation caused by branching.
//
// For every column and direction the Estimator keeps the average objective
// increase per unit of bound change observed after branching on the column. The
// average is a running mean that turns into an exponential moving average once
// the number of observations exceeds 1/DecayFloor.
package pseudocost

import (
	"fmt"
	"math"

	"github.com/branchcut/mipsearch/mip/go/mipmodel"
)

// Direction is the side of a branching decision.
type Direction int8

const (
	// Down is the child with the decreased upper bound.
	Down Direction = iota
	// Up is the child with the increased lower bound.
	Up
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	}
	return fmt.Sprintf("Direction(%d)", int8(d))
}

const (
	// DefaultDecayFloor is the minimal weight of a new observation.
	DefaultDecayFloor = 0.05
	// minGain keeps scores of unexplored directions distinguishable.
	minGain = 1e-6
)

type record struct {
	cost  float64
	count int
}

// Estimator holds the pseudocosts of all columns.
type Estimator struct {
	records    [2][]record
	structural []float64
	decayFloor float64
	scorer     Scorer

	// Global averages, used for directions without observations.
	total [2]float64
	count [2]int
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithDecayFloor sets the minimal weight of a new observation. Zero keeps a plain
// running mean.
func WithDecayFloor(w float64) Option {
	return func(e *Estimator) { e.decayFloor = w }
}

// WithScorer selects how up and down degradations are combined.
func WithScorer(s Scorer) Option {
	return func(e *Estimator) { e.scorer = s }
}

// New returns an Estimator for `m`. Before any observation, the cost of a column
// is the absolute value of its objective coefficient.
func New(m *mipmodel.Model, opts ...Option) *Estimator {
	n := m.NumCols()
	e := &Estimator{
		records:    [2][]record{make([]record, n), make([]record, n)},
		structural: make([]float64, n),
		decayFloor: DefaultDecayFloor,
		scorer:     ProductScorer{},
	}
	for j, c := range m.ColCost {
		e.structural[j] = math.Abs(c)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddObservation records that changing the bound of column `col` by `delta`
// (positive for the up branch, negative for the down branch) increased the
// relaxation objective by `objDelta`.
func (e *Estimator) AddObservation(col int, delta, objDelta float64) {
	if delta == 0 || math.IsNaN(objDelta) || math.IsInf(objDelta, 0) {
		return
	}
	dir := Down
	if delta > 0 {
		dir = Up
	}
	unit := math.Max(objDelta, 0) / math.Abs(delta)
	r := &e.records[dir][col]
	r.count++
	w := math.Max(1/float64(r.count), e.decayFloor)
	r.cost += w * (unit - r.cost)
	e.total[dir] += unit
	e.count[dir]++
}

// Observations returns the number of observations of `col` in direction `dir`.
func (e *Estimator) Observations(col int, dir Direction) int {
	return e.records[dir][col].count
}

// Cost returns the estimated objective increase per unit of bound change of
// column `col` in direction `dir`.
func (e *Estimator) Cost(col int, dir Direction) float64 {
	if r := e.records[dir][col]; r.count > 0 {
		return r.cost
	}
	if e.count[dir] > 0 {
		return e.total[dir] / float64(e.count[dir])
	}
	return e.structural[col]
}

// CostUp returns Cost(col, Up).
func (e *Estimator) CostUp(col int) float64 { return e.Cost(col, Up) }

// CostDown returns Cost(col, Down).
func (e *Estimator) CostDown(col int) float64 { return e.Cost(col, Down) }

// Gains returns the estimated objective degradation of the down and up children
// of branching on column `col` with relaxation value `x`.
func (e *Estimator) Gains(col int, x float64) (down, up float64) {
	frac := x - math.Floor(x)
	return e.CostDown(col) * frac, e.CostUp(col) * (1 - frac)
}

// Score returns the branching score of column `col` at value `x`.
func (e *Estimator) Score(col int, x float64) float64 {
	down, up := e.Gains(col, x)
	return e.scorer.Score(down, up)
}

// Estimate returns the minimal estimated degradation of branching on `col` at `x`,
// the contribution of the column to the best estimate of a node.
func (e *Estimator) Estimate(col int, x float64) float64 {
	down, up := e.Gains(col, x)
	return math.Min(down, up)
}

// Scorer combines the down and up degradations of a branching candidate.
type Scorer interface {
	Score(down, up float64) float64
}

// ProductScorer scores by the product of the degradations.
type ProductScorer struct{}

// Score implements Scorer.
func (ProductScorer) Score(down, up float64) float64 {
	return math.Max(down, minGain) * math.Max(up, minGain)
}

// MinScorer scores by the smaller degradation.
type MinScorer struct{}

// Score implements Scorer.
func (MinScorer) Score(down, up float64) float64 {
	return math.Min(down, up)
}

// WeightedScorer scores by `(1-Mu)*min + Mu*max`.
type WeightedScorer struct {
	Mu float64
}

// Score implements Scorer.
func (s WeightedScorer) Score(down, up float64) float64 {
	lo, hi := math.Min(down, up), math.Max(down, up)
	return (1-s.Mu)*lo + s.Mu*hi
}
