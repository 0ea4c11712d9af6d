// Package evaluate scores a candidate spike-sorting output against a
// reference train: a temporal-proximity confusion matrix, a best-match
// assignment from candidate clusters to reference units, and per-unit
// true-positive / false-discovery rates.
package evaluate

import (
	"errors"

	"github.com/cwbudde/algo-spike/spiketrain"
)

// ErrEmptyTrain is returned when either train carries no events.
var ErrEmptyTrain = errors.New("evaluate: both trains must contain events")

// DefaultTolerance is the temporal proximity (in samples) within which two
// spike times count as the same event.
const DefaultTolerance = 60

// Option configures an evaluation.
type Option func(*config)

type config struct {
	tolerance int64
}

// WithTolerance overrides the match proximity in samples.
func WithTolerance(samples int64) Option {
	return func(c *config) {
		if samples > 0 {
			c.tolerance = samples
		}
	}
}

// Evaluation holds the confusion matrix and derived accuracies for one
// reference/candidate pair. All fields are read-only after Evaluate returns.
//
// Indexing convention: rows are reference units, columns candidate clusters,
// both after independent normalization to dense 0-based labels.
type Evaluation struct {
	Confusion      [][]int   // [refUnits][candClusters] matched-event counts
	BestUnit       []int     // per cluster: reference unit with the max count
	TruePositive   []float64 // per reference unit
	FalseDiscovery []float64 // per candidate cluster
	RefCounts      []int     // reference spikes per unit
	ClusterCounts  []int     // candidate spikes per cluster
}

// Evaluate normalizes both trains independently and scores the candidate
// against the reference. The trains must come from sources with disjoint raw
// label spaces (the normalization offset convention in package spiketrain).
func Evaluate(ref, cand spiketrain.Train, opts ...Option) (*Evaluation, error) {
	if len(ref) == 0 || len(cand) == 0 {
		return nil, ErrEmptyTrain
	}

	cfg := config{tolerance: DefaultTolerance}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	ref = spiketrain.Normalize(ref)
	cand = spiketrain.Normalize(cand)

	numUnits := spiketrain.MaxUnit(ref) + 1
	numClusters := spiketrain.MaxUnit(cand) + 1

	ev := &Evaluation{
		Confusion:      make([][]int, numUnits),
		BestUnit:       make([]int, numClusters),
		TruePositive:   make([]float64, numUnits),
		FalseDiscovery: make([]float64, numClusters),
		RefCounts:      spiketrain.CountPerUnit(ref, numUnits),
		ClusterCounts:  spiketrain.CountPerUnit(cand, numClusters),
	}

	refTimes := make([][]int64, numUnits)
	for u := 0; u < numUnits; u++ {
		refTimes[u] = spiketrain.UnitTimes(ref, u)
	}

	candTimes := make([][]int64, numClusters)
	for c := 0; c < numClusters; c++ {
		candTimes[c] = spiketrain.UnitTimes(cand, c)
	}

	for u := 0; u < numUnits; u++ {
		ev.Confusion[u] = make([]int, numClusters)
		for c := 0; c < numClusters; c++ {
			ev.Confusion[u][c] = CountMatches(refTimes[u], candTimes[c], cfg.tolerance)
		}
	}

	ev.computeAccuracies()

	return ev, nil
}

// CountMatches counts temporal coincidences between two sorted spike-time
// lists with a single greedy forward merge: whenever the two current times
// differ by less than tol both cursors advance and one match is counted,
// otherwise the earlier cursor advances alone. Every event is consumed at
// most once.
//
// This is an O(n+m) approximation of optimal bipartite matching; it can
// under-count only when several spikes crowd within one tolerance window,
// which is accepted for the dominant sparse-firing case. Both inputs must be
// sorted ascending.
func CountMatches(a, b []int64, tol int64) int {
	var i, j, count int

	for i < len(a) && j < len(b) {
		d := a[i] - b[j]
		if d < 0 {
			d = -d
		}

		switch {
		case d < tol:
			i++
			j++
			count++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	return count
}

// computeAccuracies derives the per-cluster best unit, per-unit true-positive
// rates, and per-cluster false-discovery rates. Zero-spike rows and columns
// yield a rate of 0 by convention.
func (ev *Evaluation) computeAccuracies() {
	numUnits := len(ev.Confusion)
	numClusters := len(ev.BestUnit)

	recovered := make([]int, numClusters)

	for c := 0; c < numClusters; c++ {
		best := 0
		for u := 0; u < numUnits; u++ {
			// Ties break toward the lowest unit index.
			if ev.Confusion[u][c] > ev.Confusion[best][c] {
				best = u
			}
		}

		ev.BestUnit[c] = best
		recovered[c] = ev.Confusion[best][c]

		if ev.ClusterCounts[c] > 0 {
			ev.FalseDiscovery[c] = float64(ev.ClusterCounts[c]-recovered[c]) / float64(ev.ClusterCounts[c])
		}
	}

	for c := 0; c < numClusters; c++ {
		u := ev.BestUnit[c]
		if ev.RefCounts[u] == 0 {
			continue
		}

		tp := float64(recovered[c]) / float64(ev.RefCounts[u])
		if tp > ev.TruePositive[u] {
			ev.TruePositive[u] = tp
		}
	}
}
