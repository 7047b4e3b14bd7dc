// Package acquisition maps surrogate model belief to scalar scores over the
// search domain and owns the model-consistency protocol: appending new
// observations, refitting each owned model exactly once per update, and
// keeping point-independent setup caches in sync with model state.
//
// Scores follow a higher-is-better convention; inner optimizers maximize
// them. The true objective is minimized.
package acquisition

import (
	"fmt"
	"math/rand"
)

// Model is the surrogate model contract the acquisition layer requires.
// *gp.GP satisfies it. A model covers exactly one output dimension.
type Model interface {
	// SetData replaces the observation set without refitting.
	SetData(x [][]float64, y []float64) error

	// AppendData appends observations without refitting.
	AppendData(x [][]float64, y []float64) error

	// Fit adjusts hyperparameters against the current data. Deterministic
	// given rng.
	Fit(rng *rand.Rand) error

	// Predict returns posterior mean and variance per query point.
	Predict(x [][]float64) (mean, variance []float64, err error)

	// LogEvidence returns the log marginal likelihood of the current data.
	LogEvidence() float64

	// Observed returns copies of the current observation set.
	Observed() (x [][]float64, y []float64)

	Dim() int
	Len() int
}

// Acquisition scores candidate points from current model belief.
//
// Update is the only path by which owned models change after construction.
// It appends the batch to every owned model (deduplicated across combinator
// sharing), refits each exactly once, and recomputes setup caches. A failed
// update leaves the acquisition stale: Evaluate returns a StaleError until a
// later Update succeeds.
type Acquisition interface {
	// Evaluate returns one score per candidate point, higher is better.
	Evaluate(x [][]float64) ([]float64, error)

	// Update incorporates a batch of observations. Y rows carry the full
	// output vector; each owned model extracts its bound column. Atomic with
	// respect to partial failure.
	Update(x [][]float64, y [][]float64) error

	// Dim returns the expected input dimensionality, or 0 before any owned
	// model has data.
	Dim() int

	// SetFitRestarts forwards a fit restart count to every owned model that
	// supports one (see gp.WithRestarts).
	SetFitRestarts(n int)

	collectModels(dst *modelSet) error
	resetup() error
	markStale()
}

// StaleError reports an Evaluate call on an acquisition whose last update
// failed, meaning its model state may be inconsistent.
type StaleError struct{}

func (e *StaleError) Error() string {
	return "acquisition is stale: last model update failed"
}

func (e *StaleError) Is(target error) bool {
	_, ok := target.(*StaleError)
	return ok
}

// modelSet is an identity-deduplicated, order-preserving collection of owned
// models. Stable ordering keeps the per-model fit seeds deterministic.
type modelSet struct {
	models []Model
	cols   []int
	index  map[Model]int
}

func newModelSet() *modelSet {
	return &modelSet{index: make(map[Model]int)}
}

func (s *modelSet) add(m Model, col int) error {
	if i, ok := s.index[m]; ok {
		if s.cols[i] != col {
			return fmt.Errorf("shared model bound to conflicting output columns %d and %d", s.cols[i], col)
		}
		return nil
	}
	s.index[m] = len(s.models)
	s.models = append(s.models, m)
	s.cols = append(s.cols, col)
	return nil
}
