package acquisition

import (
	"math/rand"
)

// Single binds one surrogate model, one output column, and one criterion
// into an acquisition function. The setup cache is recomputed on demand when
// invalid and memoized until the next update.
type Single struct {
	model Model
	col   int
	crit  Criterion
	rng   *rand.Rand

	setup float64
	valid bool
	stale bool
}

// SingleOption configures a Single acquisition.
type SingleOption func(*Single)

// WithColumn binds the acquisition's model to the given output column of
// update batches. Column 0, the objective, is the default.
func WithColumn(col int) SingleOption {
	return func(s *Single) { s.col = col }
}

// WithSeed seeds the random source used to derive per-model fit seeds.
func WithSeed(seed int64) SingleOption {
	return func(s *Single) { s.rng = rand.New(rand.NewSource(seed)) }
}

// NewSingle creates an acquisition over one model.
func NewSingle(m Model, crit Criterion, opts ...SingleOption) *Single {
	s := &Single{
		model: m,
		crit:  crit,
		rng:   rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate scores a batch of candidate points against the current cache,
// recomputing the cache first if it is invalid.
func (s *Single) Evaluate(x [][]float64) ([]float64, error) {
	if s.stale {
		return nil, &StaleError{}
	}
	if !s.valid {
		if err := s.resetup(); err != nil {
			return nil, err
		}
	}

	mean, variance, err := s.model.Predict(x)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(x))
	for i := range x {
		scores[i] = s.crit.Score(mean[i], variance[i], s.setup)
	}
	return scores, nil
}

// Update incorporates a batch of observations per the package protocol.
func (s *Single) Update(x, y [][]float64) error {
	return update(s, s.rng, x, y)
}

// Dim returns the model's input dimensionality.
func (s *Single) Dim() int { return s.model.Dim() }

// Criterion returns the scoring criterion.
func (s *Single) Criterion() Criterion { return s.crit }

// SetFitRestarts forwards the restart count to the model if it supports one.
func (s *Single) SetFitRestarts(n int) {
	if m, ok := s.model.(interface{ SetRestarts(int) }); ok {
		m.SetRestarts(n)
	}
}

func (s *Single) collectModels(dst *modelSet) error {
	return dst.add(s.model, s.col)
}

func (s *Single) resetup() error {
	v, err := s.crit.Setup(s.model)
	if err != nil {
		return err
	}
	s.setup = v
	s.valid = true
	s.stale = false
	return nil
}

func (s *Single) markStale() {
	s.valid = false
	s.stale = true
}
