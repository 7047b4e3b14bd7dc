// Package gp implements an exact Gaussian process regression model used as
// the surrogate in Bayesian optimization. A GP owns a single observation set
// over one output dimension; multi-output problems use one GP per output.
package gp

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/bayesopt/internal/kernel"
)

// Default observation noise variance. Keeps the Gram matrix well conditioned
// even on noise-free objectives.
const defaultNoise = 1e-6

// GP is a Gaussian process regression model.
//
// SetData and Fit mutate the model in place; every other operation is
// read-only. Fitting is decoupled from data replacement so callers can batch
// data updates across several models before paying for any refit.
type GP struct {
	kern     kernel.Kernel
	noise    float64
	restarts int

	x [][]float64
	y []float64

	// Posterior factorization cache, rebuilt lazily after data or
	// hyperparameter changes.
	chol       mat.Cholesky
	alpha      *mat.VecDense
	factorized bool

	// fitOnce runs one fit attempt from the given log-hyperparameter start
	// and returns the terminal log-hyperparameters and log-evidence. It is a
	// field so tests can exercise the restart retention rule directly.
	fitOnce func(start []float64) ([]float64, float64, error)
}

// Option configures a GP.
type Option func(*GP)

// WithNoise sets the observation noise variance.
func WithNoise(v float64) Option {
	return func(g *GP) { g.noise = v }
}

// WithRestarts sets the total number of fit attempts per Fit call.
func WithRestarts(n int) Option {
	return func(g *GP) { g.restarts = n }
}

// New creates a GP with the given kernel.
func New(k kernel.Kernel, opts ...Option) *GP {
	g := &GP{
		kern:     k,
		noise:    defaultNoise,
		restarts: 1,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.fitOnce = g.optimizeEvidence
	return g
}

// SetRestarts changes the number of fit attempts per Fit call.
func (g *GP) SetRestarts(n int) {
	if n > 0 {
		g.restarts = n
	}
}

// Dim returns the input dimensionality, or 0 before any data is set.
func (g *GP) Dim() int {
	if len(g.x) == 0 {
		return 0
	}
	return len(g.x[0])
}

// Len returns the number of observations.
func (g *GP) Len() int { return len(g.x) }

// Observed returns copies of the current observation set.
func (g *GP) Observed() (x [][]float64, y []float64) {
	x = make([][]float64, len(g.x))
	for i, row := range g.x {
		x[i] = append([]float64(nil), row...)
	}
	return x, append([]float64(nil), g.y...)
}

// SetData replaces the observation set. It does not refit; callers control
// when fitting happens.
func (g *GP) SetData(x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("data length mismatch: %d inputs, %d outputs", len(x), len(y))
	}
	var dim int
	for i, row := range x {
		if i == 0 {
			dim = len(row)
		} else if len(row) != dim {
			return &InvalidInputError{Want: dim, Got: len(row)}
		}
	}

	g.x = make([][]float64, len(x))
	for i, row := range x {
		g.x[i] = append([]float64(nil), row...)
	}
	g.y = append([]float64(nil), y...)
	g.factorized = false
	return nil
}

// AppendData appends observations to the current set without refitting.
func (g *GP) AppendData(x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("data length mismatch: %d inputs, %d outputs", len(x), len(y))
	}
	dim := g.Dim()
	for _, row := range x {
		if dim == 0 {
			dim = len(row)
		}
		if len(row) != dim {
			return &InvalidInputError{Want: dim, Got: len(row)}
		}
	}

	for i, row := range x {
		g.x = append(g.x, append([]float64(nil), row...))
		g.y = append(g.y, y[i])
	}
	g.factorized = false
	return nil
}

// Predict returns the posterior mean and variance at each query point.
func (g *GP) Predict(x [][]float64) (mean, variance []float64, err error) {
	mean = make([]float64, len(x))
	variance = make([]float64, len(x))

	// Prior prediction before any data exists.
	if len(g.x) == 0 {
		for i, q := range x {
			mean[i] = 0
			variance[i] = g.kern.Eval(q, q) + g.noise
		}
		return mean, variance, nil
	}

	dim := g.Dim()
	for _, q := range x {
		if len(q) != dim {
			return nil, nil, &InvalidInputError{Want: dim, Got: len(q)}
		}
	}

	if !g.factorized {
		if err := g.factorize(); err != nil {
			return nil, nil, err
		}
	}

	n := len(g.x)
	kstar := mat.NewVecDense(n, nil)
	v := mat.NewVecDense(n, nil)
	for i, q := range x {
		for j, xj := range g.x {
			kstar.SetVec(j, g.kern.Eval(q, xj))
		}
		mean[i] = mat.Dot(kstar, g.alpha)

		if err := g.chol.SolveVecTo(v, kstar); err != nil {
			return nil, nil, fmt.Errorf("posterior solve failed: %w", err)
		}
		variance[i] = math.Max(g.kern.Eval(q, q)-mat.Dot(kstar, v), 1e-12)
	}
	return mean, variance, nil
}

// LogEvidence returns the log marginal likelihood of the current data under
// the current hyperparameters. Used for restart comparison.
func (g *GP) LogEvidence() float64 {
	if len(g.x) == 0 {
		return 0
	}
	ev, err := g.evidence()
	if err != nil {
		return math.Inf(-1)
	}
	return ev
}

// Fit adjusts hyperparameters to locally maximize log-evidence. With a
// restart count n, n attempts run from the current state plus n-1 randomized
// starts; the terminal state with the highest log-evidence is retained, first
// found winning ties. A single failing attempt is skipped; Fit fails with a
// ModelFitError only when every attempt fails.
//
// Fit is deterministic given the caller's rng.
func (g *GP) Fit(rng *rand.Rand) error {
	if len(g.x) == 0 {
		return nil
	}

	nparams := g.kern.NumParams() + 1 // kernel hyperparameters plus noise
	start := g.logParams()

	bestEv := math.Inf(-1)
	var bestTheta []float64
	var lastErr error

	for attempt := 0; attempt < g.restarts; attempt++ {
		if attempt > 0 {
			// Randomized restart: log-uniform over roughly [0.1, 10].
			start = make([]float64, nparams)
			for i := range start {
				start[i] = -2.3 + 4.6*rng.Float64()
			}
		}

		theta, ev, err := g.fitOnce(start)
		if err != nil {
			lastErr = err
			continue
		}
		if ev > bestEv {
			bestEv = ev
			bestTheta = theta
		}
	}

	if bestTheta == nil {
		return &ModelFitError{Restarts: g.restarts, Err: lastErr}
	}

	if err := g.applyLogParams(bestTheta); err != nil {
		return &ModelFitError{Restarts: g.restarts, Err: err}
	}
	g.factorized = false
	return nil
}

// optimizeEvidence runs one Nelder-Mead search over log-hyperparameters from
// the given start and returns the terminal point and its log-evidence.
func (g *GP) optimizeEvidence(start []float64) ([]float64, float64, error) {
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			if err := g.applyLogParams(theta); err != nil {
				return math.Inf(1)
			}
			ev, err := g.evidence()
			if err != nil {
				return math.Inf(1)
			}
			return -ev
		},
	}

	result, err := optimize.Minimize(problem, start, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, 0, fmt.Errorf("evidence optimization failed: %w", err)
	}
	if math.IsInf(result.F, 1) || math.IsNaN(result.F) {
		return nil, 0, fmt.Errorf("evidence optimization diverged")
	}
	return result.X, -result.F, nil
}

// logParams returns the current hyperparameters in log space, noise last.
func (g *GP) logParams() []float64 {
	kp := g.kern.Params()
	theta := make([]float64, len(kp)+1)
	for i, p := range kp {
		theta[i] = math.Log(p)
	}
	theta[len(kp)] = math.Log(g.noise)
	return theta
}

func (g *GP) applyLogParams(theta []float64) error {
	n := g.kern.NumParams()
	if len(theta) != n+1 {
		return fmt.Errorf("expected %d log-hyperparameters, got %d", n+1, len(theta))
	}
	kp := make([]float64, n)
	for i := range kp {
		kp[i] = math.Exp(theta[i])
	}
	if err := g.kern.SetParams(kp); err != nil {
		return err
	}
	g.noise = math.Max(math.Exp(theta[n]), 1e-10)
	g.factorized = false
	return nil
}

// factorize builds and caches the Cholesky factorization of K + noise*I and
// the weight vector alpha = K^-1 y.
func (g *GP) factorize() error {
	n := len(g.x)
	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := g.kern.Eval(g.x[i], g.x[j])
			if i == j {
				v += g.noise
			}
			gram.SetSym(i, j, v)
		}
	}

	if ok := g.chol.Factorize(gram); !ok {
		return fmt.Errorf("gram matrix is not positive definite")
	}

	yv := mat.NewVecDense(n, append([]float64(nil), g.y...))
	g.alpha = mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(g.alpha, yv); err != nil {
		return fmt.Errorf("weight solve failed: %w", err)
	}
	g.factorized = true
	return nil
}

// evidence computes the log marginal likelihood under the current
// hyperparameters, factorizing if needed.
func (g *GP) evidence() (float64, error) {
	if !g.factorized {
		if err := g.factorize(); err != nil {
			return 0, err
		}
	}
	n := float64(len(g.x))
	yv := mat.NewVecDense(len(g.y), append([]float64(nil), g.y...))
	fit := mat.Dot(yv, g.alpha)
	return -0.5*fit - 0.5*g.chol.LogDet() - 0.5*n*math.Log(2*math.Pi), nil
}
