// Package loop implements the sequential Bayesian optimization loop: select
// a candidate by maximizing the acquisition, evaluate the true objective,
// feed the observation back into the surrogates, repeat.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/bayesopt/internal/design"
	"github.com/cwbudde/bayesopt/internal/domain"
	"github.com/cwbudde/bayesopt/internal/gp"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/optimizer"
)

// State tracks the loop's lifecycle.
type State int

const (
	StateInitializing State = iota
	StateSeeding
	StateIterating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSeeding:
		return "seeding"
	case StateIterating:
		return "iterating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Acquisition is the contract the loop requires of an acquisition function.
// Everything in package acquisition satisfies it.
type Acquisition interface {
	// Evaluate returns one higher-is-better score per candidate point.
	Evaluate(x [][]float64) ([]float64, error)

	// Update incorporates a batch of observations, refitting owned models.
	Update(x, y [][]float64) error

	// Dim returns the expected input dimensionality, 0 if not yet known.
	Dim() int

	// SetFitRestarts forwards a model refit restart count.
	SetFitRestarts(n int)
}

// ConfigurationError reports a domain/acquisition/objective mismatch
// detected during initialization. Never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// Progress describes one completed evaluation, delivered to the optional
// OnProgress callback.
type Progress struct {
	Phase       string // "seeding" or "iterating"
	Iteration   int
	Total       int
	Point       []float64
	Value       float64
	Best        float64
	Evaluations int
}

// Config controls a loop run.
type Config struct {
	// NIter is the number of sequential decisions after seeding.
	NIter int

	// OptimizeRestarts, when positive, sets the model refit restart count.
	OptimizeRestarts int

	// InitialDesign generates seed points. When nil, seeding is skipped and
	// any data the models already carry is the starting belief.
	InitialDesign design.Generator

	// Seed drives the loop's random source (seeding design and derived
	// per-iteration state).
	Seed int64

	// OnProgress, when set, is called after every objective evaluation.
	OnProgress func(Progress)
}

// Loop is a single-owner Bayesian optimization run. It never mutates the
// domain or the inner optimizer, and it owns the aggregated history returned
// in the result.
type Loop struct {
	dom   *domain.Domain
	acq   Acquisition
	inner optimizer.Optimizer
	obj   objective.Objective
	cfg   Config
	rng   *rand.Rand
	state State
}

// New validates component compatibility and returns a loop in the seeding
// state. Dimensionality mismatches fail fast with a ConfigurationError.
func New(dom *domain.Domain, acq Acquisition, inner optimizer.Optimizer, obj objective.Objective, cfg Config) (*Loop, error) {
	if dom == nil || acq == nil || inner == nil || obj == nil {
		return nil, &ConfigurationError{Reason: "domain, acquisition, optimizer and objective are all required"}
	}
	if cfg.NIter < 0 {
		return nil, &ConfigurationError{Reason: "n_iter must be non-negative"}
	}
	if obj.Dim() != dom.Dim() {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("objective dimensionality %d does not match domain %d", obj.Dim(), dom.Dim()),
		}
	}
	if d := acq.Dim(); d != 0 && d != dom.Dim() {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("acquisition model dimensionality %d does not match domain %d", d, dom.Dim()),
		}
	}
	if obj.Outputs() < 1 {
		return nil, &ConfigurationError{Reason: "objective must have at least one output column"}
	}

	if cfg.OptimizeRestarts > 0 {
		acq.SetFitRestarts(cfg.OptimizeRestarts)
	}

	return &Loop{
		dom:   dom,
		acq:   acq,
		inner: inner,
		obj:   obj,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		state: StateSeeding,
	}, nil
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State { return l.state }

// Run executes the loop to termination. Expected failure modes (model fit,
// inner optimizer, objective evaluation) terminate the run with a failure
// result carrying the partial history; they are not returned as errors.
// Cancellation is honored between iterations, the only safe interruption
// points.
func (l *Loop) Run(ctx context.Context) *Result {
	rec := newRecorder()

	if res := l.seed(ctx, rec); res != nil {
		return res
	}

	l.state = StateIterating
	for i := 0; i < l.cfg.NIter; i++ {
		if err := ctx.Err(); err != nil {
			return l.terminate(rec.failure(ReasonCancelled, err))
		}

		point, score, err := l.inner.Optimize(l.scoreFunc(), l.dom)
		if err != nil {
			slog.Error("inner optimizer failed", "iteration", i+1, "error", err)
			return l.terminate(rec.failure(ReasonOptimizerFailed, err))
		}

		rows, err := l.obj.Evaluate([][]float64{point})
		if err == nil {
			err = l.checkRows(rows, 1)
		}
		if err != nil {
			slog.Error("objective evaluation failed", "iteration", i+1, "error", err)
			return l.terminate(rec.failure(ReasonObjectiveFailed, err))
		}
		rec.record(point, rows[0])

		if err := l.acq.Update([][]float64{point}, rows); err != nil {
			slog.Error("acquisition update failed", "iteration", i+1, "error", err)
			return l.terminate(rec.failure(updateReason(err), err))
		}

		slog.Info("iteration complete",
			"iteration", i+1,
			"total", l.cfg.NIter,
			"value", rows[0][0],
			"best", rec.best(),
			"acquisition", score,
		)
		l.notify("iterating", i+1, l.cfg.NIter, point, rows[0][0], rec)
	}

	return l.terminate(rec.success())
}

// seed evaluates the initial design and performs one batched acquisition
// update for the whole seed set. Batching matters: refit cost is superlinear
// in observation count, so one update per seed point would pay it n times.
func (l *Loop) seed(ctx context.Context, rec *recorder) *Result {
	if l.cfg.InitialDesign == nil {
		return nil
	}

	points := l.cfg.InitialDesign.Generate(l.dom, l.rng)
	if len(points) == 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return l.terminate(rec.failure(ReasonCancelled, err))
	}

	slog.Info("seeding", "points", len(points))
	rows, err := l.obj.Evaluate(points)
	if err == nil {
		err = l.checkRows(rows, len(points))
	}
	if err != nil {
		slog.Error("seed evaluation failed", "error", err)
		return l.terminate(rec.failure(ReasonObjectiveFailed, err))
	}
	for i := range points {
		rec.record(points[i], rows[i])
	}

	if err := l.acq.Update(points, rows); err != nil {
		slog.Error("seed update failed", "error", err)
		return l.terminate(rec.failure(updateReason(err), err))
	}

	l.notify("seeding", len(points), len(points), nil, rec.best(), rec)
	return nil
}

// checkRows guards the objective contract: one output row per evaluated
// point, each carrying the declared column count. A violating objective
// terminates the run as an objective failure instead of panicking downstream.
func (l *Loop) checkRows(rows [][]float64, n int) error {
	if len(rows) != n {
		return fmt.Errorf("objective returned %d rows for %d points", len(rows), n)
	}
	outputs := l.obj.Outputs()
	for i := range rows {
		if len(rows[i]) != outputs {
			return fmt.Errorf("objective row %d has %d columns, declared %d", i, len(rows[i]), outputs)
		}
	}
	return nil
}

// scoreFunc adapts the batch acquisition to the pointwise surface the inner
// optimizer searches. Evaluation errors surface as -Inf so the optimizer
// routes around them; a surface that is -Inf everywhere becomes a
// SearchError.
func (l *Loop) scoreFunc() func([]float64) float64 {
	return func(x []float64) float64 {
		scores, err := l.acq.Evaluate([][]float64{x})
		if err != nil {
			return math.Inf(-1)
		}
		return scores[0]
	}
}

func (l *Loop) terminate(res *Result) *Result {
	l.state = StateTerminated
	slog.Info("run terminated",
		"success", res.Success,
		"reason", res.Reason,
		"evaluations", res.Evaluations,
	)
	return res
}

func (l *Loop) notify(phase string, iter, total int, point []float64, value float64, rec *recorder) {
	if l.cfg.OnProgress == nil {
		return
	}
	l.cfg.OnProgress(Progress{
		Phase:       phase,
		Iteration:   iter,
		Total:       total,
		Point:       point,
		Value:       value,
		Best:        rec.best(),
		Evaluations: rec.len(),
	})
}

func updateReason(err error) Reason {
	if errors.Is(err, &gp.ModelFitError{}) {
		return ReasonModelFitFailed
	}
	return ReasonUpdateFailed
}
