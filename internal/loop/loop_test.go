package loop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cwbudde/bayesopt/internal/acquisition"
	"github.com/cwbudde/bayesopt/internal/design"
	"github.com/cwbudde/bayesopt/internal/domain"
	"github.com/cwbudde/bayesopt/internal/gp"
	"github.com/cwbudde/bayesopt/internal/kernel"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/optimizer"
)

func sphereBenchmark(t *testing.T) objective.Benchmark {
	t.Helper()
	b, err := objective.Lookup("sphere")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	return b
}

func eiAcquisition(seed int64) *acquisition.Single {
	model := gp.New(kernel.NewRBF(1.0))
	return acquisition.NewSingle(model, acquisition.ExpectedImprovement{Xi: 0.01}, acquisition.WithSeed(seed))
}

// countingOptimizer wraps random search and counts invocations.
type countingOptimizer struct {
	inner optimizer.Optimizer
	calls int
}

func (c *countingOptimizer) Optimize(score func([]float64) float64, d *domain.Domain) ([]float64, float64, error) {
	c.calls++
	return c.inner.Optimize(score, d)
}

// fakeAcquisition lets tests script update behavior.
type fakeAcquisition struct {
	updates   int
	batchLens []int
	failAfter int // fail updates once this many have succeeded; -1 = never
	restarts  int
}

func (f *fakeAcquisition) Evaluate(x [][]float64) ([]float64, error) {
	scores := make([]float64, len(x))
	return scores, nil
}

func (f *fakeAcquisition) Update(x, y [][]float64) error {
	if f.failAfter >= 0 && f.updates >= f.failAfter {
		return &gp.ModelFitError{Restarts: 1}
	}
	f.updates++
	f.batchLens = append(f.batchLens, len(x))
	return nil
}

func (f *fakeAcquisition) Dim() int { return 0 }

func (f *fakeAcquisition) SetFitRestarts(n int) { f.restarts = n }

func TestNewValidatesDimensions(t *testing.T) {
	b := sphereBenchmark(t)
	opt := optimizer.NewRandomSearch(10, 1)

	// Acquisition whose model already carries 3-dimensional data cannot
	// drive a 2-dimensional domain.
	model := gp.New(kernel.NewRBF(1.0))
	if err := model.SetData([][]float64{{1, 2, 3}}, []float64{1}); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	acq := acquisition.NewSingle(model, acquisition.ExpectedImprovement{})

	_, err := New(b.Domain, acq, opt, b.Objective, Config{NIter: 1})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	// Objective/domain mismatch.
	threeD := domain.MustBox([2]float64{0, 1}, [2]float64{0, 1}, [2]float64{0, 1})
	_, err = New(threeD, eiAcquisition(1), opt, b.Objective, Config{NIter: 1})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	// Negative iteration count.
	_, err = New(b.Domain, eiAcquisition(1), opt, b.Objective, Config{NIter: -1})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNewForwardsRestarts(t *testing.T) {
	b := sphereBenchmark(t)
	fake := &fakeAcquisition{failAfter: -1}

	_, err := New(b.Domain, fake, optimizer.NewRandomSearch(10, 1), b.Objective, Config{NIter: 0, OptimizeRestarts: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if fake.restarts != 5 {
		t.Errorf("restarts = %d, want 5", fake.restarts)
	}
}

func TestZeroSeedsZeroIterations(t *testing.T) {
	b := sphereBenchmark(t)
	counting := &countingOptimizer{inner: optimizer.NewRandomSearch(10, 1)}

	l, err := New(b.Domain, eiAcquisition(1), counting, b.Objective, Config{NIter: 0})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if !res.Success || res.Reason != ReasonCompleted {
		t.Fatalf("expected success, got reason=%s err=%v", res.Reason, res.Err)
	}
	if res.Evaluations != 0 || len(res.X) != 0 {
		t.Errorf("expected empty history, got %d evaluations", res.Evaluations)
	}
	if counting.calls != 0 {
		t.Errorf("inner optimizer invoked %d times, want 0", counting.calls)
	}
	if l.State() != StateTerminated {
		t.Errorf("state = %v, want terminated", l.State())
	}
}

func TestSeedBatchIsSingleUpdate(t *testing.T) {
	b := sphereBenchmark(t)
	fake := &fakeAcquisition{failAfter: -1}

	l, err := New(b.Domain, fake, optimizer.NewRandomSearch(10, 1), b.Objective, Config{
		NIter:         0,
		InitialDesign: design.Factorial{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if !res.Success {
		t.Fatalf("run failed: %v", res.Err)
	}
	if fake.updates != 1 {
		t.Fatalf("seed phase made %d update calls, want 1", fake.updates)
	}
	if fake.batchLens[0] != 4 {
		t.Errorf("seed batch size = %d, want 4 corner points", fake.batchLens[0])
	}
	if res.Evaluations != 4 {
		t.Errorf("Evaluations = %d, want 4", res.Evaluations)
	}
}

// Scenario: 2D box seeded with the 4 factorial corners of sum-of-squares,
// then 10 expected-improvement iterations. The best observed value must
// never get worse than the seeded best.
func TestMonotoneImprovementOnSphere(t *testing.T) {
	b := sphereBenchmark(t)

	var seededBest float64
	seen := false
	l, err := New(b.Domain, eiAcquisition(3), optimizer.NewRandomSearch(200, 5), b.Objective, Config{
		NIter:         10,
		InitialDesign: design.Factorial{},
		Seed:          9,
		OnProgress: func(p Progress) {
			if p.Phase == "seeding" && !seen {
				seededBest = p.Best
				seen = true
			}
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if !res.Success {
		t.Fatalf("run failed: reason=%s err=%v", res.Reason, res.Err)
	}
	if res.Evaluations != 14 {
		t.Errorf("Evaluations = %d, want 4 seeds + 10 iterations", res.Evaluations)
	}
	if !seen {
		t.Fatal("no seeding progress reported")
	}
	if res.BestValue() > seededBest {
		t.Errorf("best %f worse than seeded best %f", res.BestValue(), seededBest)
	}
	// Corners of [-2,2]x[-1,2] have sum-of-squares >= 5; 10 EI iterations
	// should land well inside.
	if res.BestValue() >= 5 {
		t.Errorf("best %f shows no improvement over corners", res.BestValue())
	}
	if len(res.X) != len(res.Y) {
		t.Errorf("history length mismatch: %d X rows, %d Y rows", len(res.X), len(res.Y))
	}
}

// Scenario: a model whose fit always fails must terminate the run in failure
// with exactly the seed evaluations recorded.
func TestModelFitFailurePreservesHistory(t *testing.T) {
	b := sphereBenchmark(t)
	fake := &fakeAcquisition{failAfter: 0}

	l, err := New(b.Domain, fake, optimizer.NewRandomSearch(10, 1), b.Objective, Config{
		NIter:         10,
		InitialDesign: design.Factorial{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Reason != ReasonModelFitFailed {
		t.Errorf("reason = %s, want %s", res.Reason, ReasonModelFitFailed)
	}
	var fitErr *gp.ModelFitError
	if !errors.As(res.Err, &fitErr) {
		t.Errorf("result error should wrap ModelFitError, got %v", res.Err)
	}
	if len(res.X) != 4 {
		t.Errorf("history length = %d, want the 4 seed evaluations", len(res.X))
	}
}

func TestObjectiveFailureMidRun(t *testing.T) {
	b := sphereBenchmark(t)

	// Objective fails on the third batch (seed batch counts as one).
	calls := 0
	flaky := objective.Func{
		Inputs:  2,
		Columns: 1,
		F: func(x []float64) []float64 {
			return []float64{x[0]*x[0] + x[1]*x[1]}
		},
	}
	wrapped := &flakyObjective{inner: flaky, failOn: 3, calls: &calls}

	l, err := New(b.Domain, eiAcquisition(1), optimizer.NewRandomSearch(50, 2), wrapped, Config{
		NIter:         5,
		InitialDesign: design.Factorial{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Reason != ReasonObjectiveFailed {
		t.Errorf("reason = %s, want %s", res.Reason, ReasonObjectiveFailed)
	}
	// Seed batch plus one successful iteration were recorded.
	if len(res.X) != 5 {
		t.Errorf("history length = %d, want 5", len(res.X))
	}
}

type flakyObjective struct {
	inner  objective.Func
	failOn int
	calls  *int
}

func (f *flakyObjective) Evaluate(x [][]float64) ([][]float64, error) {
	*f.calls++
	if *f.calls >= f.failOn {
		return nil, fmt.Errorf("instrument offline")
	}
	return f.inner.Evaluate(x)
}

func (f *flakyObjective) Outputs() int { return f.inner.Outputs() }

func (f *flakyObjective) Dim() int { return f.inner.Dim() }

// misshapenObjective declares one output column but returns rows of a
// different shape, violating the objective contract.
type misshapenObjective struct {
	rows [][]float64
}

func (m *misshapenObjective) Evaluate(x [][]float64) ([][]float64, error) { return m.rows, nil }

func (m *misshapenObjective) Outputs() int { return 1 }

func (m *misshapenObjective) Dim() int { return 2 }

func TestMisshapenObjectiveTerminatesRun(t *testing.T) {
	b := sphereBenchmark(t)

	cases := []struct {
		name string
		rows [][]float64
	}{
		{"wrong row count", [][]float64{{1}, {2}}},
		{"empty row", [][]float64{{}}},
		{"extra columns", [][]float64{{1, 2}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(b.Domain, eiAcquisition(1), optimizer.NewRandomSearch(10, 1), &misshapenObjective{rows: tc.rows}, Config{
				NIter:         3,
				InitialDesign: design.Random{N: 1},
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			res := l.Run(context.Background())
			if res.Success {
				t.Fatal("expected failure result")
			}
			if res.Reason != ReasonObjectiveFailed {
				t.Errorf("reason = %s, want %s", res.Reason, ReasonObjectiveFailed)
			}
			if len(res.X) != 0 {
				t.Errorf("history length = %d, want 0", len(res.X))
			}
		})
	}
}

func TestCancellationBetweenIterations(t *testing.T) {
	b := sphereBenchmark(t)
	ctx, cancel := context.WithCancel(context.Background())

	iterations := 0
	l, err := New(b.Domain, eiAcquisition(1), optimizer.NewRandomSearch(50, 2), b.Objective, Config{
		NIter:         20,
		InitialDesign: design.Random{N: 3},
		OnProgress: func(p Progress) {
			if p.Phase == "iterating" {
				iterations++
				if iterations == 2 {
					cancel()
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(ctx)
	if res.Success {
		t.Fatal("cancelled run must not report success")
	}
	if res.Reason != ReasonCancelled {
		t.Errorf("reason = %s, want %s", res.Reason, ReasonCancelled)
	}
	// History must hold everything evaluated before cancellation.
	if len(res.X) != 3+iterations {
		t.Errorf("history length = %d, want %d", len(res.X), 3+iterations)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("result error = %v, want context.Canceled", res.Err)
	}
}

func TestInnerOptimizerFailure(t *testing.T) {
	b := sphereBenchmark(t)

	l, err := New(b.Domain, eiAcquisition(1), failingOptimizer{}, b.Objective, Config{
		NIter:         3,
		InitialDesign: design.Factorial{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Reason != ReasonOptimizerFailed {
		t.Errorf("reason = %s, want %s", res.Reason, ReasonOptimizerFailed)
	}
	var searchErr *optimizer.SearchError
	if !errors.As(res.Err, &searchErr) {
		t.Errorf("result error should wrap SearchError, got %v", res.Err)
	}
	if len(res.X) != 4 {
		t.Errorf("history length = %d, want the 4 seed evaluations", len(res.X))
	}
}

type failingOptimizer struct{}

func (failingOptimizer) Optimize(score func([]float64) float64, d *domain.Domain) ([]float64, float64, error) {
	return nil, 0, &optimizer.SearchError{Optimizer: "test", Reason: "forced"}
}

// Constrained run: objective EI times feasibility over the constraint
// column, exercising model dedup and multi-output plumbing end to end.
func TestConstrainedRun(t *testing.T) {
	b, err := objective.Lookup("constrained-sphere")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	objModel := gp.New(kernel.NewRBF(1.0))
	conModel := gp.New(kernel.NewRBF(1.0))
	ei := acquisition.NewSingle(objModel, acquisition.ExpectedImprovement{Xi: 0.01})
	pof := acquisition.NewSingle(conModel, acquisition.Feasibility{Threshold: 0}, acquisition.WithColumn(1))
	acq, err := acquisition.NewConstrained(ei, pof)
	if err != nil {
		t.Fatalf("NewConstrained failed: %v", err)
	}

	l, err := New(b.Domain, acq, optimizer.NewRandomSearch(100, 4), b.Objective, Config{
		NIter:         5,
		InitialDesign: design.LatinHypercube{N: 6},
		Seed:          13,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res := l.Run(context.Background())
	if !res.Success {
		t.Fatalf("run failed: reason=%s err=%v", res.Reason, res.Err)
	}
	if res.Evaluations != 11 {
		t.Errorf("Evaluations = %d, want 6 seeds + 5 iterations", res.Evaluations)
	}
	if objModel.Len() != 11 || conModel.Len() != 11 {
		t.Errorf("model data lengths = %d/%d, want 11", objModel.Len(), conModel.Len())
	}
}

func TestRunDeterministicGivenSeeds(t *testing.T) {
	run := func() *Result {
		b := sphereBenchmark(t)
		l, err := New(b.Domain, eiAcquisition(21), optimizer.NewRandomSearch(100, 22), b.Objective, Config{
			NIter:         4,
			InitialDesign: design.LatinHypercube{N: 5},
			Seed:          23,
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return l.Run(context.Background())
	}

	a, b := run(), run()
	if a.BestValue() != b.BestValue() {
		t.Errorf("non-deterministic best: %f vs %f", a.BestValue(), b.BestValue())
	}
	if len(a.X) != len(b.X) {
		t.Fatalf("history lengths differ: %d vs %d", len(a.X), len(b.X))
	}
}
