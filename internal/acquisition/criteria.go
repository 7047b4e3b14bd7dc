package acquisition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Criterion is the single capability acquisition variants differ in:
// computing a point-independent setup quantity from current model state, and
// scoring a candidate's predictive distribution against it.
type Criterion interface {
	Name() string

	// Setup computes the point-independent quantity needed by Score, e.g.
	// the best observed value. Must be idempotent.
	Setup(m Model) (float64, error)

	// Score maps a predictive mean/variance and the setup value to a score,
	// higher is better.
	Score(mean, variance, setup float64) float64
}

// ExpectedImprovement scores by the closed-form expected improvement below
// the best observed value. Xi is the minimum improvement margin.
type ExpectedImprovement struct {
	Xi float64
}

func (c ExpectedImprovement) Name() string { return "ei" }

func (c ExpectedImprovement) Setup(m Model) (float64, error) {
	return bestObserved(m)
}

func (c ExpectedImprovement) Score(mean, variance, setup float64) float64 {
	sigma := math.Sqrt(variance)
	improvement := setup - mean - c.Xi
	if sigma < 1e-12 {
		return math.Max(improvement, 0)
	}
	z := improvement / sigma
	return improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// ProbabilityOfImprovement scores by the probability of improving on the
// best observed value by at least Xi.
type ProbabilityOfImprovement struct {
	Xi float64
}

func (c ProbabilityOfImprovement) Name() string { return "pi" }

func (c ProbabilityOfImprovement) Setup(m Model) (float64, error) {
	return bestObserved(m)
}

func (c ProbabilityOfImprovement) Score(mean, variance, setup float64) float64 {
	sigma := math.Sqrt(variance)
	if sigma < 1e-12 {
		if setup-mean-c.Xi > 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF((setup - mean - c.Xi) / sigma)
}

// ConfidenceBound scores by the negated lower confidence bound
// beta*sigma - mean, trading exploration against exploitation via Beta.
type ConfidenceBound struct {
	Beta float64
}

func (c ConfidenceBound) Name() string { return "cb" }

func (c ConfidenceBound) Setup(m Model) (float64, error) { return 0, nil }

func (c ConfidenceBound) Score(mean, variance, setup float64) float64 {
	return c.Beta*math.Sqrt(variance) - mean
}

// Feasibility scores by the probability that the modeled constraint output
// is at or below Threshold. Multiplying it into an optimality criterion
// suppresses infeasible regions smoothly instead of masking them.
type Feasibility struct {
	Threshold float64
}

func (c Feasibility) Name() string { return "feasibility" }

func (c Feasibility) Setup(m Model) (float64, error) { return 0, nil }

func (c Feasibility) Score(mean, variance, setup float64) float64 {
	sigma := math.Sqrt(variance)
	if sigma < 1e-12 {
		if mean <= c.Threshold {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF((c.Threshold - mean) / sigma)
}

// bestObserved returns the minimum observed output of the model.
func bestObserved(m Model) (float64, error) {
	_, y := m.Observed()
	if len(y) == 0 {
		return 0, fmt.Errorf("criterion setup requires at least one observation")
	}
	return floats.Min(y), nil
}
