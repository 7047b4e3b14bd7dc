package optimizer

import (
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/bayesopt/internal/domain"
)

// Mayfly wraps the external mayfly evolutionary optimizer. The library takes
// scalar bounds, so the search runs in the unit cube and candidates are
// mapped onto the domain's per-dimension bounds before scoring.
type Mayfly struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer adapter.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &Mayfly{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

func (m *Mayfly) Optimize(score func([]float64) float64, d *domain.Domain) ([]float64, float64, error) {
	lower, upper := d.Bounds()
	dim := d.Dim()

	fromUnit := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return d.Clamp(x)
	}

	config := mayfly.NewDefaultConfig()
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))
	// The library minimizes; negate to maximize the acquisition.
	config.ObjectiveFunc = func(u []float64) float64 {
		return -score(fromUnit(u))
	}

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, &SearchError{Optimizer: "mayfly", Reason: err.Error()}
	}

	best := fromUnit(result.GlobalBest.Position)
	value := -result.GlobalBest.Cost
	if math.IsNaN(value) || math.IsInf(value, -1) {
		return nil, 0, &SearchError{Optimizer: "mayfly", Reason: "no finite-scored candidate found"}
	}
	return best, value, nil
}
