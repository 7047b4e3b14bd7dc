package optimizer

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/bayesopt/internal/domain"
)

// NelderMead runs multistart Nelder-Mead simplex searches over a continuous
// relaxation of the domain, clamping every evaluated point back onto the
// feasible grid.
type NelderMead struct {
	starts int
	seed   int64
}

// NewNelderMead creates a multistart simplex optimizer.
func NewNelderMead(starts int, seed int64) Optimizer {
	return &NelderMead{starts: starts, seed: seed}
}

func (n *NelderMead) Optimize(score func([]float64) float64, d *domain.Domain) ([]float64, float64, error) {
	rng := rand.New(rand.NewSource(n.seed))
	lower, upper := d.Bounds()

	clamped := func(x []float64) []float64 {
		y := make([]float64, len(x))
		copy(y, x)
		for i := range y {
			y[i] = math.Max(lower[i], math.Min(upper[i], y[i]))
		}
		return d.Clamp(y)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -score(clamped(x))
		},
	}

	var best []float64
	bestScore := math.Inf(-1)
	for i := 0; i < n.starts; i++ {
		result, err := optimize.Minimize(problem, d.Sample(rng), nil, &optimize.NelderMead{})
		if err != nil {
			// A single failed start is not fatal; keep searching.
			continue
		}
		if s := -result.F; s > bestScore && !math.IsNaN(s) {
			bestScore = s
			best = clamped(result.X)
		}
	}

	if best == nil || math.IsInf(bestScore, -1) {
		return nil, 0, &SearchError{Optimizer: "nelder-mead", Reason: "all starts failed"}
	}
	return best, bestScore, nil
}
