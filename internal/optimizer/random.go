package optimizer

import (
	"math"
	"math/rand"

	"github.com/cwbudde/bayesopt/internal/domain"
)

// RandomSearch scores N uniformly sampled candidates and returns the best.
// Cheap, gradient-free and hard to beat as a baseline on low-dimensional
// acquisition surfaces.
type RandomSearch struct {
	candidates int
	seed       int64
}

// NewRandomSearch creates a random-candidate optimizer.
func NewRandomSearch(candidates int, seed int64) Optimizer {
	return &RandomSearch{candidates: candidates, seed: seed}
}

func (r *RandomSearch) Optimize(score func([]float64) float64, d *domain.Domain) ([]float64, float64, error) {
	rng := rand.New(rand.NewSource(r.seed))

	var best []float64
	bestScore := math.Inf(-1)
	for i := 0; i < r.candidates; i++ {
		x := d.Sample(rng)
		if s := score(x); s > bestScore {
			bestScore = s
			best = x
		}
	}

	if best == nil || math.IsInf(bestScore, -1) || math.IsNaN(bestScore) {
		return nil, 0, &SearchError{Optimizer: "random", Reason: "no finite-scored candidate found"}
	}
	return best, bestScore, nil
}
