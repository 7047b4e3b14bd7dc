// Package design provides design-of-experiments generators used to seed the
// optimization loop with initial points.
package design

import (
	"math/rand"

	"github.com/cwbudde/bayesopt/internal/domain"
)

// Generator produces a batch of initial points inside a domain.
type Generator interface {
	Generate(d *domain.Domain, rng *rand.Rand) [][]float64
}

// Random draws N uniform samples from the domain.
type Random struct {
	N int
}

func (g Random) Generate(d *domain.Domain, rng *rand.Rand) [][]float64 {
	points := make([][]float64, g.N)
	for i := range points {
		points[i] = d.Sample(rng)
	}
	return points
}

// Factorial generates the 2^d corner points of the domain's bounding box,
// clamped onto the feasible grid for discrete and categorical parameters.
type Factorial struct{}

func (Factorial) Generate(d *domain.Domain, rng *rand.Rand) [][]float64 {
	lower, upper := d.Bounds()
	dim := d.Dim()
	n := 1 << dim

	points := make([][]float64, 0, n)
	for mask := 0; mask < n; mask++ {
		x := make([]float64, dim)
		for i := 0; i < dim; i++ {
			if mask&(1<<i) != 0 {
				x[i] = upper[i]
			} else {
				x[i] = lower[i]
			}
		}
		points = append(points, d.Clamp(x))
	}
	return points
}

// LatinHypercube generates N stratified samples: each dimension is split
// into N equal slices and every slice is hit exactly once.
type LatinHypercube struct {
	N int
}

func (g LatinHypercube) Generate(d *domain.Domain, rng *rand.Rand) [][]float64 {
	lower, upper := d.Bounds()
	dim := d.Dim()

	// One shuffled stratum permutation per dimension.
	perms := make([][]int, dim)
	for j := range perms {
		perms[j] = rng.Perm(g.N)
	}

	points := make([][]float64, g.N)
	for i := range points {
		x := make([]float64, dim)
		for j := 0; j < dim; j++ {
			u := (float64(perms[j][i]) + rng.Float64()) / float64(g.N)
			x[j] = lower[j] + u*(upper[j]-lower[j])
		}
		points[i] = d.Clamp(x)
	}
	return points
}
