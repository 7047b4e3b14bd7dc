// Package kernel provides covariance kernels for Gaussian process surrogates.
package kernel

import (
	"fmt"
	"math"
)

// Kernel measures similarity between two points in the input space.
// Hyperparameters are exposed in natural (positive) space; fitting code is
// expected to search in log space and call SetParams with exponentiated
// values.
type Kernel interface {
	// Eval returns the covariance between x1 and x2.
	Eval(x1, x2 []float64) float64

	// Params returns the current hyperparameters.
	Params() []float64

	// SetParams replaces the hyperparameters.
	SetParams(p []float64) error

	// NumParams returns the number of hyperparameters.
	NumParams() int
}

func sqDist(x1, x2 []float64) float64 {
	var sum float64
	for i := range x1 {
		d := x1[i] - x2[i]
		sum += d * d
	}
	return sum
}

// RBF is the squared-exponential kernel
// k(x1, x2) = variance * exp(-|x1-x2|^2 / (2 * lengthScale^2)).
type RBF struct {
	Variance    float64
	LengthScale float64
}

// NewRBF returns an RBF kernel with unit variance and the given length scale.
func NewRBF(lengthScale float64) *RBF {
	return &RBF{Variance: 1.0, LengthScale: lengthScale}
}

func (k *RBF) Eval(x1, x2 []float64) float64 {
	return k.Variance * math.Exp(-sqDist(x1, x2)/(2*k.LengthScale*k.LengthScale))
}

func (k *RBF) Params() []float64 {
	return []float64{k.Variance, k.LengthScale}
}

func (k *RBF) SetParams(p []float64) error {
	if len(p) != 2 {
		return fmt.Errorf("rbf kernel expects 2 hyperparameters, got %d", len(p))
	}
	if p[0] <= 0 || p[1] <= 0 {
		return fmt.Errorf("rbf hyperparameters must be positive, got %v", p)
	}
	k.Variance, k.LengthScale = p[0], p[1]
	return nil
}

func (k *RBF) NumParams() int { return 2 }

// Matern52 is the Matérn kernel with smoothness 5/2, a common choice when
// the RBF's infinite smoothness assumption is too strong.
type Matern52 struct {
	Variance    float64
	LengthScale float64
}

// NewMatern52 returns a Matérn 5/2 kernel with unit variance.
func NewMatern52(lengthScale float64) *Matern52 {
	return &Matern52{Variance: 1.0, LengthScale: lengthScale}
}

func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(sqDist(x1, x2)) / k.LengthScale
	s := math.Sqrt(5) * r
	return k.Variance * (1 + s + 5*r*r/3) * math.Exp(-s)
}

func (k *Matern52) Params() []float64 {
	return []float64{k.Variance, k.LengthScale}
}

func (k *Matern52) SetParams(p []float64) error {
	if len(p) != 2 {
		return fmt.Errorf("matern52 kernel expects 2 hyperparameters, got %d", len(p))
	}
	if p[0] <= 0 || p[1] <= 0 {
		return fmt.Errorf("matern52 hyperparameters must be positive, got %v", p)
	}
	k.Variance, k.LengthScale = p[0], p[1]
	return nil
}

func (k *Matern52) NumParams() int { return 2 }
