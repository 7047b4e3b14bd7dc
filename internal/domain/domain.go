package domain

import (
	"fmt"
	"math"
	"math/rand"
)

// Kind identifies the type of a parameter.
type Kind int

const (
	Continuous Kind = iota
	Discrete
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Discrete:
		return "discrete"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Parameter describes one coordinate of the search space.
//
// Continuous parameters take any value in [Min, Max]. Discrete parameters
// take values Min, Min+Step, ... up to Max. Categorical parameters encode
// their level index, so valid coordinates are 0..len(Levels)-1.
type Parameter struct {
	Name   string
	Kind   Kind
	Min    float64
	Max    float64
	Step   float64  // Discrete only
	Levels []string // Categorical only
}

func (p Parameter) validate() error {
	switch p.Kind {
	case Continuous:
		if p.Max <= p.Min {
			return fmt.Errorf("parameter %q: max %g must exceed min %g", p.Name, p.Max, p.Min)
		}
	case Discrete:
		if p.Max <= p.Min {
			return fmt.Errorf("parameter %q: max %g must exceed min %g", p.Name, p.Max, p.Min)
		}
		if p.Step <= 0 {
			return fmt.Errorf("parameter %q: step must be positive", p.Name)
		}
	case Categorical:
		if len(p.Levels) == 0 {
			return fmt.Errorf("parameter %q: categorical parameter needs at least one level", p.Name)
		}
	default:
		return fmt.Errorf("parameter %q: unknown kind %d", p.Name, p.Kind)
	}
	return nil
}

// bounds returns the numeric range of valid coordinate values.
func (p Parameter) bounds() (lower, upper float64) {
	if p.Kind == Categorical {
		return 0, float64(len(p.Levels) - 1)
	}
	return p.Min, p.Max
}

// contains reports whether v is a valid coordinate for this parameter.
func (p Parameter) contains(v float64) bool {
	switch p.Kind {
	case Continuous:
		return v >= p.Min && v <= p.Max
	case Discrete:
		if v < p.Min || v > p.Max {
			return false
		}
		steps := (v - p.Min) / p.Step
		return math.Abs(steps-math.Round(steps)) < 1e-9
	case Categorical:
		idx := math.Round(v)
		return v == idx && idx >= 0 && idx < float64(len(p.Levels))
	}
	return false
}

// clamp snaps v to the nearest valid coordinate.
func (p Parameter) clamp(v float64) float64 {
	lower, upper := p.bounds()
	v = math.Max(lower, math.Min(upper, v))
	switch p.Kind {
	case Discrete:
		steps := math.Round((v - p.Min) / p.Step)
		v = p.Min + steps*p.Step
		if v > p.Max {
			v -= p.Step
		}
	case Categorical:
		v = math.Round(v)
	}
	return v
}

// Domain is an ordered set of parameters defining the feasible input space.
// Dimensionality is fixed after construction.
type Domain struct {
	params []Parameter
}

// New builds a domain from the given parameters.
func New(params ...Parameter) (*Domain, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("domain needs at least one parameter")
	}
	for _, p := range params {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}
	ps := make([]Parameter, len(params))
	copy(ps, params)
	return &Domain{params: ps}, nil
}

// MustBox builds a continuous box domain from per-dimension [lower, upper]
// pairs. It panics on invalid bounds and is intended for tests and built-in
// benchmark definitions.
func MustBox(bounds ...[2]float64) *Domain {
	params := make([]Parameter, len(bounds))
	for i, b := range bounds {
		params[i] = Parameter{
			Name: fmt.Sprintf("x%d", i),
			Kind: Continuous,
			Min:  b[0],
			Max:  b[1],
		}
	}
	d, err := New(params...)
	if err != nil {
		panic(err)
	}
	return d
}

// Dim returns the dimensionality of the domain.
func (d *Domain) Dim() int {
	return len(d.params)
}

// Parameters returns the ordered parameter descriptors.
func (d *Domain) Parameters() []Parameter {
	ps := make([]Parameter, len(d.params))
	copy(ps, d.params)
	return ps
}

// Contains reports whether the point is valid: correct dimensionality and
// every coordinate satisfying its parameter's constraint.
func (d *Domain) Contains(x []float64) bool {
	if len(x) != len(d.params) {
		return false
	}
	for i, p := range d.params {
		if !p.contains(x[i]) {
			return false
		}
	}
	return true
}

// Bounds returns per-dimension lower and upper coordinate bounds.
func (d *Domain) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(d.params))
	upper = make([]float64, len(d.params))
	for i, p := range d.params {
		lower[i], upper[i] = p.bounds()
	}
	return lower, upper
}

// Sample draws a uniform random point from the domain.
func (d *Domain) Sample(rng *rand.Rand) []float64 {
	x := make([]float64, len(d.params))
	for i, p := range d.params {
		switch p.Kind {
		case Continuous:
			x[i] = p.Min + rng.Float64()*(p.Max-p.Min)
		case Discrete:
			n := int(math.Floor((p.Max-p.Min)/p.Step)) + 1
			x[i] = p.Min + float64(rng.Intn(n))*p.Step
		case Categorical:
			x[i] = float64(rng.Intn(len(p.Levels)))
		}
	}
	return x
}

// Clamp snaps each coordinate of x to the nearest valid value in place and
// returns x. Inner optimizers working on a continuous relaxation use this to
// land back on the feasible grid.
func (d *Domain) Clamp(x []float64) []float64 {
	for i, p := range d.params {
		x[i] = p.clamp(x[i])
	}
	return x
}
