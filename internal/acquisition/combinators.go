package acquisition

import (
	"fmt"
	"math/rand"
)

// Sum combines child acquisitions by weighted addition. Shared underlying
// models are refit at most once per update regardless of how many children
// reference them.
type Sum struct {
	children []Acquisition
	weights  []float64
	rng      *rand.Rand
}

// NewSum creates a weighted-sum combinator. A nil weights slice means unit
// weights; otherwise len(weights) must equal len(children).
func NewSum(weights []float64, children ...Acquisition) (*Sum, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("sum combinator needs at least one child")
	}
	if weights == nil {
		weights = make([]float64, len(children))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(children) {
		return nil, fmt.Errorf("got %d weights for %d children", len(weights), len(children))
	}
	return &Sum{
		children: children,
		weights:  append([]float64(nil), weights...),
		rng:      rand.New(rand.NewSource(1)),
	}, nil
}

func (s *Sum) Evaluate(x [][]float64) ([]float64, error) {
	total := make([]float64, len(x))
	for i, child := range s.children {
		scores, err := child.Evaluate(x)
		if err != nil {
			return nil, err
		}
		for j, v := range scores {
			total[j] += s.weights[i] * v
		}
	}
	return total, nil
}

func (s *Sum) Update(x, y [][]float64) error {
	return update(s, s.rng, x, y)
}

func (s *Sum) Dim() int { return childDim(s.children) }

func (s *Sum) collectModels(dst *modelSet) error {
	return collectChildren(s.children, dst)
}

func (s *Sum) SetFitRestarts(n int) { setChildrenRestarts(s.children, n) }

func (s *Sum) resetup() error { return resetupChildren(s.children) }

func (s *Sum) markStale() { markChildrenStale(s.children) }

// Product combines child acquisitions by multiplication. Its main use is
// composing an optimality criterion with feasibility probabilities so that
// infeasible regions are suppressed multiplicatively, preserving gradient
// information for the inner optimizer.
type Product struct {
	children []Acquisition
	rng      *rand.Rand
}

// NewProduct creates a product combinator.
func NewProduct(children ...Acquisition) (*Product, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("product combinator needs at least one child")
	}
	return &Product{
		children: children,
		rng:      rand.New(rand.NewSource(1)),
	}, nil
}

// NewConstrained composes an objective acquisition with one feasibility
// acquisition per constraint output.
func NewConstrained(objective Acquisition, constraints ...Acquisition) (*Product, error) {
	if len(constraints) == 0 {
		return nil, fmt.Errorf("constrained acquisition needs at least one constraint")
	}
	return NewProduct(append([]Acquisition{objective}, constraints...)...)
}

func (p *Product) Evaluate(x [][]float64) ([]float64, error) {
	total := make([]float64, len(x))
	for i := range total {
		total[i] = 1
	}
	for _, child := range p.children {
		scores, err := child.Evaluate(x)
		if err != nil {
			return nil, err
		}
		for j, v := range scores {
			total[j] *= v
		}
	}
	return total, nil
}

func (p *Product) Update(x, y [][]float64) error {
	return update(p, p.rng, x, y)
}

func (p *Product) Dim() int { return childDim(p.children) }

func (p *Product) collectModels(dst *modelSet) error {
	return collectChildren(p.children, dst)
}

func (p *Product) SetFitRestarts(n int) { setChildrenRestarts(p.children, n) }

func (p *Product) resetup() error { return resetupChildren(p.children) }

func (p *Product) markStale() { markChildrenStale(p.children) }

func childDim(children []Acquisition) int {
	for _, c := range children {
		if d := c.Dim(); d > 0 {
			return d
		}
	}
	return 0
}

func collectChildren(children []Acquisition, dst *modelSet) error {
	for _, c := range children {
		if err := c.collectModels(dst); err != nil {
			return err
		}
	}
	return nil
}

// A combinator's cache is valid iff all descendant caches are valid.
func resetupChildren(children []Acquisition) error {
	for _, c := range children {
		if err := c.resetup(); err != nil {
			return err
		}
	}
	return nil
}

func markChildrenStale(children []Acquisition) {
	for _, c := range children {
		c.markStale()
	}
}

func setChildrenRestarts(children []Acquisition, n int) {
	for _, c := range children {
		c.SetFitRestarts(n)
	}
}
