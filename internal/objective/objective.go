// Package objective defines the true objective function contract and a
// registry of built-in benchmark functions used by the CLI, the job server
// and tests.
package objective

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/bayesopt/internal/domain"
)

// Objective is the expensive black-box function being minimized. Column 0 of
// each output row is the objective value; further columns are constraint
// outputs (feasible when <= 0 by convention).
type Objective interface {
	// Evaluate returns one output row per input point.
	Evaluate(x [][]float64) ([][]float64, error)

	// Outputs returns the number of output columns.
	Outputs() int

	// Dim returns the expected input dimensionality.
	Dim() int
}

// Func adapts a plain pointwise function to the Objective contract.
type Func struct {
	F       func(x []float64) []float64
	Columns int
	Inputs  int
}

func (f Func) Evaluate(x [][]float64) ([][]float64, error) {
	rows := make([][]float64, len(x))
	for i, p := range x {
		if len(p) != f.Inputs {
			return nil, fmt.Errorf("objective expects %d-dimensional points, got %d", f.Inputs, len(p))
		}
		rows[i] = f.F(p)
	}
	return rows, nil
}

func (f Func) Outputs() int { return f.Columns }

func (f Func) Dim() int { return f.Inputs }

// Benchmark is a named objective with its canonical domain.
type Benchmark struct {
	Name      string
	Objective Objective
	Domain    *domain.Domain
}

var benchmarks = map[string]Benchmark{}

func register(b Benchmark) {
	benchmarks[b.Name] = b
}

// Lookup returns the named benchmark.
func Lookup(name string) (Benchmark, error) {
	b, ok := benchmarks[name]
	if !ok {
		return Benchmark{}, fmt.Errorf("unknown objective %q (available: %v)", name, Names())
	}
	return b, nil
}

// Names lists the registered benchmark names, sorted.
func Names() []string {
	names := make([]string, 0, len(benchmarks))
	for name := range benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(Benchmark{
		Name: "sphere",
		Domain: domain.MustBox(
			[2]float64{-2, 2},
			[2]float64{-1, 2},
		),
		Objective: Func{
			Inputs:  2,
			Columns: 1,
			F: func(x []float64) []float64 {
				var sum float64
				for _, v := range x {
					sum += v * v
				}
				return []float64{sum}
			},
		},
	})

	register(Benchmark{
		Name: "rosenbrock",
		Domain: domain.MustBox(
			[2]float64{-2, 2},
			[2]float64{-1, 3},
		),
		Objective: Func{
			Inputs:  2,
			Columns: 1,
			F: func(x []float64) []float64 {
				a := 1 - x[0]
				b := x[1] - x[0]*x[0]
				return []float64{a*a + 100*b*b}
			},
		},
	})

	register(Benchmark{
		Name: "branin",
		Domain: domain.MustBox(
			[2]float64{-5, 10},
			[2]float64{0, 15},
		),
		Objective: Func{
			Inputs:  2,
			Columns: 1,
			F: func(x []float64) []float64 {
				b := 5.1 / (4 * math.Pi * math.Pi)
				c := 5 / math.Pi
				t := 1 / (8 * math.Pi)
				v := x[1] - b*x[0]*x[0] + c*x[0] - 6
				return []float64{v*v + 10*(1-t)*math.Cos(x[0]) + 10}
			},
		},
	})

	// Sphere with a disk constraint: feasible iff |x - (1,1)|^2 <= 1.
	// Column 1 is the constraint output, feasible when <= 0.
	register(Benchmark{
		Name: "constrained-sphere",
		Domain: domain.MustBox(
			[2]float64{-2, 2},
			[2]float64{-2, 2},
		),
		Objective: Func{
			Inputs:  2,
			Columns: 2,
			F: func(x []float64) []float64 {
				var sum float64
				for _, v := range x {
					sum += v * v
				}
				dx := x[0] - 1
				dy := x[1] - 1
				return []float64{sum, dx*dx + dy*dy - 1}
			},
		},
	})
}
