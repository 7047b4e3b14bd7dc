package loop

import (
	"fmt"

	"github.com/cwbudde/bayesopt/internal/acquisition"
	"github.com/cwbudde/bayesopt/internal/design"
	"github.com/cwbudde/bayesopt/internal/domain"
	"github.com/cwbudde/bayesopt/internal/gp"
	"github.com/cwbudde/bayesopt/internal/kernel"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/optimizer"
)

// Spec names the components of a run in registry terms, the form job
// configurations and CLI flags arrive in.
type Spec struct {
	Objective   string  // benchmark name, see objective.Names
	Acquisition string  // ei, pi, ucb
	Optimizer   string  // mayfly, neldermead, random
	Xi          float64 // exploration margin for ei/pi
	Beta        float64 // exploration weight for ucb
	Seed        int64
}

// Components resolves a spec against the registries and constructs the
// domain, acquisition, inner optimizer and objective for it. Objectives with
// constraint columns get one feasibility acquisition per constraint,
// composed multiplicatively with the optimality criterion over fresh
// surrogates.
func Components(spec Spec) (*domain.Domain, Acquisition, optimizer.Optimizer, objective.Objective, error) {
	bench, err := objective.Lookup(spec.Objective)
	if err != nil {
		return nil, nil, nil, nil, &ConfigurationError{Reason: err.Error()}
	}

	crit, err := criterionFor(spec)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	objModel := gp.New(kernel.NewRBF(1.0))
	single := acquisition.NewSingle(objModel, crit, acquisition.WithSeed(spec.Seed))

	var acq Acquisition = single
	if n := bench.Objective.Outputs(); n > 1 {
		constraints := make([]acquisition.Acquisition, 0, n-1)
		for col := 1; col < n; col++ {
			conModel := gp.New(kernel.NewRBF(1.0))
			constraints = append(constraints, acquisition.NewSingle(
				conModel,
				acquisition.Feasibility{Threshold: 0},
				acquisition.WithColumn(col),
				acquisition.WithSeed(spec.Seed+int64(col)),
			))
		}
		constrained, err := acquisition.NewConstrained(single, constraints...)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		acq = constrained
	}

	inner, err := optimizerFor(spec)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return bench.Domain, acq, inner, bench.Objective, nil
}

func criterionFor(spec Spec) (acquisition.Criterion, error) {
	switch spec.Acquisition {
	case "", "ei":
		return acquisition.ExpectedImprovement{Xi: spec.Xi}, nil
	case "pi":
		return acquisition.ProbabilityOfImprovement{Xi: spec.Xi}, nil
	case "ucb":
		beta := spec.Beta
		if beta == 0 {
			beta = 2
		}
		return acquisition.ConfidenceBound{Beta: beta}, nil
	default:
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("unknown acquisition %q (available: ei, pi, ucb)", spec.Acquisition),
		}
	}
}

func optimizerFor(spec Spec) (optimizer.Optimizer, error) {
	switch spec.Optimizer {
	case "", "mayfly":
		return optimizer.NewMayfly(100, 30, spec.Seed), nil
	case "neldermead":
		return optimizer.NewNelderMead(10, spec.Seed), nil
	case "random":
		return optimizer.NewRandomSearch(2000, spec.Seed), nil
	default:
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("unknown optimizer %q (available: mayfly, neldermead, random)", spec.Optimizer),
		}
	}
}

// InitialDesign returns the seeding generator for n initial samples, nil
// when n is zero (resume runs seed from history instead).
func InitialDesign(n int) design.Generator {
	if n <= 0 {
		return nil
	}
	return design.LatinHypercube{N: n}
}
