// Package optimizer provides inner optimizers that search the domain for the
// maximum of an acquisition surface.
package optimizer

import "github.com/cwbudde/bayesopt/internal/domain"

// Optimizer searches the domain for the point maximizing score. From the
// loop's perspective it is a pure function: no state is shared beyond the
// optimizer's own internal search state.
type Optimizer interface {
	// Optimize returns the best point found and its score. It returns a
	// SearchError when no finite-scored candidate could be produced.
	Optimize(score func([]float64) float64, d *domain.Domain) ([]float64, float64, error)
}

// SearchError reports an inner optimizer that failed to return a valid
// candidate.
type SearchError struct {
	Optimizer string
	Reason    string
}

func (e *SearchError) Error() string {
	return "inner optimizer " + e.Optimizer + " failed: " + e.Reason
}

func (e *SearchError) Is(target error) bool {
	_, ok := target.(*SearchError)
	return ok
}
