package gp

import "fmt"

// InvalidInputError reports a query or data point whose dimensionality does
// not match the model's input space. It always indicates a caller bug and is
// never swallowed.
type InvalidInputError struct {
	Want int
	Got  int
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: expected dimension %d, got %d", e.Want, e.Got)
}

func (e *InvalidInputError) Is(target error) bool {
	_, ok := target.(*InvalidInputError)
	return ok
}

// ModelFitError reports that hyperparameter fitting failed on every restart.
// Use errors.Is(err, &ModelFitError{}) to check for this error.
type ModelFitError struct {
	Restarts int
	Err      error
}

func (e *ModelFitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model fit failed after %d restart(s): %v", e.Restarts, e.Err)
	}
	return fmt.Sprintf("model fit failed after %d restart(s)", e.Restarts)
}

func (e *ModelFitError) Unwrap() error { return e.Err }

func (e *ModelFitError) Is(target error) bool {
	_, ok := target.(*ModelFitError)
	return ok
}
