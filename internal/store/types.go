package store

import (
	"fmt"
	"time"
)

// JobConfig holds the configuration of an optimization job, copied into the
// checkpoint so resumed jobs can be validated against it.
type JobConfig struct {
	Objective          string  `json:"objective"`
	Acquisition        string  `json:"acquisition"` // ei, pi, ucb
	Optimizer          string  `json:"optimizer"`   // mayfly, neldermead, random
	NIter              int     `json:"nIter"`
	InitialSamples     int     `json:"initialSamples"`
	OptimizeRestarts   int     `json:"optimizeRestarts,omitempty"`
	Xi                 float64 `json:"xi,omitempty"`
	Beta               float64 `json:"beta,omitempty"`
	Seed               int64   `json:"seed"`
	CheckpointInterval int     `json:"checkpointInterval,omitempty"` // seconds, 0 = disabled
}

// Checkpoint is a saved optimization state that can be resumed later.
//
// The checkpoint stores the full evaluation history rather than any model
// state: Gaussian process surrogates are fully determined by their data and
// hyperparameters, and hyperparameters are refit on resume anyway. Saving
// X/Y keeps the format independent of the surrogate implementation and makes
// resume exact up to the refit, at the cost of checkpoint size growing
// linearly with evaluations. For the evaluation counts where Bayesian
// optimization is the right tool, that is cheap.
type Checkpoint struct {
	// JobID uniquely identifies the optimization job.
	JobID string `json:"jobId"`

	// X and Y are the full evaluation history in order: one input point and
	// one output row (objective in column 0, constraints after) per entry.
	X [][]float64 `json:"x"`
	Y [][]float64 `json:"y"`

	// BestX and BestY are the best-observed row by objective value.
	BestX []float64 `json:"bestX"`
	BestY []float64 `json:"bestY"`

	// Evaluations completed so far, including seed points.
	Evaluations int `json:"evaluations"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration for compatibility checks on resume.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the history, for listings.
type CheckpointInfo struct {
	JobID       string    `json:"jobId"`
	BestValue   float64   `json:"bestValue"`
	Evaluations int       `json:"evaluations"`
	Timestamp   time.Time `json:"timestamp"`
	Objective   string    `json:"objective"`
	Acquisition string    `json:"acquisition"`
	Optimizer   string    `json:"optimizer"`
}

// NewCheckpoint builds a checkpoint from run state. The best row is derived
// from the history rather than passed in, so it cannot disagree with it.
func NewCheckpoint(jobID string, x, y [][]float64, config JobConfig) *Checkpoint {
	c := &Checkpoint{
		JobID:       jobID,
		X:           x,
		Y:           y,
		Evaluations: len(x),
		Timestamp:   time.Now(),
		Config:      config,
	}
	for i := range y {
		if c.BestY == nil || y[i][0] < c.BestY[0] {
			c.BestX = x[i]
			c.BestY = y[i]
		}
	}
	return c
}

// ToInfo converts a full Checkpoint to metadata only.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	info := CheckpointInfo{
		JobID:       c.JobID,
		Evaluations: c.Evaluations,
		Timestamp:   c.Timestamp,
		Objective:   c.Config.Objective,
		Acquisition: c.Config.Acquisition,
		Optimizer:   c.Config.Optimizer,
	}
	if len(c.BestY) > 0 {
		info.BestValue = c.BestY[0]
	}
	return info
}

// Validate checks the checkpoint for internal consistency.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.X) != len(c.Y) {
		return &ValidationError{
			Field:  "X/Y",
			Reason: fmt.Sprintf("history length mismatch: %d inputs, %d outputs", len(c.X), len(c.Y)),
		}
	}
	if c.Evaluations != len(c.X) {
		return &ValidationError{
			Field:  "Evaluations",
			Reason: fmt.Sprintf("count %d does not match history length %d", c.Evaluations, len(c.X)),
		}
	}
	if len(c.X) > 0 {
		dim := len(c.X[0])
		cols := len(c.Y[0])
		if dim == 0 {
			return &ValidationError{Field: "X", Reason: "points cannot be empty"}
		}
		if cols == 0 {
			return &ValidationError{Field: "Y", Reason: "output rows cannot be empty"}
		}
		for i := range c.X {
			if len(c.X[i]) != dim {
				return &ValidationError{Field: "X", Reason: fmt.Sprintf("row %d has dimension %d, expected %d", i, len(c.X[i]), dim)}
			}
			if len(c.Y[i]) != cols {
				return &ValidationError{Field: "Y", Reason: fmt.Sprintf("row %d has %d columns, expected %d", i, len(c.Y[i]), cols)}
			}
		}
		if len(c.BestX) != dim || len(c.BestY) != cols {
			return &ValidationError{Field: "BestX/BestY", Reason: "missing or shaped unlike the history"}
		}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Objective == "" {
		return &ValidationError{Field: "Config.Objective", Reason: "cannot be empty"}
	}
	if c.Config.NIter < 0 {
		return &ValidationError{Field: "Config.NIter", Reason: "cannot be negative"}
	}
	return nil
}

// ValidationError reports an internally inconsistent checkpoint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// IsCompatible checks whether this checkpoint can be resumed under the given
// config. The objective and acquisition must match; iteration counts and
// optimizer choice may change between runs.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Objective != config.Objective {
		return &CompatibilityError{
			Field:    "Objective",
			Expected: c.Config.Objective,
			Actual:   config.Objective,
		}
	}
	if c.Config.Acquisition != config.Acquisition {
		return &CompatibilityError{
			Field:    "Acquisition",
			Expected: c.Config.Acquisition,
			Actual:   config.Acquisition,
		}
	}
	return nil
}

// CompatibilityError reports a checkpoint/config mismatch on resume.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}

func (e *CompatibilityError) Is(target error) bool {
	_, ok := target.(*CompatibilityError)
	return ok
}
