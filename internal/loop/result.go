package loop

import "math"

// Reason explains why a run terminated.
type Reason string

const (
	ReasonCompleted       Reason = "completed"
	ReasonCancelled       Reason = "cancelled"
	ReasonModelFitFailed  Reason = "model-fit-failed"
	ReasonUpdateFailed    Reason = "update-failed"
	ReasonOptimizerFailed Reason = "optimizer-failed"
	ReasonObjectiveFailed Reason = "objective-failed"
)

// Result is the loop's output, immutable after return. X and Y hold the full
// evaluation history in order; BestX/BestY are the best-observed row by
// objective value (column 0).
type Result struct {
	BestX       []float64
	BestY       []float64
	Success     bool
	Reason      Reason
	Evaluations int
	X           [][]float64
	Y           [][]float64
	Err         error
}

// BestValue returns the best observed objective value, or +Inf when the
// history is empty.
func (r *Result) BestValue() float64 {
	if len(r.BestY) == 0 {
		return math.Inf(1)
	}
	return r.BestY[0]
}

// recorder accumulates the loop-owned history during a run.
type recorder struct {
	x       [][]float64
	y       [][]float64
	bestIdx int
}

func newRecorder() *recorder {
	return &recorder{bestIdx: -1}
}

func (r *recorder) record(x []float64, y []float64) {
	r.x = append(r.x, append([]float64(nil), x...))
	r.y = append(r.y, append([]float64(nil), y...))
	if r.bestIdx < 0 || y[0] < r.y[r.bestIdx][0] {
		r.bestIdx = len(r.y) - 1
	}
}

func (r *recorder) len() int { return len(r.x) }

func (r *recorder) best() float64 {
	if r.bestIdx < 0 {
		return math.Inf(1)
	}
	return r.y[r.bestIdx][0]
}

func (r *recorder) result(success bool, reason Reason, err error) *Result {
	res := &Result{
		Success:     success,
		Reason:      reason,
		Evaluations: len(r.x),
		X:           r.x,
		Y:           r.y,
		Err:         err,
	}
	if r.bestIdx >= 0 {
		res.BestX = r.x[r.bestIdx]
		res.BestY = r.y[r.bestIdx]
	}
	return res
}

func (r *recorder) success() *Result {
	return r.result(true, ReasonCompleted, nil)
}

func (r *recorder) failure(reason Reason, err error) *Result {
	return r.result(false, reason, err)
}
