package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/bayesopt/internal/loop"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/store"
)

// runJob executes an optimization job in the background. If checkpointStore
// is not nil and the job has checkpointInterval > 0, periodic checkpoints
// are saved from the accumulated evaluation history.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, dataDir, jobID string) error {
	defer jm.releaseCancel(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "objective", job.Config.Objective)

	dom, acq, inner, obj, err := loop.Components(loop.Spec{
		Objective:   job.Config.Objective,
		Acquisition: job.Config.Acquisition,
		Optimizer:   job.Config.Optimizer,
		Xi:          job.Config.Xi,
		Beta:        job.Config.Beta,
		Seed:        job.Config.Seed,
	})
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// The recording wrapper sees every objective evaluation, including the
	// seed batch, so checkpoints always carry the full history.
	rec := &recordingObjective{inner: obj}

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
			trace = nil
		} else {
			defer trace.Close()
		}
	}

	l, err := loop.New(dom, acq, inner, rec, loop.Config{
		NIter:            job.Config.NIter,
		OptimizeRestarts: job.Config.OptimizeRestarts,
		InitialDesign:    loop.InitialDesign(job.Config.InitialSamples),
		Seed:             job.Config.Seed,
		OnProgress: func(p loop.Progress) {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Evaluations = p.Evaluations
				j.BestValue = p.Best
			})
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:       jobID,
				State:       StateRunning,
				Phase:       p.Phase,
				Evaluations: p.Evaluations,
				Value:       p.Value,
				Best:        p.Best,
				Timestamp:   time.Now(),
			})
			if trace != nil {
				trace.Write(store.TraceEntry{
					Iteration: p.Evaluations,
					Phase:     p.Phase,
					Value:     p.Value,
					Best:      p.Best,
					Point:     p.Point,
					Timestamp: time.Now(),
				})
			}
		},
	})
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// Periodic checkpointing while the loop runs.
	checkpointDone := make(chan struct{})
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(ctx, checkpointStore, rec, jobID, job.Config, checkpointDone)
	} else {
		close(checkpointDone)
	}

	start := time.Now()
	res := l.Run(ctx)
	elapsed := time.Since(start)

	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		close(checkpointDone)
	}
	if trace != nil {
		trace.Flush()
	}

	// Final checkpoint regardless of outcome, the partial history is what
	// resume needs.
	if checkpointStore != nil && res.Evaluations > 0 {
		if err := saveCheckpoint(checkpointStore, rec, jobID, job.Config); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	endTime := time.Now()
	finalState := StateCompleted
	switch {
	case res.Success:
		finalState = StateCompleted
	case res.Reason == loop.ReasonCancelled:
		finalState = StateCancelled
	default:
		finalState = StateFailed
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.State = finalState
		j.BestX = res.BestX
		j.BestValue = res.BestValue()
		j.Evaluations = res.Evaluations
		j.EndTime = &endTime
		if res.Err != nil {
			j.Error = res.Err.Error()
		}
	})

	slog.Info("Job finished",
		"job_id", jobID,
		"state", finalState,
		"reason", res.Reason,
		"elapsed", elapsed,
		"evaluations", res.Evaluations,
		"best", res.BestValue(),
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:       jobID,
		State:       finalState,
		Evaluations: res.Evaluations,
		Best:        res.BestValue(),
		Timestamp:   time.Now(),
	})

	if res.Err != nil {
		return res.Err
	}
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// monitorCheckpoints periodically saves checkpoints during optimization
func monitorCheckpoints(ctx context.Context, checkpointStore store.Store, rec *recordingObjective, jobID string, config JobConfig, done chan struct{}) {
	interval := time.Duration(config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(checkpointStore, rec, jobID, config); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint snapshots the evaluation history into a checkpoint.
func saveCheckpoint(checkpointStore store.Store, rec *recordingObjective, jobID string, config JobConfig) error {
	x, y := rec.snapshot()
	if len(x) == 0 {
		slog.Debug("Skipping checkpoint, no evaluations yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(jobID, x, y, config)
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"evaluations", checkpoint.Evaluations,
		"best", checkpoint.BestY[0],
	)
	return nil
}

// recordingObjective wraps an objective and accumulates every evaluated
// point/row pair. The loop evaluates from a single goroutine; the mutex
// guards against concurrent snapshots from the checkpoint monitor.
type recordingObjective struct {
	mu    sync.Mutex
	inner objective.Objective
	x     [][]float64
	y     [][]float64
}

func (r *recordingObjective) Evaluate(x [][]float64) ([][]float64, error) {
	rows, err := r.inner.Evaluate(x)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	for i := range x {
		r.x = append(r.x, append([]float64(nil), x[i]...))
		r.y = append(r.y, append([]float64(nil), rows[i]...))
	}
	r.mu.Unlock()
	return rows, nil
}

func (r *recordingObjective) Outputs() int { return r.inner.Outputs() }

func (r *recordingObjective) Dim() int { return r.inner.Dim() }

func (r *recordingObjective) snapshot() (x, y [][]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x = make([][]float64, len(r.x))
	y = make([][]float64, len(r.y))
	copy(x, r.x)
	copy(y, r.y)
	return x, y
}
