package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/bayesopt/internal/loop"
	"github.com/cwbudde/bayesopt/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir   string
	resumeIters     int
	resumeOptimizer string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume an optimization from its checkpoint",
	Long: `Loads a saved checkpoint and continues the optimization from its
evaluation history. The surrogate models are rebuilt from the recorded
observations, so the resumed run starts exactly where the original left
off. The objective and acquisition must match the checkpoint; the inner
optimizer and iteration count may differ.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "data", "Checkpoint/trace directory")
	resumeCmd.Flags().IntVar(&resumeIters, "iters", 25, "Number of additional iterations")
	resumeCmd.Flags().StringVar(&resumeOptimizer, "optimizer", "", "Inner optimizer override (empty = checkpoint's)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint is corrupted: %w", err)
	}
	// Empty-history checkpoints validate but carry nothing to resume from.
	if checkpoint.Evaluations == 0 {
		return fmt.Errorf("checkpoint %s has no evaluation history to resume from", jobID)
	}

	config := checkpoint.Config
	config.NIter = resumeIters
	if resumeOptimizer != "" {
		config.Optimizer = resumeOptimizer
	}
	if err := checkpoint.IsCompatible(config); err != nil {
		return err
	}

	slog.Info("Resuming optimization",
		"job_id", jobID,
		"objective", config.Objective,
		"evaluations", checkpoint.Evaluations,
		"best", checkpoint.BestY[0],
		"iters", resumeIters,
	)

	dom, acq, inner, obj, err := loop.Components(loop.Spec{
		Objective:   config.Objective,
		Acquisition: config.Acquisition,
		Optimizer:   config.Optimizer,
		Xi:          config.Xi,
		Beta:        config.Beta,
		Seed:        config.Seed,
	})
	if err != nil {
		return err
	}

	// Rebuild the surrogates from the saved history in one batched update.
	if err := acq.Update(checkpoint.X, checkpoint.Y); err != nil {
		return fmt.Errorf("failed to rebuild models from checkpoint: %w", err)
	}

	// Append to the original trace rather than starting a fresh one.
	trace, err := store.NewTraceWriter(resumeDataDir, jobID, true)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer trace.Close()

	l, err := loop.New(dom, acq, inner, obj, loop.Config{
		NIter:            resumeIters,
		OptimizeRestarts: config.OptimizeRestarts,
		InitialDesign:    nil, // history replaces seeding
		Seed:             config.Seed + int64(checkpoint.Evaluations),
		OnProgress: func(p loop.Progress) {
			trace.Write(store.TraceEntry{
				Iteration: checkpoint.Evaluations + p.Evaluations,
				Phase:     p.Phase,
				Value:     p.Value,
				Best:      p.Best,
				Point:     p.Point,
				Timestamp: time.Now(),
			})
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res := l.Run(ctx)
	elapsed := time.Since(start)

	// Merge the new evaluations into the saved history and re-checkpoint.
	mergedX := append(checkpoint.X, res.X...)
	mergedY := append(checkpoint.Y, res.Y...)
	if len(res.X) > 0 {
		merged := store.NewCheckpoint(jobID, mergedX, mergedY, config)
		if err := checkpointStore.SaveCheckpoint(jobID, merged); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		slog.Info("Checkpoint updated", "job_id", jobID, "evaluations", merged.Evaluations)
	}

	if !res.Success {
		return fmt.Errorf("optimization terminated (%s) after %d new evaluations: %w", res.Reason, res.Evaluations, res.Err)
	}

	// The resumed run's best may predate this session.
	bestX, bestY := res.BestX, res.BestY
	if len(bestY) == 0 || checkpoint.BestY[0] < bestY[0] {
		bestX, bestY = checkpoint.BestX, checkpoint.BestY
	}

	slog.Info("Optimization complete",
		"elapsed", elapsed,
		"new_evaluations", res.Evaluations,
		"total_evaluations", checkpoint.Evaluations+res.Evaluations,
		"best", bestY[0],
	)

	fmt.Printf("Best value %.6g at %v after %d total evaluations (%s)\n",
		bestY[0], bestX, checkpoint.Evaluations+res.Evaluations, elapsed.Round(time.Millisecond))

	return nil
}
