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
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	objectiveName  string
	acqName        string
	optimizerName  string
	nIter          int
	initialSamples int
	fitRestarts    int
	xi             float64
	beta           float64
	seed           int64
	runDataDir     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single optimization",
	Long: `Runs Bayesian optimization against a registered objective and prints
the best point found. With --data-dir, the run is checkpointed and traced
under a generated job ID so it can be inspected or resumed later.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&objectiveName, "objective", "", "Objective name (required)")
	runCmd.Flags().StringVar(&acqName, "acq", "ei", "Acquisition function: ei, pi, ucb")
	runCmd.Flags().StringVar(&optimizerName, "optimizer", "mayfly", "Inner optimizer: mayfly, neldermead, random")
	runCmd.Flags().IntVar(&nIter, "iters", 25, "Number of optimization iterations")
	runCmd.Flags().IntVar(&initialSamples, "init", 5, "Number of initial design samples")
	runCmd.Flags().IntVar(&fitRestarts, "restarts", 0, "Hyperparameter fit restarts (0 = model default)")
	runCmd.Flags().Float64Var(&xi, "xi", 0.01, "Exploration margin for ei/pi")
	runCmd.Flags().Float64Var(&beta, "beta", 2, "Exploration weight for ucb")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Checkpoint/trace directory (empty = no persistence)")

	runCmd.MarkFlagRequired("objective")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	slog.Info("Starting optimization",
		"objective", objectiveName,
		"acquisition", acqName,
		"optimizer", optimizerName,
		"iters", nIter,
	)

	dom, acq, inner, obj, err := loop.Components(loop.Spec{
		Objective:   objectiveName,
		Acquisition: acqName,
		Optimizer:   optimizerName,
		Xi:          xi,
		Beta:        beta,
		Seed:        seed,
	})
	if err != nil {
		return err
	}

	config := store.JobConfig{
		Objective:        objectiveName,
		Acquisition:      acqName,
		Optimizer:        optimizerName,
		NIter:            nIter,
		InitialSamples:   initialSamples,
		OptimizeRestarts: fitRestarts,
		Xi:               xi,
		Beta:             beta,
		Seed:             seed,
	}

	jobID := uuid.New().String()
	var trace *store.TraceWriter
	if runDataDir != "" {
		trace, err = store.NewTraceWriter(runDataDir, jobID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer trace.Close()
	}

	l, err := loop.New(dom, acq, inner, obj, loop.Config{
		NIter:            nIter,
		OptimizeRestarts: fitRestarts,
		InitialDesign:    loop.InitialDesign(initialSamples),
		Seed:             seed,
		OnProgress: func(p loop.Progress) {
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
		return err
	}

	// Ctrl-C stops cleanly at the next iteration boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res := l.Run(ctx)
	elapsed := time.Since(start)

	if runDataDir != "" && res.Evaluations > 0 {
		checkpointStore, err := store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		checkpoint := store.NewCheckpoint(jobID, res.X, res.Y, config)
		if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		slog.Info("Checkpoint saved", "job_id", jobID, "evaluations", res.Evaluations)
	}

	if !res.Success {
		return fmt.Errorf("optimization terminated (%s) after %d evaluations: %w", res.Reason, res.Evaluations, res.Err)
	}

	slog.Info("Optimization complete",
		"elapsed", elapsed,
		"evaluations", res.Evaluations,
		"best", res.BestValue(),
	)

	fmt.Printf("Best value %.6g at %v after %d evaluations (%s)\n",
		res.BestValue(), res.BestX, res.Evaluations, elapsed.Round(time.Millisecond))
	if runDataDir != "" {
		fmt.Printf("Job ID: %s\n", jobID)
	}

	return nil
}
