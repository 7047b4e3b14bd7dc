package acquisition

import (
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// update implements the shared model-consistency protocol for a subtree
// rooted at a:
//
//  1. collect owned models, deduplicated by identity,
//  2. append the batch to each unique model once,
//  3. refit every model exactly once, in parallel, with seeds derived from
//     rng before dispatch,
//  4. recompute setup caches only after all fits join.
//
// Any failure marks the whole subtree stale and aborts before step 4; the
// stale cache is discarded, never reused.
func update(a Acquisition, rng *rand.Rand, x, y [][]float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("update batch mismatch: %d points, %d output rows", len(x), len(y))
	}

	set := newModelSet()
	if err := a.collectModels(set); err != nil {
		return err
	}

	for _, row := range y {
		for _, col := range set.cols {
			if col >= len(row) {
				return fmt.Errorf("output row has %d columns, model bound to column %d", len(row), col)
			}
		}
	}

	for i, m := range set.models {
		col := set.cols[i]
		ys := make([]float64, len(y))
		for j, row := range y {
			ys[j] = row[col]
		}
		if err := m.AppendData(x, ys); err != nil {
			a.markStale()
			return fmt.Errorf("append to model %d: %w", i, err)
		}
	}

	// Independent models have no ordering dependency; fit them concurrently.
	seeds := make([]int64, len(set.models))
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	var group errgroup.Group
	for i, m := range set.models {
		group.Go(func() error {
			return m.Fit(rand.New(rand.NewSource(seeds[i])))
		})
	}
	if err := group.Wait(); err != nil {
		a.markStale()
		return err
	}

	// A failed setup recomputation is as fatal as a failed fit: the models
	// already hold the new data, so the old cache must not survive it.
	if err := a.resetup(); err != nil {
		a.markStale()
		return err
	}
	return nil
}
