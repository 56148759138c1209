package data

import (
	"context"
	"math/rand/v2"

	"github.com/sourcegraph/conc"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// Loader delivers a Dataset as a sequence of minibatches.
//
// Every batch is a freshly allocated *mat.Dense; the callback may keep it.
// With Prefetch > 0 batches are assembled on a producer goroutine up to
// Prefetch batches ahead of the consumer.
type Loader struct {
	Dataset   Dataset
	BatchSize int
	Shuffle   bool
	Prefetch  int

	// Rand drives shuffling. nil uses the global source.
	Rand *rand.Rand
}

// NumBatches returns the number of batches in one pass.
func (l *Loader) NumBatches() int {
	n := l.Dataset.Len()
	if n == 0 || l.BatchSize <= 0 {
		return 0
	}
	return (n + l.BatchSize - 1) / l.BatchSize
}

type batchResult struct {
	batch *mat.Dense
	err   error
}

// ForEach makes one pass over the dataset, calling fn for every batch in
// order. It stops at the first error returned by fn or by the dataset, or
// when ctx is cancelled. No goroutine outlives the call.
func (l *Loader) ForEach(ctx context.Context, fn func(batch *mat.Dense) error) error {
	if l.BatchSize <= 0 {
		return errors.NewValidationError("batch_size", "must be positive", l.BatchSize)
	}
	n := l.Dataset.Len()
	if n == 0 {
		return errors.ErrEmptyData
	}
	order := l.order(n)

	if l.Prefetch <= 0 {
		for start := 0; start < n; start += l.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := Gather(l.Dataset, order[start:min(start+l.BatchSize, n)])
			if err != nil {
				return err
			}
			if err := fn(batch); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	batches := make(chan batchResult, l.Prefetch)

	var wg conc.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Go(func() {
		defer close(batches)
		for start := 0; start < n && ctx.Err() == nil; start += l.BatchSize {
			batch, err := Gather(l.Dataset, order[start:min(start+l.BatchSize, n)])
			select {
			case batches <- batchResult{batch: batch, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-batches:
			if !ok {
				return nil
			}
			if res.err != nil {
				return res.err
			}
			if err := fn(res.batch); err != nil {
				return err
			}
		}
	}
}

func (l *Loader) order(n int) []int {
	if !l.Shuffle {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if l.Rand != nil {
		return l.Rand.Perm(n)
	}
	return rand.Perm(n)
}
