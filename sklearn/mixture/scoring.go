package mixture

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/core/data"
)

// scoreDataset returns the total negative log-likelihood of ds under p,
// visiting unshuffled batches of batchSize. It never modifies p.
func scoreDataset(ctx context.Context, p *Params, ds data.Dataset, batchSize, prefetch, workers int) (float64, error) {
	loader := &data.Loader{Dataset: ds, BatchSize: batchSize, Prefetch: prefetch}
	total := 0.0
	err := loader.ForEach(ctx, func(batch *mat.Dense) error {
		nll, err := negLogLikelihood(p, batch, workers)
		if err != nil {
			return err
		}
		total += nll
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
