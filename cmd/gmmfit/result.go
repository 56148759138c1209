package main

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/preprocessing"
	"github.com/YuminosukeSato/gmmsgd/sklearn/mixture"
)

type restartResult struct {
	Index       int      `json:"index"`
	Score       *float64 `json:"score,omitempty"`
	Epochs      int      `json:"epochs"`
	Termination string   `json:"termination"`
	Error       string   `json:"error,omitempty"`
}

type result struct {
	Weights     []float64       `json:"weights"`
	Means       [][]float64     `json:"means"`
	Covariances [][][]float64   `json:"covariances"`
	BestRestart int             `json:"best_restart"`
	TrainLoss   []float64       `json:"train_loss"`
	ValLoss     []float64       `json:"val_loss,omitempty"`
	Restarts    []restartResult `json:"restarts"`
}

// newResult collects the fitted parameters. With a scaler, means and
// covariances are mapped back to the original feature units.
func newResult(gmm *mixture.SGDGMM, scaler *preprocessing.StandardScaler) (*result, error) {
	weights, err := gmm.Weights()
	if err != nil {
		return nil, err
	}
	means, err := gmm.Means()
	if err != nil {
		return nil, err
	}
	covs, err := gmm.Covariances()
	if err != nil {
		return nil, err
	}
	best, err := gmm.BestRestart()
	if err != nil {
		return nil, err
	}

	if scaler != nil {
		if means, err = scaler.InverseTransform(means); err != nil {
			return nil, err
		}
		for k, cov := range covs {
			if covs[k], err = scaler.InverseTransformCovariance(cov); err != nil {
				return nil, err
			}
		}
	}

	res := &result{
		Weights:     weights,
		Means:       rows(means),
		BestRestart: best,
		TrainLoss:   gmm.TrainLossCurve(),
		ValLoss:     gmm.ValLossCurve(),
	}
	for _, cov := range covs {
		res.Covariances = append(res.Covariances, rows(cov))
	}
	for _, r := range gmm.Restarts() {
		rr := restartResult{
			Index:       r.Index,
			Epochs:      r.Epochs,
			Termination: r.Termination.String(),
		}
		// Failed restarts score +Inf, which JSON cannot carry.
		if !math.IsInf(r.Score, 0) {
			score := r.Score
			rr.Score = &score
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		res.Restarts = append(res.Restarts, rr)
	}
	return res, nil
}

func rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
