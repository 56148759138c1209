// Package gmmsgd fits Gaussian mixture models with stochastic gradient
// descent, for datasets too large for batch expectation-maximization.
//
// # Packages
//
//   - sklearn/mixture: the SGDGMM estimator (fitting, scoring, prediction)
//   - sklearn/cluster: streaming minibatch k-means used to initialize it
//   - core/data: datasets, memory-mapped binary files and the minibatch loader
//   - core/optim: Adam and the multi-step learning-rate schedule
//   - preprocessing: feature standardization
//   - pkg/errors, pkg/log: structured errors and zerolog-backed logging
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/gmmsgd/sklearn/mixture"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(4, 1, []float64{-2.1, -1.9, 2.0, 2.2})
//
//	    gmm := mixture.NewSGDGMM(2, 1,
//	        mixture.WithEpochs(100),
//	        mixture.WithBatchSize(2),
//	        mixture.WithRandomState(0),
//	    )
//	    if err := gmm.Fit(context.Background(), X); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    means, _ := gmm.Means()
//	    fmt.Println(mat.Formatted(means))
//	}
//
// The cmd/gmmfit command exposes the same estimator for CSV and raw binary
// files.
package gmmsgd
