// Package mixture fits Gaussian mixture models by stochastic gradient
// descent instead of expectation-maximization.
//
// Covariances are parameterized through their Cholesky factors with a
// log-transformed diagonal, so every parameter update keeps them symmetric
// positive definite. The negative log-likelihood is evaluated with a
// log-sum-exp reduction and minimized with Adam on shuffled minibatches.
// Each restart is seeded by streaming minibatch k-means; the restart with
// the lowest final validation (or training) loss becomes the model.
//
//	gmm := mixture.NewSGDGMM(3, 2,
//	    mixture.WithEpochs(200),
//	    mixture.WithRandomState(0),
//	    mixture.WithReporter(mixture.LogReporter(log.GetLogger())),
//	)
//	if err := gmm.FitWithValidation(ctx, train, val); err != nil {
//	    return err
//	}
//	labels, _ := gmm.Predict(X)
package mixture
