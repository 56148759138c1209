// Package optim provides first-order optimizers and learning-rate schedules
// operating in place on flat float64 parameter slices.
//
// Parameters are passed as a list of slices (one per parameter tensor) so a
// model can hand over its storage without copying:
//
//	opt := optim.NewAdam(optim.AdamConfig{LR: 1e-3})
//	sched := optim.NewMultiStepLR(1e-3, []int{5, 10}, 0.1)
//	for epoch := 0; epoch < epochs; epoch++ {
//	    for _, batch := range batches {
//	        grads := backward(params, batch)
//	        if err := opt.Step(params, grads); err != nil { ... }
//	    }
//	    sched.Step()
//	    opt.SetLearningRate(sched.LearningRate())
//	}
package optim

// Optimizer updates parameters in place from their gradients.
type Optimizer interface {
	// Step applies one update. params and grads must have the same shape,
	// and the shape must not change between calls until Reset.
	Step(params, grads [][]float64) error

	// LearningRate returns the current learning rate.
	LearningRate() float64

	// SetLearningRate changes the learning rate used by subsequent steps.
	SetLearningRate(lr float64)

	// Reset clears all optimizer state (moments, step count).
	Reset()
}

// Scheduler produces the learning rate for each epoch.
type Scheduler interface {
	// Step advances the schedule by one epoch.
	Step()

	// LearningRate returns the learning rate for the current epoch.
	LearningRate() float64

	// Epoch returns the number of completed Step calls.
	Epoch() int

	// Reset rewinds the schedule to epoch 0.
	Reset()
}
