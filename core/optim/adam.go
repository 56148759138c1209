package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * g
//	v_t = beta2 * v_{t-1} + (1-beta2) * g²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Adam is not goroutine-safe.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	t        int
	powBeta1 float64
	powBeta2 float64
	m, v     [][]float64
}

var _ Optimizer = (*Adam)(nil)

// AdamConfig holds configuration for Adam. Zero fields take the defaults
// LR 1e-3, Betas {0.9, 0.999}, Eps 1e-8.
type AdamConfig struct {
	LR    float64
	Betas [2]float64
	Eps   float64
}

// NewAdam creates a new Adam optimizer.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 1e-3
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	a := &Adam{
		lr:    config.LR,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
	}
	a.Reset()
	return a
}

// Step performs a single optimization step. Moment buffers are allocated on
// the first call to match the shape of params.
func (a *Adam) Step(params, grads [][]float64) error {
	if len(params) != len(grads) {
		return errors.NewDimensionError("Adam.Step", len(params), len(grads), 0)
	}
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p))
			a.v[i] = make([]float64, len(p))
		}
	}
	if len(a.m) != len(params) {
		return errors.NewDimensionError("Adam.Step", len(a.m), len(params), 0)
	}
	for i := range params {
		if len(params[i]) != len(a.m[i]) || len(grads[i]) != len(a.m[i]) {
			return errors.NewDimensionError("Adam.Step", len(a.m[i]), len(grads[i]), 1)
		}
		if err := errors.CheckNumericalStability("Adam.Step", grads[i], a.t+1); err != nil {
			return err
		}
	}

	a.t++
	a.powBeta1 *= a.beta1
	a.powBeta2 *= a.beta2
	biasCorrection1 := 1 - a.powBeta1
	biasCorrection2 := 1 - a.powBeta2

	for i, p := range params {
		g, m, v := grads[i], a.m[i], a.v[i]

		floats.Scale(a.beta1, m)
		floats.AddScaled(m, 1-a.beta1, g)

		for j, gj := range g {
			v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
			mHat := m[j] / biasCorrection1
			vHat := v[j] / biasCorrection2
			p[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
	return nil
}

// LearningRate returns the current learning rate.
func (a *Adam) LearningRate() float64 { return a.lr }

// SetLearningRate sets the learning rate used by subsequent steps.
func (a *Adam) SetLearningRate(lr float64) { a.lr = lr }

// Steps returns the number of updates applied since the last Reset.
func (a *Adam) Steps() int { return a.t }

// Reset clears the moment estimates and the step count.
func (a *Adam) Reset() {
	a.t = 0
	a.powBeta1 = 1
	a.powBeta2 = 1
	a.m = nil
	a.v = nil
}
