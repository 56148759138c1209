package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

func TestAdamFirstStep(t *testing.T) {
	opt := NewAdam(AdamConfig{LR: 0.1})
	params := [][]float64{{1.0, -2.0}, {3.0}}
	grads := [][]float64{{2.0, -0.5}, {0}}

	require.NoError(t, opt.Step(params, grads))

	// With bias correction the first step moves each coordinate by lr*sign(g).
	assert.InDelta(t, 0.9, params[0][0], 1e-6)
	assert.InDelta(t, -1.9, params[0][1], 1e-6)
	assert.Equal(t, 3.0, params[1][0])
	assert.Equal(t, 1, opt.Steps())
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	opt := NewAdam(AdamConfig{LR: 0.05})
	x := [][]float64{{5.0, -3.0}}
	target := []float64{1.0, 2.0}
	g := [][]float64{make([]float64, 2)}

	for i := 0; i < 2000; i++ {
		for j := range target {
			g[0][j] = 2 * (x[0][j] - target[j])
		}
		require.NoError(t, opt.Step(x, g))
	}

	assert.InDelta(t, 1.0, x[0][0], 5e-2)
	assert.InDelta(t, 2.0, x[0][1], 5e-2)
}

func TestAdamErrors(t *testing.T) {
	tests := []struct {
		name   string
		params [][]float64
		grads  [][]float64
	}{
		{"tensor count mismatch", [][]float64{{1}}, [][]float64{{1}, {2}}},
		{"length mismatch", [][]float64{{1, 2}}, [][]float64{{1}}},
		{"non-finite gradient", [][]float64{{1}}, [][]float64{{math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := NewAdam(AdamConfig{})
			assert.Error(t, opt.Step(tt.params, tt.grads))
			assert.Equal(t, 0, opt.Steps())
		})
	}

	opt := NewAdam(AdamConfig{})
	err := opt.Step([][]float64{{1}}, [][]float64{{math.Inf(1)}})
	assert.True(t, errors.IsNumericDegeneracy(err))
}

func TestAdamReset(t *testing.T) {
	opt := NewAdam(AdamConfig{LR: 0.1})
	require.NoError(t, opt.Step([][]float64{{1}}, [][]float64{{1}}))
	opt.Reset()
	assert.Equal(t, 0, opt.Steps())

	// After Reset a different shape is accepted.
	require.NoError(t, opt.Step([][]float64{{1, 2, 3}}, [][]float64{{1, 1, 1}}))

	opt.SetLearningRate(0.01)
	assert.Equal(t, 0.01, opt.LearningRate())
}

func TestMultiStepLRAtMilestones(t *testing.T) {
	const base, gamma = 1e-3, 0.1
	s := NewMultiStepLR(base, []int{10, 5}, gamma)

	want := func(epoch int) float64 {
		switch {
		case epoch < 5:
			return base
		case epoch < 10:
			return base * gamma
		default:
			return base * gamma * gamma
		}
	}

	for epoch := 0; epoch < 15; epoch++ {
		assert.Equal(t, epoch, s.Epoch())
		assert.InDelta(t, want(epoch), s.LearningRate(), 1e-18, "epoch %d", epoch)
		s.Step()
	}

	// Exactly at the milestone the decay has been applied.
	assert.InDelta(t, base*gamma, s.LearningRateAt(5), 1e-18)
	assert.InDelta(t, base, s.LearningRateAt(4), 1e-18)

	s.Reset()
	assert.Equal(t, base, s.LearningRate())
}
