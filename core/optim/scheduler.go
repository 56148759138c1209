package optim

import (
	"math"
	"sort"
)

// MultiStepLR decays the learning rate by Gamma once the epoch count
// reaches each milestone:
//
//	lr(epoch) = base * gamma^(number of milestones <= epoch)
type MultiStepLR struct {
	Base       float64
	Milestones []int
	Gamma      float64

	epoch int
}

var _ Scheduler = (*MultiStepLR)(nil)

// NewMultiStepLR creates a schedule. Milestones are copied and sorted.
func NewMultiStepLR(base float64, milestones []int, gamma float64) *MultiStepLR {
	ms := append([]int(nil), milestones...)
	sort.Ints(ms)
	return &MultiStepLR{Base: base, Milestones: ms, Gamma: gamma}
}

// Step advances the schedule by one epoch.
func (s *MultiStepLR) Step() { s.epoch++ }

// Epoch returns the number of completed epochs.
func (s *MultiStepLR) Epoch() int { return s.epoch }

// Reset rewinds the schedule to epoch 0.
func (s *MultiStepLR) Reset() { s.epoch = 0 }

// LearningRate returns the learning rate for the current epoch.
func (s *MultiStepLR) LearningRate() float64 {
	return s.LearningRateAt(s.epoch)
}

// LearningRateAt returns the learning rate for an arbitrary epoch without
// changing the schedule.
func (s *MultiStepLR) LearningRateAt(epoch int) float64 {
	passed := sort.SearchInts(s.Milestones, epoch+1)
	return s.Base * math.Pow(s.Gamma, float64(passed))
}
