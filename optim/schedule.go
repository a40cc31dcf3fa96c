package optim

import (
	"math"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Schedule returns the learning rate for the k-th update (k starts at 0).
type Schedule interface {
	LearningRate(k int) float64
}

// ExponentialDecay implements rate(k) = Initial * DecayRate^(k / DecayInterval).
// With Staircase the exponent is truncated to an integer.
type ExponentialDecay struct {
	Initial       float64
	DecayRate     float64
	DecayInterval int
	Staircase     bool
}

// NewExponentialDecay validates the schedule parameters.
func NewExponentialDecay(initial, decayRate float64, decayInterval int, staircase bool) (*ExponentialDecay, error) {
	if initial <= 0 {
		return nil, errors.NewConfigError("learning_rate", "must be positive", initial)
	}
	if decayRate <= 0 || decayRate > 1 {
		return nil, errors.NewConfigError("decay_rate", "must be in (0, 1]", decayRate)
	}
	if decayInterval <= 0 {
		return nil, errors.NewConfigError("decay_after", "must be positive", decayInterval)
	}
	return &ExponentialDecay{
		Initial:       initial,
		DecayRate:     decayRate,
		DecayInterval: decayInterval,
		Staircase:     staircase,
	}, nil
}

// LearningRate implements Schedule.
func (e *ExponentialDecay) LearningRate(k int) float64 {
	p := float64(k) / float64(e.DecayInterval)
	if e.Staircase {
		p = math.Floor(p)
	}
	return e.Initial * math.Pow(e.DecayRate, p)
}

// Constant is a fixed learning rate.
type Constant float64

// LearningRate implements Schedule.
func (c Constant) LearningRate(int) float64 { return float64(c) }
