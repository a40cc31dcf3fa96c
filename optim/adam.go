// Package optim provides the Adam optimizer with learning-rate schedules and
// element-wise gradient clipping over core/model parameters.
package optim

import (
	"math"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Adam implements adaptive moment estimation.
// Update count, schedule position and moments belong to one optimizer; two
// optimizers never share state.
type Adam struct {
	schedule Schedule
	beta1    float64
	beta2    float64
	epsilon  float64

	step int
	m    map[string][]float64
	v    map[string][]float64
}

// AdamOption configures an Adam optimizer.
type AdamOption func(*Adam)

// WithBetas sets the exponential decay rates of the moment estimates.
func WithBetas(beta1, beta2 float64) AdamOption {
	return func(a *Adam) {
		a.beta1 = beta1
		a.beta2 = beta2
	}
}

// WithEpsilon sets the denominator offset.
func WithEpsilon(eps float64) AdamOption {
	return func(a *Adam) {
		a.epsilon = eps
	}
}

// NewAdam creates an optimizer driven by the given schedule.
func NewAdam(schedule Schedule, options ...AdamOption) *Adam {
	a := &Adam{
		schedule: schedule,
		beta1:    0.9,
		beta2:    0.999,
		epsilon:  1e-8,
		m:        make(map[string][]float64),
		v:        make(map[string][]float64),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int { return a.step }

// LearningRate returns the rate the next update will use.
func (a *Adam) LearningRate() float64 { return a.schedule.LearningRate(a.step) }

// Step applies one update to params using their accumulated gradients.
// The bias correction is folded into the step size; epsilon is added to the
// uncorrected second moment.
func (a *Adam) Step(params []*model.Param) error {
	lr := a.schedule.LearningRate(a.step)
	a.step++
	t := float64(a.step)
	lrT := lr * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))

	for _, p := range params {
		if len(p.Grad) != len(p.Value) {
			return errors.NewDimensionError("Adam.Step/"+p.Name, len(p.Value), len(p.Grad), 0)
		}
		m, ok := a.m[p.Name]
		if !ok {
			m = make([]float64, len(p.Value))
			a.m[p.Name] = m
		}
		v, ok := a.v[p.Name]
		if !ok {
			v = make([]float64, len(p.Value))
			a.v[p.Name] = v
		}
		if len(m) != len(p.Value) {
			return errors.NewDimensionError("Adam.Step/"+p.Name, len(m), len(p.Value), 0)
		}

		for j, g := range p.Grad {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			p.Value[j] -= lrT * m[j] / (math.Sqrt(v[j]) + a.epsilon)
		}
	}
	return nil
}

// AdamState is the serialisable optimizer state stored in checkpoints.
type AdamState struct {
	Step int
	M    map[string][]float64
	V    map[string][]float64
}

// State returns a deep copy of the optimizer state.
func (a *Adam) State() AdamState {
	s := AdamState{Step: a.step, M: make(map[string][]float64, len(a.m)), V: make(map[string][]float64, len(a.v))}
	for k, m := range a.m {
		s.M[k] = append([]float64(nil), m...)
	}
	for k, v := range a.v {
		s.V[k] = append([]float64(nil), v...)
	}
	return s
}

// SetState replaces the optimizer state with a deep copy of s.
func (a *Adam) SetState(s AdamState) error {
	if s.Step < 0 {
		return errors.NewValueError("Adam.SetState", "negative step count")
	}
	a.step = s.Step
	a.m = make(map[string][]float64, len(s.M))
	a.v = make(map[string][]float64, len(s.V))
	for k, m := range s.M {
		a.m[k] = append([]float64(nil), m...)
	}
	for k, v := range s.V {
		a.v[k] = append([]float64(nil), v...)
	}
	return nil
}

// ClipGradients clips every gradient element of params to [lo, hi].
func ClipGradients(params []*model.Param, lo, hi float64) {
	for _, p := range params {
		errors.ClipByValue(p.Grad, lo, hi)
	}
}
