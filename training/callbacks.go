package training

import (
	"time"

	"github.com/YuminosukeSato/advnet/pkg/log"
)

// CallbackEnv is passed to callbacks after every completed cycle.
type CallbackEnv struct {
	GlobalStep int
	Phase      Phase
	History    *History
	// Results holds the latest value of every series recorded in this cycle.
	Results      map[string]float64
	BeginTime    time.Time
	EndTime      time.Time
	StopTraining bool
}

// Callback is called after each cycle. Setting env.StopTraining ends the run
// cleanly; returning an error aborts it.
type Callback func(env *CallbackEnv) error

// LogProgress logs the cycle results every period cycles.
func LogProgress(logger log.Logger, period int) Callback {
	return func(env *CallbackEnv) error {
		if period <= 0 || env.GlobalStep%period != 0 {
			return nil
		}
		fields := []any{log.GlobalStepKey, env.GlobalStep, log.DurationMsKey, env.EndTime.Sub(env.BeginTime).Milliseconds()}
		for name, v := range env.Results {
			fields = append(fields, name, v)
		}
		logger.Info("cycle finished", fields...)
		return nil
	}
}

// TimeLimit stops training once maxDuration has passed since the callback was created.
func TimeLimit(maxDuration time.Duration) Callback {
	start := time.Now()
	return func(env *CallbackEnv) error {
		if time.Since(start) > maxDuration {
			env.StopTraining = true
		}
		return nil
	}
}

// StopAfter stops training once cycle step has completed.
func StopAfter(step int) Callback {
	return func(env *CallbackEnv) error {
		if env.GlobalStep >= step {
			env.StopTraining = true
		}
		return nil
	}
}

// CallbackList runs callbacks in order.
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

// NewCallbackList creates a new callback list.
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{callbacks: callbacks, env: &CallbackEnv{}}
}

// Add appends callbacks.
func (cl *CallbackList) Add(callbacks ...Callback) {
	cl.callbacks = append(cl.callbacks, callbacks...)
}

// AfterCycle calls every callback until one fails.
func (cl *CallbackList) AfterCycle(globalStep int, h *History, results map[string]float64, begin time.Time) error {
	cl.env.GlobalStep = globalStep
	cl.env.Phase = PhaseCycling
	cl.env.History = h
	cl.env.Results = results
	cl.env.BeginTime = begin
	cl.env.EndTime = time.Now()
	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop returns whether a callback requested the run to stop.
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}
