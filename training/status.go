package training

import "sync"

// Phase is a state of the training controller.
type Phase int

const (
	PhaseColdStart Phase = iota
	PhaseResuming
	PhaseWarmingUp
	PhaseCycling
	PhaseValidating
	PhaseDone
)

var phaseNames = [...]string{"cold_start", "resuming", "warming_up", "cycling", "validating", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Status publishes the controller's phase and step to concurrent readers
// such as the metrics endpoint.
type Status struct {
	mu         sync.RWMutex
	phase      Phase
	globalStep int
	runID      string
}

// StatusSnapshot is a consistent copy of Status.
type StatusSnapshot struct {
	Phase      Phase
	GlobalStep int
	RunID      string
}

// Phase returns the current phase.
func (s *Status) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// GlobalStep returns the cycle being executed (or the last one once Done).
func (s *Status) GlobalStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalStep
}

// Snapshot returns all fields under one lock.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusSnapshot{Phase: s.phase, GlobalStep: s.globalStep, RunID: s.runID}
}

func (s *Status) set(phase Phase, globalStep int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.globalStep = globalStep
}

func (s *Status) setRunID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
}
