package training

import (
	"fmt"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// History holds every recorded training curve. It is append-only during a
// run and warm-up values never enter it.
type History struct {
	SimulatorLoss     []float64
	SimulatorAccuracy []float64

	GeneratorLoss    []float64
	GeneratorPenalty []float64
	GeneratorTFR     []float64
	GeneratorUFR     []float64

	TestLoss []float64
	TestTFR  []float64
	TestUFR  []float64
}

// AppendSimulator records one recorded simulator sub-step.
func (h *History) AppendSimulator(loss, accuracy float64) {
	h.SimulatorLoss = append(h.SimulatorLoss, loss)
	h.SimulatorAccuracy = append(h.SimulatorAccuracy, accuracy)
}

// AppendGenerator records one generator sub-step.
func (h *History) AppendGenerator(loss, penalty, tfr, ufr float64) {
	h.GeneratorLoss = append(h.GeneratorLoss, loss)
	h.GeneratorPenalty = append(h.GeneratorPenalty, penalty)
	h.GeneratorTFR = append(h.GeneratorTFR, tfr)
	h.GeneratorUFR = append(h.GeneratorUFR, ufr)
}

// AppendTest records one validation pass.
func (h *History) AppendTest(loss, tfr, ufr float64) {
	h.TestLoss = append(h.TestLoss, loss)
	h.TestTFR = append(h.TestTFR, tfr)
	h.TestUFR = append(h.TestUFR, ufr)
}

// Validate checks that parallel sequences have equal length.
func (h *History) Validate() error {
	groups := []struct {
		name   string
		series [][]float64
	}{
		{"simulator", [][]float64{h.SimulatorLoss, h.SimulatorAccuracy}},
		{"generator", [][]float64{h.GeneratorLoss, h.GeneratorPenalty, h.GeneratorTFR, h.GeneratorUFR}},
		{"test", [][]float64{h.TestLoss, h.TestTFR, h.TestUFR}},
	}
	for _, g := range groups {
		for _, s := range g.series[1:] {
			if len(s) != len(g.series[0]) {
				return errors.NewValueError("History.Validate",
					fmt.Sprintf("%s series have different lengths (%d vs %d)", g.name, len(g.series[0]), len(s)))
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	c := func(s []float64) []float64 { return append([]float64(nil), s...) }
	return &History{
		SimulatorLoss:     c(h.SimulatorLoss),
		SimulatorAccuracy: c(h.SimulatorAccuracy),
		GeneratorLoss:     c(h.GeneratorLoss),
		GeneratorPenalty:  c(h.GeneratorPenalty),
		GeneratorTFR:      c(h.GeneratorTFR),
		GeneratorUFR:      c(h.GeneratorUFR),
		TestLoss:          c(h.TestLoss),
		TestTFR:           c(h.TestTFR),
		TestUFR:           c(h.TestUFR),
	}
}

// Archive array names.
const (
	keySimulatorLoss     = "simulator_loss"
	keySimulatorAccuracy = "simulator_accuracy"
	keyGeneratorLoss     = "generator_loss"
	keyGeneratorPenalty  = "generator_penalty"
	keyGeneratorTFR      = "generator_tfr"
	keyGeneratorUFR      = "generator_ufr"
	keyTestLoss          = "test_loss"
	keyTestTFR           = "test_tfr"
	keyTestUFR           = "test_ufr"
	keyStep              = "step"
)

// arrays maps every archive name to its series.
func (h *History) arrays() map[string]*[]float64 {
	return map[string]*[]float64{
		keySimulatorLoss:     &h.SimulatorLoss,
		keySimulatorAccuracy: &h.SimulatorAccuracy,
		keyGeneratorLoss:     &h.GeneratorLoss,
		keyGeneratorPenalty:  &h.GeneratorPenalty,
		keyGeneratorTFR:      &h.GeneratorTFR,
		keyGeneratorUFR:      &h.GeneratorUFR,
		keyTestLoss:          &h.TestLoss,
		keyTestTFR:           &h.TestTFR,
		keyTestUFR:           &h.TestUFR,
	}
}
