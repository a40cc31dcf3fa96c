package training

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Metrics exports training progress to Prometheus.
type Metrics struct {
	globalStep   prometheus.Gauge
	phase        *prometheus.GaugeVec
	steps        *prometheus.CounterVec
	learningRate *prometheus.GaugeVec
	loss         *prometheus.GaugeVec
	accuracy     prometheus.Gauge
	foolRate     *prometheus.GaugeVec
	checkpoints  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		globalStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "advnet", Subsystem: "train", Name: "global_step",
			Help: "Cycle currently executed by the training controller.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "advnet", Subsystem: "train", Name: "phase",
			Help: "1 for the controller's current phase, 0 otherwise.",
		}, []string{"phase"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advnet", Subsystem: "train", Name: "steps_total",
			Help: "Completed sub-steps by network.",
		}, []string{"network"}),
		learningRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "advnet", Subsystem: "train", Name: "learning_rate",
			Help: "Decayed learning rate by network.",
		}, []string{"network"}),
		loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "advnet", Subsystem: "metrics", Name: "loss",
			Help: "Latest recorded loss by series.",
		}, []string{"series"}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "advnet", Subsystem: "metrics", Name: "simulator_accuracy",
			Help: "Latest simulator agreement with the oracle.",
		}),
		foolRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "advnet", Subsystem: "metrics", Name: "fool_rate",
			Help: "Latest targeted (tfr) and untargeted (ufr) fool rates by split.",
		}, []string{"split", "kind"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "advnet", Subsystem: "train", Name: "checkpoints_total",
			Help: "Checkpoints written.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.globalStep, m.phase, m.steps, m.learningRate, m.loss, m.accuracy, m.foolRate, m.checkpoints,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering training metrics")
		}
	}
	return m, nil
}

func (m *Metrics) setPhase(phase Phase, globalStep int) {
	if m == nil {
		return
	}
	for i := range phaseNames {
		v := 0.0
		if Phase(i) == phase {
			v = 1
		}
		m.phase.WithLabelValues(Phase(i).String()).Set(v)
	}
	m.globalStep.Set(float64(globalStep))
}

func (m *Metrics) observeSimulator(loss, accuracy, lr float64) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues("simulator").Inc()
	m.learningRate.WithLabelValues("simulator").Set(lr)
	m.loss.WithLabelValues("simulator").Set(loss)
	m.accuracy.Set(accuracy)
}

func (m *Metrics) observeGenerator(loss, penalty, tfr, ufr, lr float64) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues("generator").Inc()
	m.learningRate.WithLabelValues("generator").Set(lr)
	m.loss.WithLabelValues("generator").Set(loss)
	m.loss.WithLabelValues("generator_penalty").Set(penalty)
	m.foolRate.WithLabelValues("train", "tfr").Set(tfr)
	m.foolRate.WithLabelValues("train", "ufr").Set(ufr)
}

func (m *Metrics) observeTest(loss, tfr, ufr float64) {
	if m == nil {
		return
	}
	m.loss.WithLabelValues("test").Set(loss)
	m.foolRate.WithLabelValues("test", "tfr").Set(tfr)
	m.foolRate.WithLabelValues("test", "ufr").Set(ufr)
}

func (m *Metrics) observeCheckpoint() {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
}
