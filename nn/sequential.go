package nn

import (
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Architecture identifiers accepted by NewClassifier.
const (
	ArchSimpleNet = "SimpleNet"
	ArchMLPNet    = "MLPNet"
)

// ClassifierConfig holds the shape parameters shared by all simulator architectures.
type ClassifierConfig struct {
	NumClasses int
	Grid       int
	Hidden     int
	L2         float64
	Seed       uint64
}

// Sequential is a classifier made of a GridPool followed by dense layers.
type Sequential struct {
	name       string
	numClasses int
	pool       *GridPool
	layers     []Layer
}

var architectures = map[string]func(cfg ClassifierConfig, rng *rand.Rand) []Layer{
	// SimpleNet は線形分類器
	ArchSimpleNet: func(cfg ClassifierConfig, rng *rand.Rand) []Layer {
		in := cfg.Grid * cfg.Grid * 3
		return []Layer{NewDense("dense0", in, cfg.NumClasses, cfg.L2, rng)}
	},
	// MLPNet は隠れ層を1つ持つ
	ArchMLPNet: func(cfg ClassifierConfig, rng *rand.Rand) []Layer {
		in := cfg.Grid * cfg.Grid * 3
		return []Layer{
			NewDense("dense0", in, cfg.Hidden, cfg.L2, rng),
			&ReLU{},
			NewDense("dense1", cfg.Hidden, cfg.NumClasses, cfg.L2, rng),
		}
	},
}

// Architectures lists the registered architecture identifiers.
func Architectures() []string {
	names := make([]string, 0, len(architectures))
	for name := range architectures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClassifier builds the simulator architecture registered under arch.
func NewClassifier(arch string, cfg ClassifierConfig) (*Sequential, error) {
	build, ok := architectures[arch]
	if !ok {
		return nil, errors.NewConfigError("arch", "unknown architecture, expected one of "+strings.Join(Architectures(), ", "), arch)
	}
	if cfg.NumClasses <= 0 {
		return nil, errors.NewConfigError("num_classes", "must be positive", cfg.NumClasses)
	}
	if cfg.Grid <= 0 {
		cfg.Grid = 8
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = 64
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	return &Sequential{
		name:       arch,
		numClasses: cfg.NumClasses,
		pool:       &GridPool{Grid: cfg.Grid},
		layers:     build(cfg, rng),
	}, nil
}

// Name implements model.Network.
func (s *Sequential) Name() string { return s.name }

// NumClasses implements model.Classifier.
func (s *Sequential) NumClasses() int { return s.numClasses }

// Params implements model.Network.
func (s *Sequential) Params() []*model.Param {
	var params []*model.Param
	for _, l := range s.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// ZeroGrad implements model.Network.
func (s *Sequential) ZeroGrad() {
	for _, p := range s.Params() {
		p.ZeroGrad()
	}
}

// Forward implements model.Classifier.
func (s *Sequential) Forward(images *tensor.Tensor, training bool) (*mat.Dense, error) {
	x, err := s.pool.Forward(images)
	if err != nil {
		return nil, errors.Wrapf(err, "%s.Forward", s.name)
	}
	for _, l := range s.layers {
		x = l.Forward(x, training)
	}
	return x, nil
}

func (s *Sequential) backward(dLogits *mat.Dense, accumulate bool) (*mat.Dense, error) {
	if s.pool.shape == nil {
		return nil, errors.NewValueError(s.name+".Backward", "Forward must be called first")
	}
	r, c := dLogits.Dims()
	if r != s.pool.shape[0] || c != s.numClasses {
		return nil, errors.NewDimensionError(s.name+".Backward", s.numClasses, c, 1)
	}
	dy := dLogits
	for i := len(s.layers) - 1; i >= 0; i-- {
		dy = s.layers[i].Backward(dy, accumulate)
	}
	return dy, nil
}

// Backward implements model.Classifier.
func (s *Sequential) Backward(dLogits *mat.Dense) error {
	_, err := s.backward(dLogits, true)
	return err
}

// InputGradient implements model.Classifier.
func (s *Sequential) InputGradient(dLogits *mat.Dense) (*tensor.Tensor, error) {
	dy, err := s.backward(dLogits, false)
	if err != nil {
		return nil, err
	}
	return s.pool.Backward(dy), nil
}

// RegularizationPenalty sums the penalties of all layers that carry one.
func (s *Sequential) RegularizationPenalty() float64 {
	total := 0.0
	for _, l := range s.layers {
		if r, ok := l.(model.HasRegularizationPenalty); ok {
			total += r.RegularizationPenalty()
		}
	}
	return total
}

// AccumulateRegularizationGrad implements model.HasRegularizationPenalty.
func (s *Sequential) AccumulateRegularizationGrad() {
	for _, l := range s.layers {
		if r, ok := l.(model.HasRegularizationPenalty); ok {
			r.AccumulateRegularizationGrad()
		}
	}
}

var _ model.Classifier = (*Sequential)(nil)
