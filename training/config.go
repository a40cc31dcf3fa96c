package training

import (
	"bytes"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/advnet/dataset"
	"github.com/YuminosukeSato/advnet/optim"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/render"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) pair() [2]float64 { return [2]float64{r.Min, r.Max} }

// LearningRate configures an exponentially decaying learning rate.
type LearningRate struct {
	Initial    float64 `yaml:"initial"`
	DecayRate  float64 `yaml:"decay_rate"`
	DecayAfter int     `yaml:"decay_after"`
	Staircase  bool    `yaml:"staircase"`
}

// Schedule builds the optimizer schedule.
func (lr LearningRate) Schedule() (*optim.ExponentialDecay, error) {
	return optim.NewExponentialDecay(lr.Initial, lr.DecayRate, lr.DecayAfter, lr.Staircase)
}

// HyperParameters is read once at startup and never changes during a run.
type HyperParameters struct {
	BatchSize             int `yaml:"batch_size"`
	SimulatorSteps        int `yaml:"simulator_steps"`
	GeneratorSteps        int `yaml:"generator_steps"`
	WarmupSteps           int `yaml:"warmup_steps"`
	WarmupEvaluationSteps int `yaml:"warmup_evaluation_steps"`
	ValidateAfter         int `yaml:"validate_after"`
	TestSteps             int `yaml:"test_steps"`
	TotalSteps            int `yaml:"total_steps"`

	SimulatorLearningRate LearningRate `yaml:"simulator_learning_rate"`
	GeneratorLearningRate LearningRate `yaml:"generator_learning_rate"`

	PenaltyWeight        float64 `yaml:"penalty_weight"`
	LabPenalty           bool    `yaml:"lab_penalty"`
	RegularisationWeight float64 `yaml:"layer_regularisation_weight"`

	// NoiseRange bounds the generator output in 0..255 pixel units.
	NoiseRange  float64 `yaml:"noise_range"`
	NumClasses  int     `yaml:"num_classes"`
	ImageSize   int     `yaml:"image_size"`
	TextureSize int     `yaml:"texture_size"`

	CameraDistance Range `yaml:"camera_distance"`
	TranslationX   Range `yaml:"translation_x"`
	TranslationY   Range `yaml:"translation_y"`

	BackgroundColour    Range   `yaml:"background_colour"`
	PrintError          bool    `yaml:"print_error"`
	PrintErrorAdd       Range   `yaml:"print_error_add"`
	PrintErrorMult      Range   `yaml:"print_error_mult"`
	PhotoError          bool    `yaml:"photo_error"`
	PhotoErrorAdd       Range   `yaml:"photo_error_add"`
	PhotoErrorMult      Range   `yaml:"photo_error_mult"`
	GaussianNoiseStdDev float64 `yaml:"gaussian_noise_stddev"`

	// Seed drives batch sampling and rendering distortions.
	Seed uint64 `yaml:"seed"`
}

// DefaultHyperParameters returns the reference configuration.
func DefaultHyperParameters() HyperParameters {
	return HyperParameters{
		BatchSize:             7,
		SimulatorSteps:        1,
		GeneratorSteps:        1,
		WarmupSteps:           2000,
		WarmupEvaluationSteps: 300,
		ValidateAfter:         500,
		TestSteps:             200,
		TotalSteps:            40000,

		SimulatorLearningRate: LearningRate{Initial: 0.001, DecayRate: 0.98, DecayAfter: 300},
		GeneratorLearningRate: LearningRate{Initial: 0.004, DecayRate: 0.98, DecayAfter: 300},

		PenaltyWeight:        0.001,
		LabPenalty:           true,
		RegularisationWeight: 1e-4 * 0.5,

		NoiseRange:  10,
		NumClasses:  dataset.DefaultLabelSpace,
		ImageSize:   299,
		TextureSize: 2048,

		CameraDistance: Range{Min: 1.8, Max: 2.3},
		TranslationX:   Range{Min: -0.05, Max: 0.05},
		TranslationY:   Range{Min: -0.05, Max: 0.05},

		BackgroundColour:    Range{Min: 0.1, Max: 1.0},
		PrintError:          false,
		PrintErrorAdd:       Range{Min: -0.15, Max: 0.15},
		PrintErrorMult:      Range{Min: 0.7, Max: 1.3},
		PhotoError:          true,
		PhotoErrorAdd:       Range{Min: -0.15, Max: 0.15},
		PhotoErrorMult:      Range{Min: 0.5, Max: 2.0},
		GaussianNoiseStdDev: 0.1,
	}
}

// LoadHyperParameters reads a YAML file over the defaults. Unknown keys are rejected.
func LoadHyperParameters(fs afero.Fs, path string) (HyperParameters, error) {
	hp := DefaultHyperParameters()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return hp, errors.NewConfigError("config", "cannot read file", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&hp); err != nil && err != io.EOF {
		return hp, errors.NewConfigError("config", err.Error(), path)
	}
	return hp, hp.Validate()
}

// Validate returns a ConfigError naming the first invalid field.
func (hp HyperParameters) Validate() error {
	positive := []struct {
		field string
		v     int
	}{
		{"batch_size", hp.BatchSize},
		{"validate_after", hp.ValidateAfter},
		{"image_size", hp.ImageSize},
		{"texture_size", hp.TextureSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return errors.NewConfigError(p.field, "must be positive", p.v)
		}
	}
	counts := []struct {
		field string
		v     int
	}{
		{"simulator_steps", hp.SimulatorSteps},
		{"generator_steps", hp.GeneratorSteps},
		{"warmup_steps", hp.WarmupSteps},
		{"warmup_evaluation_steps", hp.WarmupEvaluationSteps},
		{"test_steps", hp.TestSteps},
		{"total_steps", hp.TotalSteps},
	}
	for _, c := range counts {
		if c.v < 0 {
			return errors.NewConfigError(c.field, "must be non-negative", c.v)
		}
	}
	ranges := []struct {
		field string
		r     Range
	}{
		{"camera_distance", hp.CameraDistance},
		{"translation_x", hp.TranslationX},
		{"translation_y", hp.TranslationY},
	}
	for _, r := range ranges {
		if r.r.Min > r.r.Max {
			return errors.NewConfigError(r.field, "minimum exceeds maximum", r.r)
		}
	}
	if hp.CameraDistance.Min <= 0 {
		return errors.NewConfigError("camera_distance", "must be positive", hp.CameraDistance)
	}
	if err := hp.Distortion().Validate(); err != nil {
		return err
	}
	if hp.NumClasses < 2 {
		return errors.NewConfigError("num_classes", "must be at least 2", hp.NumClasses)
	}
	if hp.NoiseRange <= 0 {
		return errors.NewConfigError("noise_range", "must be positive", hp.NoiseRange)
	}
	if hp.PenaltyWeight < 0 {
		return errors.NewConfigError("penalty_weight", "must be non-negative", hp.PenaltyWeight)
	}
	if hp.RegularisationWeight < 0 {
		return errors.NewConfigError("layer_regularisation_weight", "must be non-negative", hp.RegularisationWeight)
	}
	if _, err := hp.SimulatorLearningRate.Schedule(); err != nil {
		return errors.Wrap(err, "simulator_learning_rate")
	}
	if _, err := hp.GeneratorLearningRate.Schedule(); err != nil {
		return errors.Wrap(err, "generator_learning_rate")
	}
	return nil
}

// Distortion returns the rendering distortion ranges.
func (hp HyperParameters) Distortion() render.Distortion {
	return render.Distortion{
		Background:   hp.BackgroundColour.pair(),
		PrintEnabled: hp.PrintError,
		PrintAdd:     hp.PrintErrorAdd.pair(),
		PrintMult:    hp.PrintErrorMult.pair(),
		PhotoEnabled: hp.PhotoError,
		PhotoAdd:     hp.PhotoErrorAdd.pair(),
		PhotoMult:    hp.PhotoErrorMult.pair(),
		NoiseStdDev:  hp.GaussianNoiseStdDev,
	}
}

// UVMapper returns the planar pose sampler for the configured image size.
func (hp HyperParameters) UVMapper() *dataset.PlanarUVMapper {
	return &dataset.PlanarUVMapper{
		Size:           hp.ImageSize,
		CameraDistance: hp.CameraDistance.pair(),
		TranslationX:   hp.TranslationX.pair(),
		TranslationY:   hp.TranslationY.pair(),
	}
}
