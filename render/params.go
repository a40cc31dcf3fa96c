package render

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Distortion holds the ranges from which per-sample rendering distortions
// are drawn. Each range is [min, max].
type Distortion struct {
	Background [2]float64

	PrintEnabled bool
	PrintAdd     [2]float64
	PrintMult    [2]float64

	PhotoEnabled bool
	PhotoAdd     [2]float64
	PhotoMult    [2]float64

	// NoiseStdDev is the stddev of the Gaussian photo noise. Only applied
	// when PhotoEnabled is set.
	NoiseStdDev float64
}

// Validate returns a ConfigError for any inverted range or negative stddev.
func (d Distortion) Validate() error {
	ranges := []struct {
		field string
		r     [2]float64
	}{
		{"background_colour", d.Background},
		{"print_error_add", d.PrintAdd},
		{"print_error_mult", d.PrintMult},
		{"photo_error_add", d.PhotoAdd},
		{"photo_error_mult", d.PhotoMult},
	}
	for _, r := range ranges {
		if r.r[0] > r.r[1] {
			return errors.NewConfigError(r.field, "minimum exceeds maximum", r.r)
		}
	}
	if d.NoiseStdDev < 0 {
		return errors.NewConfigError("gaussian_noise_stddev", "must be non-negative", d.NoiseStdDev)
	}
	return nil
}

// Params is one draw of rendering distortions for a batch. Rendering twice
// with the same Params gives identical images.
type Params struct {
	// Per sample, per channel.
	PrintMult, PrintAdd [][3]float64
	PhotoMult, PhotoAdd [][3]float64
	Background          [][3]float64

	NoiseStdDev float64
	NoiseSeed   uint64
}

// Neutral returns Params that leave texels unchanged and paint a black background.
func Neutral(batch int) Params {
	p := Params{
		PrintMult:  make([][3]float64, batch),
		PrintAdd:   make([][3]float64, batch),
		PhotoMult:  make([][3]float64, batch),
		PhotoAdd:   make([][3]float64, batch),
		Background: make([][3]float64, batch),
	}
	for b := 0; b < batch; b++ {
		p.PrintMult[b] = [3]float64{1, 1, 1}
		p.PhotoMult[b] = [3]float64{1, 1, 1}
	}
	return p
}

// Batch returns the number of samples the params were drawn for.
func (p Params) Batch() int { return len(p.Background) }

func (p Params) validate(batch int) error {
	for _, s := range [][][3]float64{p.PrintMult, p.PrintAdd, p.PhotoMult, p.PhotoAdd, p.Background} {
		if len(s) != batch {
			return errors.NewDimensionError("render.Params", batch, len(s), 0)
		}
	}
	return nil
}

// Sampler draws Params from a Distortion.
type Sampler struct {
	d   Distortion
	rng *rand.Rand
}

// NewSampler returns a seeded sampler.
func NewSampler(d Distortion, seed uint64) *Sampler {
	return &Sampler{d: d, rng: rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))}
}

// Draw samples print, photo and background distortions for batch samples.
func (s *Sampler) Draw(batch int) Params {
	p := Neutral(batch)
	for b := 0; b < batch; b++ {
		grey := s.uniform(s.d.Background)
		p.Background[b] = [3]float64{grey, grey, grey}
		for c := 0; c < 3; c++ {
			if s.d.PrintEnabled {
				p.PrintMult[b][c] = s.uniform(s.d.PrintMult)
				p.PrintAdd[b][c] = s.uniform(s.d.PrintAdd)
			}
			if s.d.PhotoEnabled {
				p.PhotoMult[b][c] = s.uniform(s.d.PhotoMult)
				p.PhotoAdd[b][c] = s.uniform(s.d.PhotoAdd)
			}
		}
	}
	if s.d.PhotoEnabled {
		p.NoiseStdDev = s.d.NoiseStdDev
	}
	p.NoiseSeed = s.rng.Uint64()
	return p
}

func (s *Sampler) uniform(r [2]float64) float64 {
	if r[0] == r[1] {
		return r[0]
	}
	return distuv.Uniform{Min: r[0], Max: r[1], Src: s.rng}.Rand()
}
