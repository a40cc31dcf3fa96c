package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/core/parallel"
	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Generator identifiers accepted by NewGenerator.
const (
	GenNoiseField   = "NoiseField"
	GenUniformNoise = "UniformNoise"
)

// GeneratorConfig holds the parameters shared by all perturbation generators.
type GeneratorConfig struct {
	NumClasses int
	Grid       int
	NoiseRange float64
	L2         float64
	Seed       uint64
}

// NewGenerator builds the perturbation generator registered under kind.
func NewGenerator(kind string, cfg GeneratorConfig) (model.PerturbationGenerator, error) {
	if cfg.NumClasses <= 0 {
		return nil, errors.NewConfigError("num_classes", "must be positive", cfg.NumClasses)
	}
	if cfg.NoiseRange <= 0 {
		return nil, errors.NewConfigError("noise_range", "must be positive", cfg.NoiseRange)
	}
	switch kind {
	case GenNoiseField, "":
		return NewNoiseField(cfg), nil
	case GenUniformNoise:
		return NewUniformNoise(cfg.NoiseRange, cfg.Seed), nil
	default:
		return nil, errors.NewConfigError("generator", "unknown generator, expected NoiseField or UniformNoise", kind)
	}
}

// NoiseField produces a label-conditioned perturbation
//
//	noise[b,y,x,c] = NoiseRange * tanh(gain[c] * tex[b,y,x,c] + E[target_b, cell(y,x), c])
//
// where cell maps a texel to its cell of a Grid x Grid partition. The output
// lies in (-NoiseRange, NoiseRange) pixel units.
type NoiseField struct {
	Gain      *model.Param
	Embedding *model.Param

	grid       int
	numClasses int
	noiseRange float64
	l2         float64

	x       *tensor.Tensor
	tanh    *tensor.Tensor
	targets []int
}

// NewNoiseField creates a generator with a small random embedding.
func NewNoiseField(cfg GeneratorConfig) *NoiseField {
	if cfg.Grid <= 0 {
		cfg.Grid = 16
	}
	g := &NoiseField{
		Gain:       model.NewParam("noise_field/gain", 3),
		Embedding:  model.NewParam("noise_field/embedding", cfg.NumClasses, cfg.Grid*cfg.Grid*3),
		grid:       cfg.Grid,
		numClasses: cfg.NumClasses,
		noiseRange: cfg.NoiseRange,
		l2:         cfg.L2,
	}
	for i := range g.Gain.Value {
		g.Gain.Value[i] = 0.5
	}
	init := distuv.Normal{Mu: 0, Sigma: 0.1, Src: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))}
	for i := range g.Embedding.Value {
		g.Embedding.Value[i] = init.Rand()
	}
	return g
}

// Name implements model.Network.
func (g *NoiseField) Name() string { return GenNoiseField }

// Params implements model.Network.
func (g *NoiseField) Params() []*model.Param { return []*model.Param{g.Gain, g.Embedding} }

// ZeroGrad implements model.Network.
func (g *NoiseField) ZeroGrad() {
	g.Gain.ZeroGrad()
	g.Embedding.ZeroGrad()
}

// Forward implements model.PerturbationGenerator.
func (g *NoiseField) Forward(textures *tensor.Tensor, targets []int, _ bool) (*tensor.Tensor, error) {
	if err := textures.RequireShape("NoiseField.Forward", -1, -1, -1, 3); err != nil {
		return nil, err
	}
	b, h, w := textures.Shape[0], textures.Shape[1], textures.Shape[2]
	if len(targets) != b {
		return nil, errors.NewDimensionError("NoiseField.Forward", b, len(targets), 0)
	}
	for _, t := range targets {
		if t < 0 || t >= g.numClasses {
			return nil, errors.NewValueError("NoiseField.Forward", "target label out of range")
		}
	}

	th := tensor.ZerosLike(textures)
	out := tensor.ZerosLike(textures)
	cells := g.grid * g.grid * 3
	parallel.Parallelize(b, func(start, end int) {
		for n := start; n < end; n++ {
			x, t, o := textures.Sample(n).Data, th.Sample(n).Data, out.Sample(n).Data
			emb := g.Embedding.Value[targets[n]*cells : (targets[n]+1)*cells]
			for yy := 0; yy < h; yy++ {
				gy := yy * g.grid / h
				for xx := 0; xx < w; xx++ {
					gx := xx * g.grid / w
					px := (yy*w + xx) * 3
					cell := (gy*g.grid + gx) * 3
					for c := 0; c < 3; c++ {
						v := math.Tanh(g.Gain.Value[c]*x[px+c] + emb[cell+c])
						t[px+c] = v
						o[px+c] = g.noiseRange * v
					}
				}
			}
		}
	})

	g.x = textures
	g.tanh = th
	g.targets = append(g.targets[:0], targets...)
	return out, nil
}

// Backward implements model.PerturbationGenerator.
func (g *NoiseField) Backward(dNoise *tensor.Tensor) error {
	if g.x == nil {
		return errors.NewValueError("NoiseField.Backward", "Forward must be called first")
	}
	if !dNoise.SameShape(g.x) {
		return errors.NewValueError("NoiseField.Backward", "gradient shape "+dNoise.String()+" does not match "+g.x.String())
	}
	b, h, w := g.x.Shape[0], g.x.Shape[1], g.x.Shape[2]
	cells := g.grid * g.grid * 3

	// サンプルごとに部分和を取り、最後に逐次で合算する
	gainParts := make([][]float64, b)
	embParts := make([][]float64, b)
	parallel.Parallelize(b, func(start, end int) {
		for n := start; n < end; n++ {
			x, t, d := g.x.Sample(n).Data, g.tanh.Sample(n).Data, dNoise.Sample(n).Data
			gain := make([]float64, 3)
			emb := make([]float64, cells)
			for yy := 0; yy < h; yy++ {
				gy := yy * g.grid / h
				for xx := 0; xx < w; xx++ {
					gx := xx * g.grid / w
					px := (yy*w + xx) * 3
					cell := (gy*g.grid + gx) * 3
					for c := 0; c < 3; c++ {
						dpre := d[px+c] * g.noiseRange * (1 - t[px+c]*t[px+c])
						gain[c] += dpre * x[px+c]
						emb[cell+c] += dpre
					}
				}
			}
			gainParts[n] = gain
			embParts[n] = emb
		}
	})

	for n := 0; n < b; n++ {
		floats.Add(g.Gain.Grad, gainParts[n])
		row := g.Embedding.Grad[g.targets[n]*cells : (g.targets[n]+1)*cells]
		floats.Add(row, embParts[n])
	}
	return nil
}

// RegularizationPenalty returns L2 * (Σ gain² + Σ E²).
func (g *NoiseField) RegularizationPenalty() float64 {
	return g.l2 * (floats.Dot(g.Gain.Value, g.Gain.Value) + floats.Dot(g.Embedding.Value, g.Embedding.Value))
}

// AccumulateRegularizationGrad implements model.HasRegularizationPenalty.
func (g *NoiseField) AccumulateRegularizationGrad() {
	if g.l2 == 0 {
		return
	}
	floats.AddScaled(g.Gain.Grad, 2*g.l2, g.Gain.Value)
	floats.AddScaled(g.Embedding.Grad, 2*g.l2, g.Embedding.Value)
}

// UniformNoise is a parameter-free baseline that ignores the target and
// draws every element uniformly from [-NoiseRange, NoiseRange].
type UniformNoise struct {
	noiseRange float64
	rng        *rand.Rand
}

// NewUniformNoise creates the random-perturbation baseline.
func NewUniformNoise(noiseRange float64, seed uint64) *UniformNoise {
	return &UniformNoise{noiseRange: noiseRange, rng: rand.New(rand.NewPCG(seed, seed))}
}

// Name implements model.Network.
func (u *UniformNoise) Name() string { return GenUniformNoise }

// Params implements model.Network.
func (u *UniformNoise) Params() []*model.Param { return nil }

// ZeroGrad implements model.Network.
func (u *UniformNoise) ZeroGrad() {}

// Forward implements model.PerturbationGenerator.
func (u *UniformNoise) Forward(textures *tensor.Tensor, targets []int, _ bool) (*tensor.Tensor, error) {
	if len(targets) != textures.Batch() {
		return nil, errors.NewDimensionError("UniformNoise.Forward", textures.Batch(), len(targets), 0)
	}
	dist := distuv.Uniform{Min: -u.noiseRange, Max: u.noiseRange, Src: u.rng}
	out := tensor.ZerosLike(textures)
	for i := range out.Data {
		out.Data[i] = dist.Rand()
	}
	return out, nil
}

// Backward implements model.PerturbationGenerator.
func (u *UniformNoise) Backward(*tensor.Tensor) error { return nil }

// RegularizationPenalty implements model.HasRegularizationPenalty.
func (u *UniformNoise) RegularizationPenalty() float64 { return 0 }

// AccumulateRegularizationGrad implements model.HasRegularizationPenalty.
func (u *UniformNoise) AccumulateRegularizationGrad() {}

var (
	_ model.PerturbationGenerator = (*NoiseField)(nil)
	_ model.PerturbationGenerator = (*UniformNoise)(nil)
)
