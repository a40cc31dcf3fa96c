package render

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

func testDistortion() Distortion {
	return Distortion{
		Background:   [2]float64{0.1, 1.0},
		PrintEnabled: true,
		PrintAdd:     [2]float64{-0.15, 0.15},
		PrintMult:    [2]float64{0.7, 1.3},
		PhotoEnabled: true,
		PhotoAdd:     [2]float64{-0.15, 0.15},
		PhotoMult:    [2]float64{0.5, 2.0},
		NoiseStdDev:  0.1,
	}
}

// fullUV maps an s x s image onto the whole texture, leaving the first row as background.
func fullUV(batch, s int) *tensor.Tensor {
	uv := tensor.New(batch, s, s, 2)
	for b := 0; b < batch; b++ {
		d := uv.Sample(b).Data
		for i := 0; i < s; i++ {
			for j := 0; j < s; j++ {
				o := (i*s + j) * 2
				if i == 0 {
					d[o], d[o+1] = -1, -1
					continue
				}
				d[o] = (float64(j) + 0.5) / float64(s)
				d[o+1] = (float64(i) + 0.5) / float64(s)
			}
		}
	}
	return uv
}

func randomTextures(rng *rand.Rand, batch, t int) *tensor.Tensor {
	tex := tensor.New(batch, t, t, 3)
	for i := range tex.Data {
		tex.Data[i] = 0.2 + 0.6*rng.Float64()
	}
	return tex
}

func TestNeutralRenderReproducesTexture(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tex := randomTextures(rng, 2, 4)
	r, err := UVRenderer{}.Render(tex, fullUV(2, 4), Neutral(2))
	require.NoError(t, err)

	for b := 0; b < 2; b++ {
		img := r.Images.Sample(b).Data
		src := tex.Sample(b).Data
		// 先頭行は背景（黒）
		assert.Equal(t, 0.0, floats.Norm(img[:4*3], 2))
		assert.Equal(t, src[4*3:], img[4*3:])
	}
}

func TestRenderIsDeterministicGivenParams(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tex := randomTextures(rng, 3, 8)
	uv := fullUV(3, 8)
	params := NewSampler(testDistortion(), 7).Draw(3)

	a, err := UVRenderer{}.Render(tex, uv, params)
	require.NoError(t, err)
	b, err := UVRenderer{}.Render(tex.Clone(), uv, params)
	require.NoError(t, err)
	assert.Equal(t, a.Images.Data, b.Images.Data)
}

func TestRenderClampsToUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tex := randomTextures(rng, 2, 4)
	params := Neutral(2)
	for b := range params.PhotoMult {
		params.PhotoMult[b] = [3]float64{5, 5, 5}
		params.PhotoAdd[b] = [3]float64{-2, 0, 0.9}
	}
	params.NoiseStdDev = 0.5

	r, err := UVRenderer{}.Render(tex, fullUV(2, 4), params)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, floats.Min(r.Images.Data), 0.0)
	assert.LessOrEqual(t, floats.Max(r.Images.Data), 1.0)
}

func TestRenderDeterministicForParams(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tex := randomTextures(rng, 2, 4)
	uv := fullUV(2, 6)
	params := NewSampler(testDistortion(), 1).Draw(2)

	a, err := UVRenderer{}.Render(tex, uv, params)
	require.NoError(t, err)
	b, err := UVRenderer{}.Render(tex, uv, params)
	require.NoError(t, err)
	assert.Equal(t, a.Images.Data, b.Images.Data)

	params.NoiseSeed++
	c, err := UVRenderer{}.Render(tex, uv, params)
	require.NoError(t, err)
	assert.NotEqual(t, a.Images.Data, c.Images.Data)
}

func TestRenderBackwardMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tex := randomTextures(rng, 2, 3)
	uv := fullUV(2, 5)
	d := testDistortion()
	d.NoiseStdDev = 0
	d.PhotoMult = [2]float64{0.8, 1.1}
	d.PhotoAdd = [2]float64{-0.05, 0.05}
	d.PrintAdd = [2]float64{-0.05, 0.05}
	d.PrintMult = [2]float64{0.9, 1.1}
	params := NewSampler(d, 3).Draw(2)

	weights := tensor.New(2, 5, 5, 3)
	for i := range weights.Data {
		weights.Data[i] = rng.Float64()*2 - 1
	}

	r, err := UVRenderer{}.Render(tex, uv, params)
	require.NoError(t, err)
	analytic, err := r.Backward(weights)
	require.NoError(t, err)

	numeric := fd.Gradient(nil, func(x []float64) float64 {
		probe := &tensor.Tensor{Shape: tex.Shape, Data: x}
		out, err := UVRenderer{}.Render(probe, uv, params)
		require.NoError(t, err)
		return floats.Dot(out.Images.Data, weights.Data)
	}, tex.Data, &fd.Settings{Formula: fd.Central})

	assert.InDeltaSlice(t, numeric, analytic.Data, 1e-6)
}

func TestRenderRejectsMismatchedInputs(t *testing.T) {
	tex := tensor.New(2, 4, 4, 3)
	_, err := UVRenderer{}.Render(tex, tensor.New(3, 4, 4, 2), Neutral(2))
	assert.Error(t, err)

	_, err = UVRenderer{}.Render(tex, tensor.New(2, 4, 4, 2), Neutral(1))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestSamplerRespectsRangesAndFlags(t *testing.T) {
	d := testDistortion()
	d.PrintEnabled = false
	s := NewSampler(d, 42)
	p := s.Draw(50)

	for b := 0; b < 50; b++ {
		assert.Equal(t, [3]float64{1, 1, 1}, p.PrintMult[b])
		assert.Equal(t, [3]float64{}, p.PrintAdd[b])
		for c := 0; c < 3; c++ {
			assert.True(t, p.PhotoMult[b][c] >= 0.5 && p.PhotoMult[b][c] <= 2.0)
			assert.True(t, p.PhotoAdd[b][c] >= -0.15 && p.PhotoAdd[b][c] <= 0.15)
		}
		assert.True(t, p.Background[b][0] >= 0.1 && p.Background[b][0] <= 1.0)
	}
	assert.Equal(t, 0.1, p.NoiseStdDev)

	d.PhotoEnabled = false
	assert.Equal(t, 0.0, NewSampler(d, 42).Draw(1).NoiseStdDev)
}

func TestDistortionValidate(t *testing.T) {
	d := testDistortion()
	require.NoError(t, d.Validate())

	d.PhotoMult = [2]float64{2, 0.5}
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(d.Validate(), &cfgErr))
	assert.Equal(t, "photo_error_mult", cfgErr.Field)
}

func TestLabConverter(t *testing.T) {
	rgb := &tensor.Tensor{Shape: []int{1, 1, 2, 3}, Data: []float64{1, 1, 1, 0, 0, 0}}
	lab := LabConverter{}.Convert(rgb)

	assert.InDelta(t, 1.0, lab.Data[0], 1e-3)
	assert.InDelta(t, 128.0/255, lab.Data[1], 1e-3)
	assert.InDelta(t, 128.0/255, lab.Data[2], 1e-3)
	assert.InDelta(t, 0.0, lab.Data[3], 1e-6)
	assert.InDelta(t, 128.0/255, lab.Data[4], 1e-6)
}

func TestLabConverterBackward(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	rgb := randomTextures(rng, 1, 2)
	weights := tensor.ZerosLike(rgb)
	for i := range weights.Data {
		weights.Data[i] = rng.Float64()*2 - 1
	}

	analytic := LabConverter{}.Backward(rgb, weights)
	numeric := fd.Gradient(nil, func(x []float64) float64 {
		return floats.Dot(LabConverter{}.Convert(&tensor.Tensor{Shape: rgb.Shape, Data: x}).Data, weights.Data)
	}, rgb.Data, &fd.Settings{Formula: fd.Central})

	assert.InDeltaSlice(t, numeric, analytic.Data, 1e-5)
}
