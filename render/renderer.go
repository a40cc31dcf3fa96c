// Package render turns textures and UV maps into images under randomised
// print, photo and background distortions.
//
// The pipeline of UVRenderer for a pixel of sample b and channel c is
//
//	texel  = texture[b, floor(v*T), floor(u*T), c]          (object pixels)
//	scene  = texel*PrintMult[b][c] + PrintAdd[b][c]         (object pixels)
//	scene  = Background[b][c]                               (background pixels)
//	photo  = scene*PhotoMult[b][c] + PhotoAdd[b][c] + N(0, NoiseStdDev)
//	image  = clip(photo, 0, 1)
//
// Noise is drawn from a generator seeded by Params.NoiseSeed and the sample
// index, so results do not depend on scheduling.
package render

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/advnet/core/parallel"
	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Renderer maps textures [B,T,T,3] and UV maps [B,H,W,2] to images [B,H,W,3] in [0,1].
type Renderer interface {
	Render(textures, uvMaps *tensor.Tensor, p Params) (*Rendering, error)
}

// Rendering is the result of one Render call.
type Rendering struct {
	// Images is [B,H,W,3] in [0,1].
	Images *tensor.Tensor

	backward func(dImages *tensor.Tensor) (*tensor.Tensor, error)
}

// NewRendering lets other Renderer implementations supply their own backward pass.
func NewRendering(images *tensor.Tensor, backward func(dImages *tensor.Tensor) (*tensor.Tensor, error)) *Rendering {
	return &Rendering{Images: images, backward: backward}
}

// Backward returns dLoss/dTextures given dLoss/dImages.
func (r *Rendering) Backward(dImages *tensor.Tensor) (*tensor.Tensor, error) {
	if r.backward == nil {
		return nil, errors.NewValueError("Rendering.Backward", "renderer does not support gradients")
	}
	if !dImages.SameShape(r.Images) {
		return nil, errors.NewValueError("Rendering.Backward", "gradient shape "+dImages.String()+" does not match "+r.Images.String())
	}
	return r.backward(dImages)
}

// UVRenderer samples the nearest texel for every object pixel.
type UVRenderer struct{}

// NewUVRenderer returns the reference renderer.
func NewUVRenderer() *UVRenderer { return &UVRenderer{} }

// Render implements Renderer.
func (UVRenderer) Render(textures, uvMaps *tensor.Tensor, p Params) (*Rendering, error) {
	if err := textures.RequireShape("UVRenderer.Render", -1, -1, -1, 3); err != nil {
		return nil, err
	}
	if err := uvMaps.RequireShape("UVRenderer.Render", textures.Batch(), -1, -1, 2); err != nil {
		return nil, err
	}
	if textures.Shape[1] != textures.Shape[2] {
		return nil, errors.NewValueError("UVRenderer.Render", "texture must be square, got "+textures.String())
	}
	batch := textures.Batch()
	if err := p.validate(batch); err != nil {
		return nil, err
	}

	t := textures.Shape[1]
	h, w := uvMaps.Shape[1], uvMaps.Shape[2]
	images := tensor.New(batch, h, w, 3)
	// texel index per pixel, -1 for background
	texel := make([]int, batch*h*w)
	// true where the photo value was inside [0,1]
	pass := make([]bool, batch*h*w*3)

	err := parallel.ForEach(batch, func(b int) error {
		uv := uvMaps.Sample(b).Data
		tex := textures.Sample(b).Data
		img := images.Sample(b).Data
		var noise *distuv.Normal
		if p.NoiseStdDev > 0 {
			noise = &distuv.Normal{Mu: 0, Sigma: p.NoiseStdDev, Src: rand.New(rand.NewPCG(p.NoiseSeed, uint64(b)))}
		}
		for px := 0; px < h*w; px++ {
			u, v := uv[2*px], uv[2*px+1]
			k := -1
			if u >= 0 && v >= 0 {
				tx := min(int(math.Floor(u*float64(t))), t-1)
				ty := min(int(math.Floor(v*float64(t))), t-1)
				k = ty*t + tx
			}
			texel[b*h*w+px] = k
			for c := 0; c < 3; c++ {
				var scene float64
				if k < 0 {
					scene = p.Background[b][c]
				} else {
					scene = tex[3*k+c]*p.PrintMult[b][c] + p.PrintAdd[b][c]
				}
				photo := scene*p.PhotoMult[b][c] + p.PhotoAdd[b][c]
				if noise != nil {
					photo += noise.Rand()
				}
				o := 3*px + c
				pass[b*h*w*3+o] = photo >= 0 && photo <= 1
				img[o] = math.Min(math.Max(photo, 0), 1)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	backward := func(dImages *tensor.Tensor) (*tensor.Tensor, error) {
		dTex := tensor.ZerosLike(textures)
		err := parallel.ForEach(batch, func(b int) error {
			d := dImages.Sample(b).Data
			dt := dTex.Sample(b).Data
			for px := 0; px < h*w; px++ {
				k := texel[b*h*w+px]
				if k < 0 {
					continue
				}
				for c := 0; c < 3; c++ {
					o := 3*px + c
					if pass[b*h*w*3+o] {
						dt[3*k+c] += d[o] * p.PhotoMult[b][c] * p.PrintMult[b][c]
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return dTex, nil
	}
	return NewRendering(images, backward), nil
}

var _ Renderer = UVRenderer{}
