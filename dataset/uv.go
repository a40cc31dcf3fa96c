package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Background is the UV coordinate written for pixels that miss the object.
const Background = -1.0

// UVMapper produces, for one object, an [H,W,2] map from image pixels to
// texture coordinates (u, v) in [0,1). Pixels that miss the object carry
// Background in both channels.
type UVMapper interface {
	// ImageSize returns H (= W).
	ImageSize() int

	// Map fills dst with a freshly posed UV map of sample.
	Map(dst *tensor.Tensor, sample *Sample3D, rng *rand.Rand) error
}

// PlanarUVMapper renders a unit textured square facing a pinhole camera.
// Camera distance and x/y translation are drawn uniformly per call.
type PlanarUVMapper struct {
	Size           int
	CameraDistance [2]float64
	TranslationX   [2]float64
	TranslationY   [2]float64

	// TanHalfFOV is tan of half the field of view; 0 selects 0.4.
	TanHalfFOV float64
}

// ImageSize implements UVMapper.
func (m *PlanarUVMapper) ImageSize() int { return m.Size }

// Map implements UVMapper.
func (m *PlanarUVMapper) Map(dst *tensor.Tensor, _ *Sample3D, rng *rand.Rand) error {
	if err := dst.RequireShape("PlanarUVMapper.Map", m.Size, m.Size, 2); err != nil {
		return err
	}
	for _, r := range [][2]float64{m.CameraDistance, m.TranslationX, m.TranslationY} {
		if r[0] > r[1] {
			return errors.NewValueError("PlanarUVMapper.Map", "range minimum exceeds maximum")
		}
	}
	if m.CameraDistance[0] <= 0 {
		return errors.NewValueError("PlanarUVMapper.Map", "camera distance must be positive")
	}

	dist := drawRange(m.CameraDistance, rng)
	tx := drawRange(m.TranslationX, rng)
	ty := drawRange(m.TranslationY, rng)
	fov := m.TanHalfFOV
	if fov == 0 {
		fov = 0.4
	}

	n := float64(m.Size)
	for i := 0; i < m.Size; i++ {
		py := ((float64(i)+0.5)/n*2 - 1) * fov * dist
		for j := 0; j < m.Size; j++ {
			px := ((float64(j)+0.5)/n*2 - 1) * fov * dist
			u := px - tx + 0.5
			v := py - ty + 0.5
			o := (i*m.Size + j) * 2
			if u < 0 || u >= 1 || v < 0 || v >= 1 {
				dst.Data[o], dst.Data[o+1] = Background, Background
				continue
			}
			dst.Data[o], dst.Data[o+1] = u, v
		}
	}
	return nil
}

// drawRange returns a uniform sample of r, or r[0] when the range is degenerate.
func drawRange(r [2]float64, rng *rand.Rand) float64 {
	if r[0] == r[1] {
		return r[0]
	}
	return distuv.Uniform{Min: r[0], Max: r[1], Src: rng}.Rand()
}
