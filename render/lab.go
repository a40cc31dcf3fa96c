package render

import (
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/parallel"
	"github.com/YuminosukeSato/advnet/core/tensor"
)

// LabConverter converts sRGB images in [0,1] to normalised CIELAB (D65):
//
//	L' = L/100, a' = (a+128)/255, b' = (b+128)/255
//
// which keeps every channel roughly in [0,1].
type LabConverter struct{}

// normalisedLab writes the normalised Lab value of rgb into lab.
func normalisedLab(lab, rgb []float64) {
	l, a, b := colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Lab()
	// go-colorful は L を [0,1]、a/b を 1/100 倍で返す
	lab[0] = l
	lab[1] = (a*100 + 128) / 255
	lab[2] = (b*100 + 128) / 255
}

// Convert returns the normalised Lab image of rgb ([...,3]).
func (LabConverter) Convert(rgb *tensor.Tensor) *tensor.Tensor {
	out := tensor.ZerosLike(rgb)
	pixels := rgb.Len() / 3
	parallel.Parallelize(pixels, func(start, end int) {
		for p := start; p < end; p++ {
			normalisedLab(out.Data[3*p:3*p+3], rgb.Data[3*p:3*p+3])
		}
	})
	return out
}

// Backward returns dLoss/dRGB given dLoss/dLab at the pixels of rgb. The
// 3x3 Jacobian of every pixel is estimated by central differences.
func (LabConverter) Backward(rgb, dLab *tensor.Tensor) *tensor.Tensor {
	dRGB := tensor.ZerosLike(rgb)
	pixels := rgb.Len() / 3
	settings := &fd.JacobianSettings{Formula: fd.Central}
	parallel.Parallelize(pixels, func(start, end int) {
		jac := mat.NewDense(3, 3, nil)
		var g mat.VecDense
		for p := start; p < end; p++ {
			x := rgb.Data[3*p : 3*p+3]
			fd.Jacobian(jac, normalisedLab, x, settings)
			g.MulVec(jac.T(), mat.NewVecDense(3, dLab.Data[3*p:3*p+3]))
			dRGB.Data[3*p] = g.AtVec(0)
			dRGB.Data[3*p+1] = g.AtVec(1)
			dRGB.Data[3*p+2] = g.AtVec(2)
		}
	})
	return dRGB
}
