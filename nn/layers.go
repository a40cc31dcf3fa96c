// Package nn provides the reference simulator and generator networks: dense
// layers with L2 kernel regularisation, a spatial grid pool, a sequential
// classifier and a label-conditioned noise field generator.
//
// Every layer computes its backward pass explicitly from the activations
// cached by the preceding Forward call.
package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/advnet/core/model"
)

// Layer is one stage of a Sequential network operating on [B, features] matrices.
type Layer interface {
	// Forward computes the layer output and caches what Backward needs.
	Forward(x *mat.Dense, training bool) *mat.Dense

	// Backward returns the gradient with respect to the layer input.
	// When accumulate is set, parameter gradients are added to Param.Grad.
	Backward(dy *mat.Dense, accumulate bool) *mat.Dense

	// Params returns the trainable parameters (possibly none).
	Params() []*model.Param
}

// Dense is a fully connected layer y = xW + b with an L2 penalty on W.
type Dense struct {
	W  *model.Param
	B  *model.Param
	L2 float64

	in, out int
	x       *mat.Dense
}

// NewDense creates a Glorot-uniform initialised dense layer.
func NewDense(name string, in, out int, l2 float64, rng *rand.Rand) *Dense {
	d := &Dense{
		W:   model.NewParam(name+"/kernel", in, out),
		B:   model.NewParam(name+"/bias", out),
		L2:  l2,
		in:  in,
		out: out,
	}
	limit := math.Sqrt(6 / float64(in+out))
	init := distuv.Uniform{Min: -limit, Max: limit, Src: rng}
	for i := range d.W.Value {
		d.W.Value[i] = init.Rand()
	}
	return d
}

func (d *Dense) kernel() *mat.Dense {
	return mat.NewDense(d.in, d.out, d.W.Value)
}

// Forward implements Layer.
func (d *Dense) Forward(x *mat.Dense, _ bool) *mat.Dense {
	d.x = x
	r, _ := x.Dims()
	y := mat.NewDense(r, d.out, nil)
	y.Mul(x, d.kernel())
	for i := 0; i < r; i++ {
		floats.Add(y.RawRowView(i), d.B.Value)
	}
	return y
}

// Backward implements Layer.
func (d *Dense) Backward(dy *mat.Dense, accumulate bool) *mat.Dense {
	if accumulate {
		var dw mat.Dense
		dw.Mul(d.x.T(), dy)
		floats.Add(d.W.Grad, dw.RawMatrix().Data)

		r, _ := dy.Dims()
		for i := 0; i < r; i++ {
			floats.Add(d.B.Grad, dy.RawRowView(i))
		}
	}

	r, _ := dy.Dims()
	dx := mat.NewDense(r, d.in, nil)
	dx.Mul(dy, d.kernel().T())
	return dx
}

// Params implements Layer.
func (d *Dense) Params() []*model.Param {
	return []*model.Param{d.W, d.B}
}

// RegularizationPenalty returns L2 * Σ W².
func (d *Dense) RegularizationPenalty() float64 {
	return d.L2 * floats.Dot(d.W.Value, d.W.Value)
}

// AccumulateRegularizationGrad adds 2 * L2 * W to the kernel gradient.
func (d *Dense) AccumulateRegularizationGrad() {
	if d.L2 == 0 {
		return
	}
	floats.AddScaled(d.W.Grad, 2*d.L2, d.W.Value)
}

// ReLU is the rectified linear activation.
type ReLU struct {
	mask []bool
}

// Forward implements Layer.
func (r *ReLU) Forward(x *mat.Dense, _ bool) *mat.Dense {
	rows, cols := x.Dims()
	y := mat.NewDense(rows, cols, nil)
	src, dst := x.RawMatrix(), y.RawMatrix()
	r.mask = make([]bool, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := src.Data[i*src.Stride+j]
			if v > 0 {
				dst.Data[i*dst.Stride+j] = v
				r.mask[i*cols+j] = true
			}
		}
	}
	return y
}

// Backward implements Layer.
func (r *ReLU) Backward(dy *mat.Dense, _ bool) *mat.Dense {
	rows, cols := dy.Dims()
	dx := mat.NewDense(rows, cols, nil)
	src, dst := dy.RawMatrix(), dx.RawMatrix()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if r.mask[i*cols+j] {
				dst.Data[i*dst.Stride+j] = src.Data[i*src.Stride+j]
			}
		}
	}
	return dx
}

// Params implements Layer.
func (r *ReLU) Params() []*model.Param { return nil }
