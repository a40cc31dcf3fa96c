// Package tensor provides a dense float64 tensor in row-major (NHWC) layout.
//
// Batches of images, textures and UV maps share this representation. The
// leading axis is always the batch axis; Sample returns a view that shares
// storage with the parent.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Tensor is a dense n-dimensional array.
type Tensor struct {
	Shape []int
	Data  []float64
}

// New allocates a zero tensor of the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// FromSlice wraps data without copying. len(data) must match the shape.
func FromSlice(data []float64, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return nil, errors.NewDimensionError("tensor.FromSlice", n, len(data), 0)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Batch returns the size of the leading axis.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleLen returns the number of elements per batch entry.
func (t *Tensor) SampleLen() int {
	if t.Batch() == 0 {
		return 0
	}
	return len(t.Data) / t.Shape[0]
}

// Sample returns a view of batch entry b.
func (t *Tensor) Sample(b int) *Tensor {
	n := t.SampleLen()
	return &Tensor{Shape: append([]int(nil), t.Shape[1:]...), Data: t.Data[b*n : (b+1)*n]}
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// RequireShape returns a DimensionError naming the first mismatched axis.
func (t *Tensor) RequireShape(op string, shape ...int) error {
	if len(t.Shape) != len(shape) {
		return errors.NewDimensionError(op, len(shape), len(t.Shape), -1)
	}
	for i := range shape {
		if shape[i] >= 0 && t.Shape[i] != shape[i] {
			return errors.NewDimensionError(op, shape[i], t.Shape[i], i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{Shape: append([]int(nil), t.Shape...), Data: make([]float64, len(t.Data))}
	copy(c.Data, t.Data)
	return c
}

// ZerosLike allocates a zero tensor with the same shape.
func ZerosLike(t *Tensor) *Tensor {
	return New(t.Shape...)
}

// Scale multiplies every element by s in place.
func (t *Tensor) Scale(s float64) *Tensor {
	floats.Scale(s, t.Data)
	return t
}

// AddScaled adds s*o to t in place.
func (t *Tensor) AddScaled(s float64, o *Tensor) *Tensor {
	floats.AddScaled(t.Data, s, o.Data)
	return t
}

// Clamp limits every element to [lo, hi] in place.
func (t *Tensor) Clamp(lo, hi float64) *Tensor {
	errors.ClipByValue(t.Data, lo, hi)
	return t
}

// Apply replaces every element with fn(x) in place.
func (t *Tensor) Apply(fn func(float64) float64) *Tensor {
	for i, v := range t.Data {
		t.Data[i] = fn(v)
	}
	return t
}

// Matrix views the tensor as a Batch x SampleLen matrix sharing storage.
func (t *Tensor) Matrix() *mat.Dense {
	return mat.NewDense(t.Batch(), t.SampleLen(), t.Data)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}
