package nn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/parallel"
	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// GridPool averages an [B,H,W,C] image over a Grid x Grid partition and
// flattens the result to [B, Grid*Grid*C] in (row, col, channel) order.
type GridPool struct {
	Grid int

	shape []int
}

// cellBounds returns the half-open pixel range of cell g along an axis of length n.
func cellBounds(g, grid, n int) (int, int) {
	return g * n / grid, (g + 1) * n / grid
}

// Forward pools images into a feature matrix.
func (p *GridPool) Forward(x *tensor.Tensor) (*mat.Dense, error) {
	if len(x.Shape) != 4 {
		return nil, errors.NewDimensionError("GridPool.Forward", 4, len(x.Shape), -1)
	}
	b, h, w, c := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if h < p.Grid || w < p.Grid {
		return nil, errors.NewValueError("GridPool.Forward", "image smaller than pooling grid")
	}
	p.shape = append(p.shape[:0], x.Shape...)

	out := mat.NewDense(b, p.Grid*p.Grid*c, nil)
	parallel.Parallelize(b, func(start, end int) {
		for n := start; n < end; n++ {
			img := x.Sample(n).Data
			row := out.RawRowView(n)
			for gy := 0; gy < p.Grid; gy++ {
				y0, y1 := cellBounds(gy, p.Grid, h)
				for gx := 0; gx < p.Grid; gx++ {
					x0, x1 := cellBounds(gx, p.Grid, w)
					inv := 1 / float64((y1-y0)*(x1-x0))
					base := (gy*p.Grid + gx) * c
					for yy := y0; yy < y1; yy++ {
						for xx := x0; xx < x1; xx++ {
							px := (yy*w + xx) * c
							for ch := 0; ch < c; ch++ {
								row[base+ch] += img[px+ch] * inv
							}
						}
					}
				}
			}
		}
	})
	return out, nil
}

// Backward spreads feature gradients uniformly over each cell.
func (p *GridPool) Backward(dy *mat.Dense) *tensor.Tensor {
	dx := tensor.New(p.shape...)
	b, h, w, c := p.shape[0], p.shape[1], p.shape[2], p.shape[3]

	parallel.Parallelize(b, func(start, end int) {
		for n := start; n < end; n++ {
			img := dx.Sample(n).Data
			row := dy.RawRowView(n)
			for gy := 0; gy < p.Grid; gy++ {
				y0, y1 := cellBounds(gy, p.Grid, h)
				for gx := 0; gx < p.Grid; gx++ {
					x0, x1 := cellBounds(gx, p.Grid, w)
					inv := 1 / float64((y1-y0)*(x1-x0))
					base := (gy*p.Grid + gx) * c
					for yy := y0; yy < y1; yy++ {
						for xx := x0; xx < x1; xx++ {
							px := (yy*w + xx) * c
							for ch := 0; ch < c; ch++ {
								img[px+ch] = row[base+ch] * inv
							}
						}
					}
				}
			}
		}
	})
	return dx
}
