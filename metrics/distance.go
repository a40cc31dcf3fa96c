package metrics

import (
	"math"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// MeanL2Distance はサンプルごとのユークリッド距離 ‖x_b - ref_b‖₂ のバッチ平均と、x に対する勾配を計算する
//
// grad_b = (x_b - ref_b) / (B * ‖x_b - ref_b‖₂)
// 距離が 0 のサンプルの勾配は 0 とする（劣勾配）
func MeanL2Distance(x, ref *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if !x.SameShape(ref) {
		return 0, nil, errors.NewValueError("MeanL2Distance", "shape mismatch: "+x.String()+" vs "+ref.String())
	}
	batch := x.Batch()
	if batch == 0 {
		return 0, nil, errors.NewValueError("MeanL2Distance", "empty batch")
	}

	grad := tensor.ZerosLike(x)
	total := 0.0
	for b := 0; b < batch; b++ {
		xs, rs, gs := x.Sample(b), ref.Sample(b), grad.Sample(b)

		sq := 0.0
		for i := range xs.Data {
			d := xs.Data[i] - rs.Data[i]
			sq += d * d
		}
		norm := math.Sqrt(sq)
		total += norm

		if norm == 0 {
			continue
		}
		scale := 1 / (float64(batch) * norm)
		for i := range xs.Data {
			gs.Data[i] = (xs.Data[i] - rs.Data[i]) * scale
		}
	}
	return total / float64(batch), grad, nil
}
