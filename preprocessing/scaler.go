// Package preprocessing provides the fixed value-range transforms applied to
// textures and rendered images before they enter a network.
package preprocessing

import (
	"fmt"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// RangeScaler は値域 [InMin, InMax] を [OutMin, OutMax] に線形変換するスケーラー
// MinMaxScaler と異なり、値域はデータから学習せず固定で与える
type RangeScaler struct {
	// InMin, InMax は入力の値域
	InMin, InMax float64

	// OutMin, OutMax は出力の値域
	OutMin, OutMax float64
}

// NewRangeScaler は新しいRangeScalerを作成する
//
// パラメータ:
//   - in: 入力の値域 [min, max]
//   - out: 出力の値域 [min, max]
//
// 使用例:
//
//	scaler, err := preprocessing.NewRangeScaler([2]float64{0, 1}, [2]float64{-1, 1})
//	signed := scaler.Transform(images)
func NewRangeScaler(in, out [2]float64) (*RangeScaler, error) {
	if in[0] >= in[1] {
		return nil, errors.NewValueError("NewRangeScaler", fmt.Sprintf("input range %v is empty", in))
	}
	if out[0] >= out[1] {
		return nil, errors.NewValueError("NewRangeScaler", fmt.Sprintf("output range %v is empty", out))
	}
	return &RangeScaler{InMin: in[0], InMax: in[1], OutMin: out[0], OutMax: out[1]}, nil
}

// SignedUnit は [0,1] を [-1,1] に写す (x -> 2x-1)
// 生成器への入力テクスチャ、シミュレータとオラクルへの入力画像に使う
func SignedUnit() *RangeScaler {
	return &RangeScaler{InMin: 0, InMax: 1, OutMin: -1, OutMax: 1}
}

// Scale は変換の傾き d(out)/d(in) を返す
// 逆伝播で出力側の勾配を入力側に戻すときに使う
func (s *RangeScaler) Scale() float64 {
	return (s.OutMax - s.OutMin) / (s.InMax - s.InMin)
}

// Transform は新しいテンソルに変換結果を書き込む
func (s *RangeScaler) Transform(x *tensor.Tensor) *tensor.Tensor {
	scale := s.Scale()
	out := tensor.ZerosLike(x)
	for i, v := range x.Data {
		out.Data[i] = (v-s.InMin)*scale + s.OutMin
	}
	return out
}

// InverseTransform は変換を元に戻す
func (s *RangeScaler) InverseTransform(x *tensor.Tensor) *tensor.Tensor {
	scale := s.Scale()
	out := tensor.ZerosLike(x)
	for i, v := range x.Data {
		out.Data[i] = (v-s.OutMin)/scale + s.InMin
	}
	return out
}

// String はスケーラーの文字列表現を返す
func (s *RangeScaler) String() string {
	return fmt.Sprintf("RangeScaler([%g, %g] -> [%g, %g])", s.InMin, s.InMax, s.OutMin, s.OutMax)
}
