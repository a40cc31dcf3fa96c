// Package model defines the trainable network contracts used by the training
// controller, together with weight snapshots and gob persistence.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/tensor"
)

// Param は学習可能なパラメータとその勾配を保持します。
// Value と Grad は同じ長さで、Shape の積と一致します。
type Param struct {
	Name  string
	Shape []int
	Value []float64
	Grad  []float64
}

// NewParam はゼロ初期化されたパラメータを作成します。
func NewParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Value: make([]float64, n),
		Grad:  make([]float64, n),
	}
}

// ZeroGrad は勾配をゼロにリセットします。
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Network は名前付きパラメータ集合を持つ学習可能なネットワークです。
type Network interface {
	// Name はアーキテクチャ識別子を返します（例: "SimpleNet"）。
	Name() string

	// Params は最適化対象のパラメータを安定した順序で返します。
	Params() []*Param

	// ZeroGrad はすべてのパラメータの勾配をリセットします。
	ZeroGrad()
}

// HasRegularizationPenalty は正則化項を持つ層やネットワークの能力インターフェースです。
// ネットワークは自身の層のペナルティを合算して公開します。
type HasRegularizationPenalty interface {
	// RegularizationPenalty は現在の重みに対する正則化損失を返します。
	RegularizationPenalty() float64

	// AccumulateRegularizationGrad は正則化損失の勾配を Grad に加算します。
	AccumulateRegularizationGrad()
}

// Classifier はシミュレータ（代理分類器）の契約です。
// 入力画像は [-1,1] にスケール済みの [B,H,W,3] テンソルです。
type Classifier interface {
	Network
	HasRegularizationPenalty

	// NumClasses はロジットの列数を返します。
	NumClasses() int

	// Forward はロジット [B, NumClasses] を計算し、逆伝播用のキャッシュを保持します。
	Forward(images *tensor.Tensor, training bool) (*mat.Dense, error)

	// Backward は直前の Forward に対してパラメータ勾配を蓄積します。
	Backward(dLogits *mat.Dense) error

	// InputGradient は直前の Forward の入力に対する勾配を返します。パラメータ勾配は変更しません。
	InputGradient(dLogits *mat.Dense) (*tensor.Tensor, error)
}

// PerturbationGenerator は (テクスチャ, ターゲットラベル) から加法的摂動を生成するネットワークです。
// テクスチャは [-1,1] にスケール済みの [B,T,T,3] テンソルで、摂動はピクセル単位（/255 前）です。
type PerturbationGenerator interface {
	Network
	HasRegularizationPenalty

	// Forward は摂動 [B,T,T,3] を返します。
	Forward(textures *tensor.Tensor, targets []int, training bool) (*tensor.Tensor, error)

	// Backward は直前の Forward に対してパラメータ勾配を蓄積します。
	Backward(dNoise *tensor.Tensor) error
}
