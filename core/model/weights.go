package model

import (
	"fmt"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// WeightsVersion はスナップショット形式のバージョンです。
const WeightsVersion = "1"

// ParamSnapshot は単一パラメータの値のコピーです。
type ParamSnapshot struct {
	Name   string
	Shape  []int
	Values []float64
}

// NetworkWeights はネットワークの重みを表す構造体（シリアライゼーション用）
type NetworkWeights struct {
	// Arch はアーキテクチャ識別子（SimpleNet, MLPNet, NoiseField等）
	Arch string

	// Version は形式のバージョン（互換性チェック用）
	Version string

	// Params はパラメータ値（Network.Params と同じ順序）
	Params []ParamSnapshot
}

// Snapshot はネットワークの現在の重みをコピーします。
func Snapshot(net Network) *NetworkWeights {
	w := &NetworkWeights{Arch: net.Name(), Version: WeightsVersion}
	for _, p := range net.Params() {
		vals := make([]float64, len(p.Value))
		copy(vals, p.Value)
		w.Params = append(w.Params, ParamSnapshot{
			Name:   p.Name,
			Shape:  append([]int(nil), p.Shape...),
			Values: vals,
		})
	}
	return w
}

// Validate はNetworkWeightsの妥当性を検証
func (w *NetworkWeights) Validate() error {
	if w.Arch == "" {
		return fmt.Errorf("arch is required")
	}

	if w.Version != WeightsVersion {
		return fmt.Errorf("unsupported weights version %q", w.Version)
	}

	for _, p := range w.Params {
		n := 1
		for _, d := range p.Shape {
			n *= d
		}
		if n != len(p.Values) {
			return fmt.Errorf("param %s: shape %v does not match %d values", p.Name, p.Shape, len(p.Values))
		}
	}

	return nil
}

// Restore はスナップショットの重みをネットワークに書き戻します。
// アーキテクチャ、パラメータ名、形状がすべて一致しなければなりません。
func Restore(net Network, w *NetworkWeights) error {
	if err := w.Validate(); err != nil {
		return errors.Wrap(err, "invalid weights")
	}
	if w.Arch != net.Name() {
		return errors.Newf("weights were saved for %s, network is %s", w.Arch, net.Name())
	}

	params := net.Params()
	if len(params) != len(w.Params) {
		return errors.NewDimensionError("model.Restore", len(params), len(w.Params), 0)
	}
	for i, p := range params {
		s := w.Params[i]
		if s.Name != p.Name || len(s.Values) != len(p.Value) {
			return errors.Newf("param %d: expected %s%v, got %s%v", i, p.Name, p.Shape, s.Name, s.Shape)
		}
	}
	for i, p := range params {
		copy(p.Value, w.Params[i].Values)
		p.ZeroGrad()
	}
	return nil
}

// Clone はNetworkWeightsのディープコピーを作成
func (w *NetworkWeights) Clone() *NetworkWeights {
	clone := &NetworkWeights{
		Arch:    w.Arch,
		Version: w.Version,
		Params:  make([]ParamSnapshot, len(w.Params)),
	}

	for i, p := range w.Params {
		clone.Params[i] = ParamSnapshot{
			Name:   p.Name,
			Shape:  append([]int(nil), p.Shape...),
			Values: append([]float64(nil), p.Values...),
		}
	}

	return clone
}
