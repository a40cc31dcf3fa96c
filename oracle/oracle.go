// Package oracle provides the black-box classifier under attack.
//
// An Oracle only ever runs inference: it receives images scaled to [-1,1]
// and returns logits. Gradients never flow into it.
package oracle

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Oracle classifies a batch of [B,H,W,3] images in [-1,1] into [B,K] logits.
type Oracle interface {
	Classify(images *tensor.Tensor) (*mat.Dense, error)
}

// Func adapts a function to Oracle.
type Func func(images *tensor.Tensor) (*mat.Dense, error)

// Classify implements Oracle.
func (f Func) Classify(images *tensor.Tensor) (*mat.Dense, error) { return f(images) }

// Frozen is an Oracle backed by a model.Classifier whose parameters are never updated.
type Frozen struct {
	mu  sync.Mutex
	clf model.Classifier
}

// NewFrozen wraps clf. The caller must not train clf afterwards.
func NewFrozen(clf model.Classifier) *Frozen {
	return &Frozen{clf: clf}
}

// FrozenFromWeights restores w into clf and wraps it.
func FrozenFromWeights(clf model.Classifier, w *model.NetworkWeights) (*Frozen, error) {
	if err := model.Restore(clf, w); err != nil {
		return nil, errors.Wrap(err, "restoring oracle weights")
	}
	return NewFrozen(clf), nil
}

// Classify implements Oracle.
func (f *Frozen) Classify(images *tensor.Tensor) (*mat.Dense, error) {
	// Forward はネットワーク内部の状態を書き換えるため直列化する
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clf.Forward(images, false)
}

// Name returns the wrapped architecture identifier.
func (f *Frozen) Name() string { return f.clf.Name() }

var (
	_ Oracle = (*Frozen)(nil)
	_ Oracle = Func(nil)
)
