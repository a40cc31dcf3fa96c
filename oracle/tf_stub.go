//go:build !tensorflow

package oracle

import (
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// ErrNoTensorFlow is returned by NewTFOracle in builds without the tensorflow tag.
var ErrNoTensorFlow = errors.New("advnet was built without the tensorflow build tag")

// TFOracle is unavailable in this build.
type TFOracle struct{}

// NewTFOracle always fails in builds without the tensorflow tag.
func NewTFOracle(_ afero.Fs, cfg TFConfig) (*TFOracle, error) {
	return nil, errors.Wrapf(ErrNoTensorFlow, "loading %s", cfg.withDefaults().GraphPath)
}

// Classify implements Oracle.
func (o *TFOracle) Classify(*tensor.Tensor) (*mat.Dense, error) {
	return nil, errors.WithStack(ErrNoTensorFlow)
}

// Close implements io.Closer.
func (o *TFOracle) Close() error { return nil }
