//go:build tensorflow

package oracle

import (
	"sync"

	tf "github.com/kiteco/tensorflow/tensorflow/go"
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// TFOracle runs a frozen TensorFlow GraphDef, e.g. an exported InceptionV3.
type TFOracle struct {
	mu      sync.Mutex
	graph   *tf.Graph
	session *tf.Session
	input   tf.Output
	output  tf.Output
}

// NewTFOracle imports the frozen graph at cfg.GraphPath and opens a session.
func NewTFOracle(fs afero.Fs, cfg TFConfig) (*TFOracle, error) {
	cfg = cfg.withDefaults()
	data, err := afero.ReadFile(fs, cfg.GraphPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading graph %s", cfg.GraphPath)
	}

	graph := tf.NewGraph()
	if err := graph.Import(data, ""); err != nil {
		return nil, errors.Wrapf(err, "importing graph %s", cfg.GraphPath)
	}
	in := graph.Operation(cfg.InputOp)
	if in == nil {
		graph.Delete()
		return nil, errors.NewConfigError("oracle_input_op", "operation not found in graph", cfg.InputOp)
	}
	out := graph.Operation(cfg.OutputOp)
	if out == nil {
		graph.Delete()
		return nil, errors.NewConfigError("oracle_output_op", "operation not found in graph", cfg.OutputOp)
	}

	sess, err := tf.NewSession(graph, nil)
	if err != nil {
		graph.Delete()
		return nil, errors.Wrap(err, "creating tensorflow session")
	}
	return &TFOracle{graph: graph, session: sess, input: in.Output(0), output: out.Output(0)}, nil
}

// Classify implements Oracle.
func (o *TFOracle) Classify(images *tensor.Tensor) (*mat.Dense, error) {
	if err := images.RequireShape("TFOracle.Classify", -1, -1, -1, 3); err != nil {
		return nil, err
	}
	b, h, w := images.Shape[0], images.Shape[1], images.Shape[2]
	batch := make([][][][]float32, b)
	for n := 0; n < b; n++ {
		d := images.Sample(n).Data
		batch[n] = make([][][]float32, h)
		for y := 0; y < h; y++ {
			batch[n][y] = make([][]float32, w)
			for x := 0; x < w; x++ {
				p := (y*w + x) * 3
				batch[n][y][x] = []float32{float32(d[p]), float32(d[p+1]), float32(d[p+2])}
			}
		}
	}
	in, err := tf.NewTensor(batch)
	if err != nil {
		return nil, errors.Wrap(err, "building input tensor")
	}

	o.mu.Lock()
	res, err := o.session.Run(map[tf.Output]*tf.Tensor{o.input: in}, []tf.Output{o.output}, nil)
	o.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "running oracle graph")
	}

	logits, ok := res[0].Value().([][]float32)
	if !ok || len(logits) != b {
		return nil, errors.NewValueError("TFOracle.Classify", "output is not a [batch, classes] float32 tensor")
	}
	out := mat.NewDense(b, len(logits[0]), nil)
	for i, row := range logits {
		for j, v := range row {
			out.Set(i, j, float64(v))
		}
	}
	return out, nil
}

// Close releases the session and graph.
func (o *TFOracle) Close() error {
	err := o.session.Close()
	o.graph.Delete()
	return err
}

var _ Oracle = (*TFOracle)(nil)
