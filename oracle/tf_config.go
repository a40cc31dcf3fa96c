package oracle

// TFConfig locates a frozen TensorFlow graph and its input/output operations.
type TFConfig struct {
	GraphPath string
	InputOp   string
	OutputOp  string
}

func (c TFConfig) withDefaults() TFConfig {
	if c.InputOp == "" {
		c.InputOp = "input_1"
	}
	if c.OutputOp == "" {
		c.OutputOp = "predictions/BiasAdd"
	}
	return c
}
