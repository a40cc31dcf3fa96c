package errors

import (
	"math"
)

// CheckNumericalStability checks if values contain NaN or Inf
// and returns an error tagged with the global step if they do.
func CheckNumericalStability(operation string, values []float64, globalStep int) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values, globalStep)
		}
	}
	return nil
}

// CheckScalar checks a single scalar value, typically a loss, for numerical instability.
func CheckScalar(operation string, value float64, globalStep int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(operation, []float64{value}, globalStep)
	}
	return nil
}

// CheckMatrix checks all values in a matrix (e.g. a batch of logits) for numerical instability.
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols, globalStep int) error {
	var unstableValues []float64

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				unstableValues = append(unstableValues, v)
				if len(unstableValues) >= 10 {
					break
				}
			}
		}
		if len(unstableValues) > 0 {
			break
		}
	}

	if len(unstableValues) > 0 {
		return NewNumericalInstabilityError(operation, unstableValues, globalStep)
	}

	return nil
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClipByValue clips every element of gradient to [min, max] in place.
// Unlike norm clipping, each element is treated independently.
func ClipByValue(gradient []float64, min, max float64) {
	for i, g := range gradient {
		gradient[i] = ClipValue(g, min, max)
	}
}

// LogSumExp computes log(sum(exp(values))) in a numerically stable way.
func LogSumExp(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}

	maxVal := values[0]
	for _, v := range values[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	// If max is -Inf, all values are -Inf
	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}

	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - maxVal)
	}

	return maxVal + math.Log(sum)
}

// Softmax writes the softmax of values into dst using the LogSumExp shift.
// dst and values may alias.
func Softmax(dst, values []float64) {
	lse := LogSumExp(values)
	for i, v := range values {
		dst[i] = math.Exp(v - lse)
	}
}
