package metrics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// Argmax は各行の最大ロジットのインデックス（ハードラベル）を返す
// 同値の場合は最小のインデックスを選ぶ
func Argmax(logits mat.Matrix) []int {
	r, c := logits.Dims()
	labels := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, logits)
		labels[i] = floats.MaxIdx(row)
	}
	return labels
}

// Accuracy は予測ラベルと参照ラベルの一致率を計算する
func Accuracy(reference, predicted []int) (float64, error) {
	n := len(reference)
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty labels")
	}
	if len(predicted) != n {
		return 0, errors.NewDimensionError("Accuracy", n, len(predicted), 0)
	}

	matches := 0
	for i := range reference {
		if reference[i] == predicted[i] {
			matches++
		}
	}
	return float64(matches) / float64(n), nil
}

// TargetedFoolRate はオラクルの予測がターゲットラベルと一致した割合（TFR）を計算する
func TargetedFoolRate(targets, predicted []int) (float64, error) {
	tfr, err := Accuracy(targets, predicted)
	if err != nil {
		return 0, errors.Wrap(err, "TargetedFoolRate")
	}
	return tfr, nil
}

// UntargetedFoolRate はオラクルの予測が正解ラベル集合に含まれなかった割合（UFR）を計算する
// isCorrect は i 番目のサンプルの予測 pred が正解かどうかを返す
func UntargetedFoolRate(predicted []int, isCorrect func(i, pred int) (bool, error)) (float64, error) {
	n := len(predicted)
	if n == 0 {
		return 0, errors.NewValueError("UntargetedFoolRate", "empty labels")
	}

	fooled := 0
	for i, p := range predicted {
		ok, err := isCorrect(i, p)
		if err != nil {
			return 0, err
		}
		if !ok {
			fooled++
		}
	}
	return float64(fooled) / float64(n), nil
}

// MeanCrossEntropy はソフトマックス交差エントロピーのバッチ平均と、ロジットに対する勾配を計算する
//
// loss = (1/B) Σ_b [ logsumexp(z_b) - z_b[y_b] ]
// grad = (softmax(z) - onehot(y)) / B
func MeanCrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	r, c := logits.Dims()
	if r == 0 {
		return 0, nil, errors.NewValueError("MeanCrossEntropy", "empty batch")
	}
	if len(labels) != r {
		return 0, nil, errors.NewDimensionError("MeanCrossEntropy", r, len(labels), 0)
	}

	grad := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	probs := make([]float64, c)
	total := 0.0
	for i := 0; i < r; i++ {
		y := labels[i]
		if y < 0 || y >= c {
			return 0, nil, errors.NewValueError("MeanCrossEntropy", "label out of range")
		}
		mat.Row(row, i, logits)
		total += errors.LogSumExp(row) - row[y]

		errors.Softmax(probs, row)
		probs[y] -= 1
		floats.Scale(1/float64(r), probs)
		grad.SetRow(i, probs)
	}
	return total / float64(r), grad, nil
}
