package dataset

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// DefaultLabelSpace is the number of classes of the ImageNet-1k oracle.
const DefaultLabelSpace = 1000

// LabelSet is the ground truth of an object: either a contiguous range of
// labels or an explicit list. The interface is sealed; only AllInRange and
// Explicit satisfy it.
type LabelSet interface {
	// Contains reports whether label is a correct prediction.
	Contains(label int) bool

	// Excluded returns how many labels in [0, labelSpace) Contains accepts.
	Excluded(labelSpace int) int

	String() string

	labelSet()
}

// AllInRange accepts every label in [Lo, Hi] (inclusive).
type AllInRange struct {
	Lo, Hi int
}

// Dog is the ground truth of the dog model: every ImageNet dog class.
var Dog = AllInRange{Lo: 151, Hi: 275}

func (AllInRange) labelSet() {}

// Contains implements LabelSet.
func (r AllInRange) Contains(label int) bool {
	return label >= r.Lo && label <= r.Hi
}

// Excluded implements LabelSet.
func (r AllInRange) Excluded(labelSpace int) int {
	lo, hi := max(r.Lo, 0), min(r.Hi, labelSpace-1)
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

func (r AllInRange) String() string {
	if r == Dog {
		return "dog"
	}
	return fmt.Sprintf("[%d..%d]", r.Lo, r.Hi)
}

// Explicit accepts the listed labels, kept in file order.
type Explicit []int

func (Explicit) labelSet() {}

// Contains implements LabelSet.
func (e Explicit) Contains(label int) bool {
	for _, l := range e {
		if l == label {
			return true
		}
	}
	return false
}

// Excluded implements LabelSet. Duplicates and labels outside the space are not counted.
func (e Explicit) Excluded(labelSpace int) int {
	seen := make(map[int]struct{}, len(e))
	for _, l := range e {
		if l >= 0 && l < labelSpace {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}

func (e Explicit) String() string {
	parts := make([]string, len(e))
	for i, l := range e {
		parts[i] = strconv.Itoa(l)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// validLabelSet returns an InvalidLabelShapeError for nil, empty or inverted sets.
func validLabelSet(op string, gt LabelSet) error {
	switch v := gt.(type) {
	case AllInRange:
		if v.Lo > v.Hi {
			return errors.NewInvalidLabelShapeError(op, v)
		}
		return nil
	case Explicit:
		if len(v) == 0 {
			return errors.NewInvalidLabelShapeError(op, v)
		}
		return nil
	default:
		return errors.NewInvalidLabelShapeError(op, gt)
	}
}

// IsCorrect reports whether predicted is one of the ground-truth labels.
func IsCorrect(groundTruth LabelSet, predicted int) (bool, error) {
	if err := validLabelSet("IsCorrect", groundTruth); err != nil {
		return false, err
	}
	return groundTruth.Contains(predicted), nil
}

// CheckTargetable returns ErrLabelSpaceExhausted when groundTruth leaves no
// label of [0, labelSpace) available as a target.
func CheckTargetable(groundTruth LabelSet, labelSpace int) error {
	if err := validLabelSet("RandomTarget", groundTruth); err != nil {
		return err
	}
	if labelSpace <= 0 {
		return errors.NewValueError("RandomTarget", "label space must be positive")
	}
	if groundTruth.Excluded(labelSpace) >= labelSpace {
		return errors.Wrapf(errors.ErrLabelSpaceExhausted, "ground truth %s, label space %d", groundTruth, labelSpace)
	}
	return nil
}

// RandomTarget draws a label uniformly from [0, labelSpace) outside groundTruth
// by rejection sampling.
func RandomTarget(rng *rand.Rand, groundTruth LabelSet, labelSpace int) (int, error) {
	if err := CheckTargetable(groundTruth, labelSpace); err != nil {
		return 0, err
	}
	for {
		target := rng.IntN(labelSpace)
		if !groundTruth.Contains(target) {
			return target, nil
		}
	}
}

// ParseLabelSet converts the first record of labels.txt into a LabelSet.
// A single "dog" field selects Dog; otherwise every field must be an int.
func ParseLabelSet(record []string) (LabelSet, error) {
	if len(record) == 0 {
		return nil, errors.New("labels.txt is empty")
	}
	if strings.TrimSpace(record[0]) == "dog" {
		for _, field := range record[1:] {
			if strings.TrimSpace(field) != "" {
				return nil, errors.Newf("labels.txt mixes dog with %q", field)
			}
		}
		return Dog, nil
	}
	labels := make(Explicit, 0, len(record))
	for _, field := range record {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		l, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "label %q is not an int", field)
		}
		labels = append(labels, l)
	}
	if len(labels) == 0 {
		return nil, errors.New("labels.txt has no labels")
	}
	return labels, nil
}
