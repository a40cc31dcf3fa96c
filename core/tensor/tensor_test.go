package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

func TestSampleSharesStorage(t *testing.T) {
	x := New(2, 2, 2, 3)
	s := x.Sample(1)

	assert.Equal(t, []int{2, 2, 3}, s.Shape)
	s.Data[0] = 5

	assert.Equal(t, 5.0, x.Data[12])
	assert.Equal(t, 12, x.SampleLen())
}

func TestFromSliceRejectsWrongLength(t *testing.T) {
	_, err := FromSlice(make([]float64, 5), 2, 3)

	var dimErr *errors.DimensionError
	require.Error(t, err)
	assert.True(t, errors.As(err, &dimErr))
}

func TestRequireShapeWildcard(t *testing.T) {
	x := New(3, 4, 4, 2)

	assert.NoError(t, x.RequireShape("uv", -1, 4, 4, 2))
	err := x.RequireShape("uv", -1, 4, 5, 2)

	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Axis)
}

func TestClampAndClone(t *testing.T) {
	x, err := FromSlice([]float64{-0.5, 0.2, 1.7}, 1, 3)
	require.NoError(t, err)

	c := x.Clone().Clamp(0, 1)

	assert.Equal(t, []float64{0, 0.2, 1}, c.Data)
	assert.Equal(t, -0.5, x.Data[0], "clone must not alias")
}

func TestMatrixView(t *testing.T) {
	x := New(2, 1, 1, 3)
	m := x.Matrix()
	m.Set(1, 2, 4)

	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 4.0, x.Data[5])
}
