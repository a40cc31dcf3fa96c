package training

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotHistoryWritesPNG(t *testing.T) {
	h := &History{}
	for i := 0; i < 6; i++ {
		h.AppendSimulator(2.0-0.1*float64(i), 0.1*float64(i))
		h.AppendGenerator(3.0-0.2*float64(i), 0.01, 0.1*float64(i), math.NaN())
	}
	h.AppendTest(2.5, 0.1, math.NaN())
	h.AppendTest(2.0, 0.3, math.NaN())

	fs := afero.NewMemMapFs()
	require.NoError(t, PlotHistory(fs, h, "Adversarial", 3, "/out/history.png"))

	data, err := afero.ReadFile(fs, "/out/history.png")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Greater(t, img.Bounds().Dy(), img.Bounds().Dx())
}

func TestPlotHistoryRejectsInvalidInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.Error(t, PlotHistory(fs, &History{}, "x", 0, "/a.png"))

	h := &History{SimulatorLoss: []float64{1}}
	assert.Error(t, PlotHistory(fs, h, "x", 1, "/a.png"))
}

func TestSeriesXYsSkipsNaN(t *testing.T) {
	xys := seriesXYs([]float64{1, math.NaN(), 3}, 5)
	require.Len(t, xys, 2)
	assert.Equal(t, 5.0, xys[0].X)
	assert.Equal(t, 15.0, xys[1].X)
}
