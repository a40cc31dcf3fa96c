package training

import (
	"image/color"
	"math"
	"path/filepath"

	"github.com/spf13/afero"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

var plotPalette = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

type plotSeries struct {
	name   string
	values []float64
}

// PlotHistory renders the simulator, generator and test series of h as
// three stacked panels and writes a PNG to path. Test values are placed at
// multiples of validateAfter so the panels share the cycle axis.
func PlotHistory(fs afero.Fs, h *History, title string, validateAfter int, path string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if validateAfter <= 0 {
		return errors.NewConfigError("validate_after", "must be positive", validateAfter)
	}

	panels := []struct {
		title  string
		stride int
		series []plotSeries
	}{
		{"Simulator", 1, []plotSeries{
			{"loss", h.SimulatorLoss},
			{"accuracy", h.SimulatorAccuracy},
		}},
		{"Generator", 1, []plotSeries{
			{"loss", h.GeneratorLoss},
			{"penalty", h.GeneratorPenalty},
			{"tfr", h.GeneratorTFR},
			{"ufr", h.GeneratorUFR},
		}},
		{"Test", validateAfter, []plotSeries{
			{"loss", h.TestLoss},
			{"tfr", h.TestTFR},
			{"ufr", h.TestUFR},
		}},
	}

	plots := make([][]*plot.Plot, len(panels))
	for i, panel := range panels {
		p := plot.New()
		p.Title.Text = title + ": " + panel.title
		p.X.Label.Text = "step"
		p.Legend.Top = true
		for j, s := range panel.series {
			xys := seriesXYs(s.values, panel.stride)
			if len(xys) == 0 {
				continue
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return errors.Wrapf(err, "plotting %s %s", panel.title, s.name)
			}
			line.Color = plotPalette[j%len(plotPalette)]
			p.Add(line)
			p.Legend.Add(s.name, line)
		}
		plots[i] = []*plot.Plot{p}
	}

	img := vgimg.New(8*vg.Inch, 9*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadY: vg.Millimeter * 4}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// seriesXYs drops NaN entries, which mark values absent from older checkpoints.
func seriesXYs(values []float64, stride int) plotter.XYs {
	xys := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64((i + 1) * stride), Y: v})
	}
	return xys
}
