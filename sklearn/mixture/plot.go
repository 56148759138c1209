package mixture

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// PlotLossCurves renders the training (and validation, if any) loss curves
// of the committed restart. The image format follows the extension of
// path (.png, .svg, .pdf, ...).
func (g *SGDGMM) PlotLossCurves(path string) error {
	s, err := g.snapshot("PlotLossCurves")
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "SGDGMM loss"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "negative log-likelihood"
	p.Add(plotter.NewGrid())

	curves := []struct {
		name   string
		values []float64
	}{
		{"train", s.trainCurve},
		{"validation", s.valCurve},
	}
	for i, c := range curves {
		if len(c.values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(c.values))
		for epoch, v := range c.values {
			pts[epoch].X = float64(epoch)
			pts[epoch].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "plot %s curve", c.name)
		}
		line.Color = plotutil.Color(i)
		if i == 1 {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(c.name, line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "save loss plot")
	}
	return nil
}
