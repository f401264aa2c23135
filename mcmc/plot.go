package mcmc

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/grexlab/grex/errs"
)

// PlotTrace saves a trace plot of a stored parameter, one line per
// chain. The format is chosen by the file extension (png, svg, pdf).
func (s *Store) PlotTrace(name, fn string) error {
	chains, ok := s.Param(name)
	if !ok {
		return errs.Argumentf("unknown parameter %q", name)
	}
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "draw"
	p.Y.Label.Text = name

	for c, draws := range chains {
		pts := make(plotter.XYs, len(draws))
		for i, v := range draws {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(c)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("chain %d", c), line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, fn); err != nil {
		return errs.IOf("saving %s: %v", fn, err)
	}
	return nil
}
