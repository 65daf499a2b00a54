package render

import (
	"fmt"
	"math"

	"gmi-rain/internal/ml"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// LearningCurves plots train and test loss (MSE) next to train and test MAE
// for every epoch of a run.
func (r *MapRenderer) LearningCurves(h ml.History, path string, dpi int) error {
	if h.Len() == 0 {
		return fmt.Errorf("%w: empty history", ErrEmpty)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	loss, err := curvePlot("Loss", "MSE", h.Epochs,
		func(e ml.EpochStats) float64 { return e.TrainLoss },
		func(e ml.EpochStats) float64 { return e.TestLoss })
	if err != nil {
		return err
	}
	mae, err := curvePlot("Mean absolute error", "MAE (mm/h)", h.Epochs,
		func(e ml.EpochStats) float64 { return e.TrainMAE },
		func(e ml.EpochStats) float64 { return e.TestMAE })
	if err != nil {
		return err
	}

	w, ht := 10*vg.Inch, 4*vg.Inch
	img := vgimg.NewWith(vgimg.UseWH(w, ht), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter * 8, PadTop: vg.Millimeter * 2, PadRight: vg.Millimeter * 2}
	canvases := plot.Align([][]*plot.Plot{{loss, mae}}, tiles, dc)
	loss.Draw(canvases[0][0])
	mae.Draw(canvases[0][1])

	return r.save(path, img)
}

func curvePlot(title, ylabel string, epochs []ml.EpochStats, train, test func(ml.EpochStats) float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	for i, s := range []struct {
		name string
		val  func(ml.EpochStats) float64
	}{{"train", train}, {"test", test}} {
		xys := make(plotter.XYs, 0, len(epochs))
		for _, e := range epochs {
			v := s.val(e)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(e.Epoch), Y: v})
		}
		if len(xys) == 0 {
			continue
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("%s curve: %w", s.name, err)
		}
		l.LineStyle.Color = plotutil.Color(i)
		l.LineStyle.Dashes = plotutil.Dashes(i)
		l.LineStyle.Width = vg.Points(1.2)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}
	p.Legend.Top = true
	return p, nil
}
