package evaluation

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
)

// confusionGrid exposes a confusion matrix as a plotter.GridXYZ. Grid row 0
// is drawn at the bottom, so the matrix is flipped to put the first label on
// top.
type confusionGrid struct {
	cm *mat.Dense
}

func (g confusionGrid) Dims() (c, r int) {
	r, c = g.cm.Dims()
	return c, r
}

func (g confusionGrid) Z(c, r int) float64 {
	n, _ := g.cm.Dims()
	return g.cm.At(n-1-r, c)
}

func (g confusionGrid) X(c int) float64 { return float64(c) }
func (g confusionGrid) Y(r int) float64 { return float64(r) }

// SaveConfusionMatrix renders cm as a heat map with one count per cell and
// the class labels on both axes, and writes it to path as a PNG at dpi.
func SaveConfusionMatrix(path string, cm *mat.Dense, labels []string, dpi int) error {
	rows, cols := cm.Dims()
	if rows != cols || rows != len(labels) {
		return errors.NewDimensionError("SaveConfusionMatrix", len(labels), rows, 0)
	}
	if rows == 0 {
		return errors.NewValueError("SaveConfusionMatrix", "empty confusion matrix")
	}
	if dpi <= 0 {
		return errors.NewValidationError("dpi", "must be positive", dpi)
	}

	p := plot.New()
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"

	grid := confusionGrid{cm: cm}
	hm := plotter.NewHeatMap(grid, palette.Heat(12, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	var cells plotter.XYLabels
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(j), Y: float64(rows - 1 - i)})
			cells.Labels = append(cells.Labels, fmt.Sprintf("%d", int(cm.At(i, j))))
		}
	}
	counts, err := plotter.NewLabels(cells)
	if err != nil {
		return errors.Wrap(err, "confusion matrix labels")
	}
	p.Add(counts)

	xTicks := make([]plot.Tick, cols)
	yTicks := make([]plot.Tick, rows)
	for k, l := range labels {
		xTicks[k] = plot.Tick{Value: float64(k), Label: l}
		yTicks[k] = plot.Tick{Value: float64(rows - 1 - k), Label: l}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Min, p.X.Max = -0.5, float64(cols)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(rows)-0.5

	canvas := vgimg.NewWith(vgimg.UseWH(6.4*vg.Inch, 4.8*vg.Inch), vgimg.UseDPI(dpi))
	p.Draw(draw.New(canvas))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create image directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create image %s", path)
	}
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "encode image %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close image %s", path)
	}

	log.GetLoggerWithName("evaluation").Debug("Confusion matrix saved",
		log.PathKey, path,
		log.ClassesKey, rows,
	)
	return nil
}
