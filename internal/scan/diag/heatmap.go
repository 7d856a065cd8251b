// Package diag renders offline diagnostics for a finished or running
// scan: a coverage heatmap as PNG and quality/resource trend charts as
// self-contained HTML.
package diag

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/scalpscan/scancore/internal/scan/coverage"
)

// SaveHeatmapPNG renders the coverage snapshot as a top-down (X/Y)
// scatter colored by region density and saves it as a PNG at path.
func SaveHeatmapPNG(path string, hm *coverage.HeatmapIter) error {
	if hm == nil || hm.Len() == 0 {
		return fmt.Errorf("no coverage samples to plot")
	}

	hm.Rewind()
	pts := make(plotter.XYs, 0, hm.Len())
	densities := make([]int, 0, hm.Len())
	maxDensity := 1
	for {
		s, ok := hm.Next()
		if !ok {
			break
		}
		pts = append(pts, plotter.XY{X: s.Position[0], Y: s.Position[1]})
		densities = append(densities, s.Density)
		if s.Density > maxDensity {
			maxDensity = s.Density
		}
	}

	p := plot.New()
	p.Title.Text = "Coverage Heatmap"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build scatter: %w", err)
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  densityColor(densities[i], maxDensity),
			Radius: vg.Points(4),
			Shape:  draw.BoxGlyph{},
		}
	}
	p.Add(sc)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}

// densityColor maps density onto a cold-to-hot ramp: sparse regions are
// blue, dense regions red.
func densityColor(density, max int) color.Color {
	if max < 1 {
		max = 1
	}
	t := float64(density) / float64(max)
	if t > 1 {
		t = 1
	}
	return color.RGBA{
		R: uint8(255 * t),
		G: uint8(64 * (1 - t)),
		B: uint8(255 * (1 - t)),
		A: 255,
	}
}
