// Package render draws rolling sample windows as line charts: an HTML page
// for the browser front ends and a PNG for quick looks.
package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Series is one named line. X and Y must have the same length.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// Chart is a set of series sharing one pair of axes.
type Chart struct {
	Title  string
	XLabel string
	YLabel string
	// YMin and YMax fix the vertical range when YMin < YMax.
	YMin, YMax float64
	Series     []Series
}

func (c Chart) validate() error {
	for _, s := range c.Series {
		if len(s.X) != len(s.Y) {
			return fmt.Errorf("series %q: %d x values for %d y values", s.Name, len(s.X), len(s.Y))
		}
	}
	return nil
}

func (c Chart) fixedRange() bool { return c.YMin < c.YMax }

// Index returns the absolute sample indices for the last n samples out of
// total: total-n .. total-1, clamped at zero.
func Index(total uint64, n int) []float64 {
	first := int64(total) - int64(n)
	if first < 0 {
		first = 0
	}
	out := make([]float64, 0, n)
	for i := first; i < int64(total); i++ {
		out = append(out, float64(i))
	}
	return out
}

// HTML writes c as a standalone go-echarts page.
func HTML(w io.Writer, c Chart) error {
	if err := c.validate(); err != nil {
		return err
	}

	yAxis := opts.YAxis{Name: c.YLabel}
	if c.fixedRange() {
		yAxis.Min = c.YMin
		yAxis.Max = c.YMax
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: c.Title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: c.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: c.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(yAxis),
	)
	for _, s := range c.Series {
		data := make([]opts.LineData, 0, len(s.X))
		for i := range s.X {
			data = append(data, opts.LineData{Value: []interface{}{s.X[i], s.Y[i]}})
		}
		line.AddSeries(s.Name, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line.Render(w)
}

// PNG writes c as a width x height PNG image.
func PNG(w io.Writer, c Chart, width, height vg.Length) error {
	if err := c.validate(); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = c.YLabel
	if c.fixedRange() {
		p.Y.Min = c.YMin
		p.Y.Max = c.YMax
	}

	for i, s := range c.Series {
		if len(s.X) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j] = plotter.XY{X: s.X[j], Y: s.Y[j]}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("series %q: %w", s.Name, err)
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(s.Name, l)
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
