// Package chart renders decimated signal series as an interactive HTML line
// chart or a static PNG. Missing samples are drawn as gaps.
package chart

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canlog/internal/decimate"
)

// PNG image size.
const (
	Width  = 14 * vg.Inch
	Height = 6 * vg.Inch
)

// seriesNames returns the result's signal names in sorted order so output is
// stable across runs.
func seriesNames(res decimate.Result) []string {
	names := make([]string, 0, len(res.Signals))
	for name := range res.Signals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HTML renders res as a go-echarts line chart page.
func HTML(w io.Writer, res decimate.Result, title string) error {
	x := make([]string, len(res.Time))
	for i, ts := range res.Time {
		x[i] = strconv.FormatFloat(ts, 'f', 3, 64)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("samples=%d signals=%d", len(res.Time), len(res.Signals))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time [s]", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x)

	for _, name := range seriesNames(res) {
		vals := res.Signals[name]
		data := make([]opts.LineData, len(vals))
		for i, v := range vals {
			if v == nil {
				// "-" is the echarts placeholder for a missing point.
				data[i] = opts.LineData{Value: "-"}
				continue
			}
			data[i] = opts.LineData{Value: *v}
		}
		line.AddSeries(name, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render html chart: %w", err)
	}
	return nil
}

// Plot builds a gonum plot of res with one coloured line per signal.
func Plot(res decimate.Result, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time [s]"
	p.Y.Label.Text = "Value"
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	for i, name := range seriesNames(res) {
		segments := splitSegments(res.Time, res.Signals[name])
		for j, seg := range segments {
			l, err := plotter.NewLine(seg)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			l.Color = plotutil.Color(i)
			l.Width = vg.Points(1)
			p.Add(l)
			if j == 0 {
				p.Legend.Add(name, l)
			}
		}
	}
	return p, nil
}

// PNG renders res as a PNG image.
func PNG(w io.Writer, res decimate.Result, title string) error {
	p, err := Plot(res, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// splitSegments turns an aligned value array into runs of present points.
func splitSegments(times []float64, vals []*float64) []plotter.XYs {
	var (
		out []plotter.XYs
		cur plotter.XYs
	)
	for i, v := range vals {
		if v == nil || i >= len(times) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: times[i], Y: *v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
