package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/strideworks/motion.report/internal/httputil"
	"github.com/strideworks/motion.report/internal/pose"
)

// channelChart renders an interactive HTML line chart of a channel's
// recent samples. Debugging-only endpoint for eyeballing smoothing and
// detection behaviour without the full UI.
// Query params:
//   - channel (required), e.g. "shoulder_L_abd"
func (s *Server) channelChart(w http.ResponseWriter, r *http.Request) {
	ch := pose.ChannelID(r.URL.Query().Get("channel"))
	if ch == "" {
		httputil.BadRequest(w, "missing 'channel' parameter")
		return
	}
	samples := s.engine.ChannelSamples(ch)
	if len(samples) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no samples for channel %q", ch))
		return
	}

	t0 := samples[0].TSUnixNanos
	xs := make([]string, 0, len(samples))
	ys := make([]opts.LineData, 0, len(samples))
	for _, sm := range samples {
		xs = append(xs, fmt.Sprintf("%.2f", float64(sm.TSUnixNanos-t0)/1e9))
		if sm.Defined() {
			ys = append(ys, opts.LineData{Value: sm.Value})
		} else {
			ys = append(ys, opts.LineData{Value: nil})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Channel " + string(ch),
			Theme:     "dark",
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    string(ch),
			Subtitle: fmt.Sprintf("samples=%d window=%ss", len(samples), xs[len(xs)-1]),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deg"}),
	)
	line.SetXAxis(xs).AddSeries(string(ch), ys,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// trajectoryPNG renders a channel's samples as a static PNG, suitable
// for embedding in reports.
// Query params:
//   - channel (required)
func (s *Server) trajectoryPNG(w http.ResponseWriter, r *http.Request) {
	ch := pose.ChannelID(r.URL.Query().Get("channel"))
	if ch == "" {
		httputil.BadRequest(w, "missing 'channel' parameter")
		return
	}
	samples := s.engine.ChannelSamples(ch)
	if len(samples) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no samples for channel %q", ch))
		return
	}

	t0 := samples[0].TSUnixNanos
	pts := make(plotter.XYs, 0, len(samples))
	for _, sm := range samples {
		if !sm.Defined() {
			continue
		}
		pts = append(pts, plotter.XY{
			X: float64(sm.TSUnixNanos-t0) / 1e9,
			Y: sm.Value,
		})
	}
	if len(pts) == 0 {
		httputil.NotFound(w, fmt.Sprintf("channel %q has no defined samples", ch))
		return
	}

	p := plot.New()
	p.Title.Text = string(ch)
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "deg"

	line, err := plotter.NewLine(pts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("build line: %v", err))
		return
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("write plot: %v", err))
	}
}
