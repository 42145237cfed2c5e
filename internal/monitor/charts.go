package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pf3d/internal/tracker"
)

// trackSeries splits history into per-axis chart data keyed by frame number.
func trackSeries(history []tracker.Estimate) (seqs []uint64, x, y, z, l []opts.LineData) {
	for _, est := range history {
		seqs = append(seqs, est.Seq)
		x = append(x, opts.LineData{Value: est.X})
		y = append(y, opts.LineData{Value: est.Y})
		z = append(z, opts.LineData{Value: est.Z})
		l = append(l, opts.LineData{Value: est.Likelihood})
	}
	return
}

// handleTrackChart renders position and likelihood over the retained history.
func (ws *WebServer) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	history := ws.mon.History()
	seqs, x, y, z, l := trackSeries(history)
	subtitle := fmt.Sprintf("frames=%d", len(history))

	pos := charts.NewLine()
	pos.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ball track", Theme: "dark", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Position", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m", NameLocation: "middle", NameGap: 30}),
	)
	pos.SetXAxis(seqs).
		AddSeries("x", x).
		AddSeries("y", y).
		AddSeries("z", z)

	lik := charts.NewLine()
	lik.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "100%", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Likelihood"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	lik.SetXAxis(seqs).AddSeries("likelihood", l)

	page := components.NewPage()
	page.PageTitle = "pf3d track"
	page.AddCharts(pos, lik)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
