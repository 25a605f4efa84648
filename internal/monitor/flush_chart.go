package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// FlushStat summarises one emitted match list.
type FlushStat struct {
	Seq     int
	Time    float64 // stream time of the flush, seconds
	Matches int
}

// FlushLog collects FlushStats in emission order.
type FlushLog struct {
	stats []FlushStat
}

// Record appends a flush at stream time t with n matches.
func (l *FlushLog) Record(t float64, n int) {
	l.stats = append(l.stats, FlushStat{Seq: len(l.stats), Time: t, Matches: n})
}

// Stats returns the recorded flushes.
func (l *FlushLog) Stats() []FlushStat { return l.stats }

// RenderFlushChart writes an HTML page with a bar chart of matches per
// flush to w.
func RenderFlushChart(w io.Writer, title string, stats []FlushStat) error {
	x := make([]string, 0, len(stats))
	y := make([]opts.BarData, 0, len(stats))
	total := 0
	for _, s := range stats {
		x = append(x, fmt.Sprintf("%.3f", s.Time))
		y = append(y, opts.BarData{Value: s.Matches})
		total += s.Matches
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d flushes, %d matches", len(stats), total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "matches"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	bar.SetXAxis(x).AddSeries("matches", y)

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render flush chart: %w", err)
	}
	return nil
}
