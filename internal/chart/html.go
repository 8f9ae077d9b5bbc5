package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

// RenderQualityHTML renders an interactive page with the authoritative score
// (points coloured by quality), the per-sensor estimates and event markers.
func RenderQualityHTML(w io.Writer, tl Timeline) error {
	title := tl.Title
	if title == "" {
		title = "Road quality"
	}

	labels := make([]string, len(tl.Samples))
	score := make([]opts.LineData, len(tl.Samples))
	lidar := make([]opts.LineData, len(tl.Samples))
	accel := make([]opts.LineData, len(tl.Samples))
	texture := make([]opts.LineData, len(tl.Samples))
	for i, s := range tl.Samples {
		labels[i] = s.Timestamp.UTC().Format("15:04:05.000")
		score[i] = opts.LineData{
			Value:     s.Score,
			ItemStyle: &opts.ItemStyle{Color: roadquality.ScoreToColor(s.Score)},
		}
		lidar[i] = opts.LineData{Value: s.LidarScore}
		accel[i] = opts.LineData{Value: s.AccelScore}
		texture[i] = opts.LineData{Value: s.TextureScore}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("samples=%d events=%d", len(tl.Samples), len(tl.Events)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "score"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(labels).
		AddSeries("score", score, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)})).
		AddSeries("lidar", lidar).
		AddSeries("accelerometer", accel).
		AddSeries("texture", texture)

	if len(tl.Events) > 0 && len(tl.Samples) > 0 {
		events := charts.NewScatter()
		events.SetXAxis(labels)
		for _, typ := range []roadquality.EventType{roadquality.EventPothole, roadquality.EventBump} {
			events.AddSeries(string(typ), eventSeries(tl, typ), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
		}
		line.Overlap(events)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// eventSeries places each event of typ on the category axis at the sample
// nearest its timestamp. Samples without such an event get an empty value.
func eventSeries(tl Timeline, typ roadquality.EventType) []opts.ScatterData {
	data := make([]opts.ScatterData, len(tl.Samples))
	for i := range data {
		data[i] = opts.ScatterData{Value: "-"}
	}
	for _, e := range tl.Events {
		if e.Type != typ {
			continue
		}
		i := tl.nearestIndex(e.Timestamp)
		data[i] = opts.ScatterData{
			Value: tl.Samples[i].Score,
			Name:  fmt.Sprintf("%s severity %d (%s)", e.Type, e.Severity, e.Source),
		}
	}
	return data
}
