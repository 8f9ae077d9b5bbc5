package chart

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

// Default PNG size.
const (
	DefaultWidth  = 10 * vg.Inch
	DefaultHeight = 4 * vg.Inch
)

// RenderQualityPNG draws the score line with points coloured by quality,
// the classification band boundaries and event markers. Zero sizes use the
// defaults.
func RenderQualityPNG(w io.Writer, tl Timeline, width, height vg.Length) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	p := plot.New()
	p.Title.Text = tl.Title
	if p.Title.Text == "" {
		p.Title.Text = "Road quality"
	}
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Quality score"
	p.Y.Min = 0
	p.Y.Max = 100
	p.Add(plotter.NewGrid())

	origin := tl.origin()
	xMax := 1.0
	for _, s := range tl.Samples {
		if x := secondsSince(origin, s.Timestamp); x > xMax {
			xMax = x
		}
	}

	for _, band := range classBands {
		line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: band.Min}, {X: xMax, Y: band.Min}})
		if err != nil {
			return fmt.Errorf("band %s: %w", band.Label, err)
		}
		line.Color = scoreColor(band.Min)
		line.Width = vg.Points(0.5)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
	}

	if len(tl.Samples) > 0 {
		pts := make(plotter.XYs, len(tl.Samples))
		for i, s := range tl.Samples {
			pts[i] = plotter.XY{X: secondsSince(origin, s.Timestamp), Y: s.Score}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("score line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.Gray{Y: 0x60}
		p.Add(line)
		p.Legend.Add("score", line)

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("score points: %w", err)
		}
		scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{
				Color:  scoreColor(pts[i].Y),
				Radius: vg.Points(2),
				Shape:  draw.CircleGlyph{},
			}
		}
		p.Add(scatter)
	}

	if err := addEventMarkers(p, tl, origin); err != nil {
		return err
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// addEventMarkers plots one marker per event at the score nearest its
// timestamp, one legend entry per event type.
func addEventMarkers(p *plot.Plot, tl Timeline, origin time.Time) error {
	byType := map[roadquality.EventType]plotter.XYs{}
	for _, e := range tl.Events {
		byType[e.Type] = append(byType[e.Type], plotter.XY{
			X: secondsSince(origin, e.Timestamp),
			Y: tl.nearestScore(e.Timestamp),
		})
	}

	styles := []struct {
		typ   roadquality.EventType
		shape draw.GlyphDrawer
		color color.Color
	}{
		{roadquality.EventPothole, draw.TriangleGlyph{}, color.RGBA{R: 0xc0, A: 0xff}},
		{roadquality.EventBump, draw.BoxGlyph{}, color.RGBA{B: 0xc0, A: 0xff}},
	}
	for _, st := range styles {
		pts := byType[st.typ]
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("%s markers: %w", st.typ, err)
		}
		scatter.GlyphStyle = draw.GlyphStyle{Color: st.color, Radius: vg.Points(4), Shape: st.shape}
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("%s (%d)", st.typ, len(pts)), scatter)
	}
	return nil
}
