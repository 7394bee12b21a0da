package analytics

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/tradescope/internal/models"
)

// RenderEfficiencyChart renders a PNG scatter of efficiency against MFE
// for closed trades with a defined capture ratio. Returns raw PNG bytes.
func (s *Service) RenderEfficiencyChart(ctx context.Context) ([]byte, error) {
	records, err := s.storage.ExcursionStore().List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load excursion records: %w", err)
	}
	return renderEfficiencyScatter(records, s.thresholds.EfficiencyFloor)
}

func renderEfficiencyScatter(records []*models.MFEMAERecord, floor float64) ([]byte, error) {
	var xValues, yValues []float64
	for _, r := range records {
		if r.Efficiency == nil || r.MFE == nil {
			continue
		}
		xValues = append(xValues, *r.MFE)
		yValues = append(yValues, *r.Efficiency)
	}
	if len(xValues) < 2 {
		return nil, fmt.Errorf("need at least 2 scored trades, got %d", len(xValues))
	}

	scatter := chart.ContinuousSeries{
		Name: "Trades",
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    4,
			DotColor:    drawing.ColorFromHex("2563eb"), // blue-600
		},
		XValues: xValues,
		YValues: yValues,
	}

	minX, maxX := xValues[0], xValues[0]
	for _, x := range xValues[1:] {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
	}
	floorSeries := chart.ContinuousSeries{
		Name: fmt.Sprintf("Efficiency floor (%.2f)", floor),
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: []float64{minX, maxX},
		YValues: []float64{floor, floor},
	}

	graph := chart.Chart{
		Title:  "Exit Efficiency vs Favorable Excursion",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f%%", f)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			scatter,
			floorSeries,
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
