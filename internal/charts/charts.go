// Package charts renders a category's monthly series as a PNG line chart.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"budgetlens/internal/core"
)

var ErrNotEnoughPoints = errors.New("charts: need at least two months of data")

// SeriesChart describes one category chart. Prediction is drawn as a dashed
// segment from the last month into the next one when Trained is set.
type SeriesChart struct {
	Category       string
	CurrencySymbol string
	Points         []core.SeriesPoint
	Forecast       core.ForecastResult
	Width, Height  int
}

// Render returns the chart encoded as PNG.
func Render(sc SeriesChart) ([]byte, error) {
	if len(sc.Points) < 2 {
		return nil, ErrNotEnoughPoints
	}
	if sc.Width == 0 {
		sc.Width = 800
	}
	if sc.Height == 0 {
		sc.Height = 400
	}

	xs := make([]time.Time, len(sc.Points))
	ys := make([]float64, len(sc.Points))
	var sum, top float64
	for i, p := range sc.Points {
		t, err := p.Month.Time()
		if err != nil {
			return nil, err
		}
		xs[i], ys[i] = t, p.Value
		sum += p.Value
		top = max(top, p.Value)
	}
	avg := sum / float64(len(ys))

	series := []chart.Series{
		chart.TimeSeries{
			Name:    sc.Category,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				StrokeWidth: 2,
				DotWidth:    3,
				DotColor:    chart.ColorBlue,
			},
		},
		chart.TimeSeries{
			Name:    fmt.Sprintf("%d-mo avg", len(ys)),
			XValues: []time.Time{xs[0], xs[len(xs)-1]},
			YValues: []float64{avg, avg},
			Style: chart.Style{
				StrokeColor:     chart.ColorBlack.WithAlpha(120),
				StrokeWidth:     1,
				StrokeDashArray: []float64{4.0, 4.0},
			},
		},
	}

	if sc.Forecast.Trained {
		last := len(xs) - 1
		series = append(series, chart.TimeSeries{
			Name:    "Forecast",
			XValues: []time.Time{xs[last], xs[last].AddDate(0, 1, 0)},
			YValues: []float64{ys[last], sc.Forecast.Prediction},
			Style: chart.Style{
				StrokeColor:     chart.ColorRed,
				StrokeWidth:     2,
				StrokeDashArray: []float64{5.0, 5.0},
			},
		})
		top = max(top, sc.Forecast.Prediction)
	}

	// A flat series has a zero range, which go-chart refuses to render.
	if top <= 0 {
		top = 1
	}

	graph := chart.Chart{
		Title:  sc.Category,
		Width:  sc.Width,
		Height: sc.Height,
		Background: chart.Style{
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01"),
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.15},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%s%.0f", sc.CurrencySymbol, v.(float64))
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %s chart: %w", sc.Category, err)
	}
	return buf.Bytes(), nil
}
