package render

import (
	"errors"
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/signal"
)

// ErrNothingToPlot is returned when a chart would have no data.
var ErrNothingToPlot = errors.New("render: nothing to plot")

var actionColors = map[rules.Action]drawing.Color{
	rules.ActionBlock:       drawing.ColorFromHex("d62728"),
	rules.ActionInvestigate: drawing.ColorFromHex("ff7f0e"),
	rules.ActionSafe:        drawing.ColorFromHex("2ca02c"),
}

var previousColor = drawing.ColorFromHex("9e9e9e")

// windowBars pairs each key's previous-window bar with its last-window bar.
// The last bar carries the action colour; a thin spacer separates groups.
func windowBars(rows []signal.Row) []chart.Value {
	bars := make([]chart.Value, 0, 3*len(rows))
	for _, r := range rows {
		if r.Trend == nil {
			continue
		}
		if len(bars) > 0 {
			bars = append(bars, chart.Value{Style: chart.Style{Hidden: true}})
		}
		color := actionColors[r.Classification.Action]
		bars = append(bars,
			chart.Value{
				Label: r.Key.String() + " prev",
				Value: r.Trend.Previous,
				Style: chart.Style{FillColor: previousColor, StrokeColor: previousColor},
			},
			chart.Value{
				Label: r.Key.String() + " last",
				Value: r.Trend.Last,
				Style: chart.Style{FillColor: color, StrokeColor: color},
			},
		)
	}
	return bars
}

// WindowsPNG draws grouped bars of previous vs last window per row.
func WindowsPNG(w io.Writer, title string, rows []signal.Row) error {
	bars := windowBars(rows)
	if len(bars) == 0 {
		return ErrNothingToPlot
	}

	graph := chart.BarChart{
		Title:        title,
		Width:        1280,
		Height:       720,
		BarWidth:     28,
		UseBaseValue: true,
		BaseValue:    0,
		Background:   chart.Style{Padding: chart.Box{Top: 40}},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return Money(f)
				}
				return ""
			},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

// SeriesPNG plots the daily history of one metric per key.
func SeriesPNG(w io.Writer, yName string, series []aggregate.Series) error {
	plotted := make([]chart.Series, 0, len(series))
	for _, s := range series {
		if len(s.Points) < 2 {
			continue
		}
		ts := chart.TimeSeries{
			Name:    s.Key.String(),
			XValues: make([]time.Time, len(s.Points)),
			YValues: make([]float64, len(s.Points)),
		}
		for i, p := range s.Points {
			ts.XValues[i] = p.Date
			ts.YValues[i] = p.Value
		}
		plotted = append(plotted, ts)
	}
	if len(plotted) == 0 {
		return ErrNothingToPlot
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           yName,
			ValueFormatter: valueFormatter,
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}
