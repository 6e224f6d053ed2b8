package app

import (
	"context"
	"fmt"
	"io"

	"revenue-action-center/internal/anomaly"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/rank"
	"revenue-action-center/internal/render"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/signal"
	"revenue-action-center/internal/trend"
)

// AnalyzeOptions configure a one-shot report.
type AnalyzeOptions struct {
	Source    SourceOptions
	Overrides Overrides
	Format    string
}

// Analyze runs every analysis and prints the full report.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	report, err := a.Evaluate(ctx, opts.Source, opts.Overrides)
	if err != nil {
		return err
	}

	switch format {
	case render.FormatJSON:
		return render.JSON(a.Out, report)
	case render.FormatCSV:
		return render.RowsCSV(a.Out, report.Options.Dimensions, report.Rows)
	case render.FormatText:
		return render.Digest(a.Out, report, render.DigestOptions{})
	default:
		if err := render.RowsTable(a.Out, report.Rows); err != nil {
			return err
		}
		if len(report.DropAlerts) > 0 {
			fmt.Fprintf(a.Out, "\nRevenue drops on %s:\n", report.DropWindow)
			if err := render.ComparisonsTable(a.Out, report.DropAlerts); err != nil {
				return err
			}
		}
		writeFailures(a.Out, report)
		return nil
	}
}

// Trend prints window-over-window changes, largest increase first.
func (a *App) Trend(ctx context.Context, opts AnalyzeOptions) error {
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	report, err := a.Evaluate(ctx, opts.Source, opts.Overrides)
	if err != nil {
		return err
	}
	if err := report.Err(engine.AnalysisTrend); err != nil {
		return err
	}

	comparisons := make([]trend.Comparison, 0, len(report.Rows))
	for _, r := range report.Rows {
		if r.Trend != nil {
			comparisons = append(comparisons, *r.Trend)
		}
	}
	trend.SortByDelta(comparisons)

	switch format {
	case render.FormatJSON:
		return render.JSON(a.Out, struct {
			LastWindow     string             `json:"last_window"`
			PreviousWindow string             `json:"previous_window"`
			Comparisons    []trend.Comparison `json:"comparisons"`
		}{report.LastWindow.String(), report.PreviousWindow.String(), comparisons})
	case render.FormatCSV:
		return render.ComparisonsCSV(a.Out, report.Options.Dimensions, comparisons)
	default:
		fmt.Fprintf(a.Out, "%s: %s vs %s\n\n", report.Options.TrendMetric, report.LastWindow, report.PreviousWindow)
		return render.ComparisonsTable(a.Out, comparisons)
	}
}

// SpikesOptions configure the spikes command.
type SpikesOptions struct {
	AnalyzeOptions
	// AllDays scans every day of every key instead of only the latest date.
	AllDays bool
	// IncludeQuiet lists evaluations that did not flag.
	IncludeQuiet bool
}

// Spikes prints keys whose metric broke out of their own history.
func (a *App) Spikes(ctx context.Context, opts SpikesOptions) error {
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	engOpts, err := a.EngineOptions(opts.Overrides)
	if err != nil {
		return err
	}
	ds, err := a.Load(ctx, opts.Source, engOpts)
	if err != nil {
		return err
	}
	if !ds.HasMetric(engOpts.SpikeMetric) {
		return &schema.MissingFieldError{Fields: []schema.Field{engOpts.SpikeMetric}}
	}

	results, err := evaluateSpikes(ds, engOpts, opts.AllDays)
	if err != nil {
		return err
	}
	if !opts.IncludeQuiet {
		results = anomaly.Spikes(results)
	}
	a.Logger.Info().Int("results", len(results)).Bool("all_days", opts.AllDays).Msg("spike detection complete")

	switch format {
	case render.FormatJSON:
		if results == nil {
			results = []anomaly.Result{}
		}
		return render.JSON(a.Out, results)
	case render.FormatCSV:
		return render.SpikesCSV(a.Out, engOpts.Dimensions, results)
	default:
		return render.SpikesTable(a.Out, results)
	}
}

func evaluateSpikes(ds *dataset.Dataset, opts engine.Options, allDays bool) ([]anomaly.Result, error) {
	det := anomaly.Detector{Dimensions: opts.Dimensions, Metric: opts.SpikeMetric, K: opts.SpikeK}
	if allDays {
		return det.Scan(ds.Records)
	}
	latest, _ := ds.LatestDate()
	return det.EvaluateDay(ds.Records, latest)
}

// ClassifyOptions configure the classify command.
type ClassifyOptions struct {
	AnalyzeOptions
	ActionableOnly bool
}

// Classify prints each key's label and recommended action.
func (a *App) Classify(ctx context.Context, opts ClassifyOptions) error {
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	report, err := a.Evaluate(ctx, opts.Source, opts.Overrides)
	if err != nil {
		return err
	}

	rows := report.Rows
	if opts.ActionableOnly {
		rows = report.Actionable()
	}
	return a.writeRows(format, report, rows)
}

// TopOptions configure the top command.
type TopOptions struct {
	AnalyzeOptions
	View string
	// LowRPM keeps only high-volume keys whose RPM is under thresholds.rpm_floor.
	LowRPM bool
}

// Top prints the highest-ranked keys of one view.
func (a *App) Top(ctx context.Context, opts TopOptions) error {
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	view, err := rank.ParseView(opts.View)
	if err != nil {
		return err
	}
	report, err := a.Evaluate(ctx, opts.Source, opts.Overrides)
	if err != nil {
		return err
	}
	if view == rank.ViewRevenueDelta {
		if err := report.Err(engine.AnalysisTrend); err != nil {
			return err
		}
	}

	rows := report.Rows
	if opts.LowRPM {
		rows = lowRPM(rows, a.Config.Thresholds.RPMFloor, a.Config.Thresholds.MinRequests)
	}
	return a.writeRows(format, report, rank.Top(rows, view, report.Options.TopK))
}

// lowRPM keeps rows monetising under floor despite at least minRequests
// requests in the last window.
func lowRPM(rows []signal.Row, floor, minRequests float64) []signal.Row {
	var out []signal.Row
	for _, r := range rows {
		if !r.Last.Has(schema.FieldRPM) || !r.Last.Has(schema.FieldRequests) {
			continue
		}
		if r.Last.Value(schema.FieldRPM) < floor && r.Last.Value(schema.FieldRequests) >= minRequests {
			out = append(out, r)
		}
	}
	return out
}

func (a *App) writeRows(format render.Format, report *engine.Report, rows []signal.Row) error {
	switch format {
	case render.FormatJSON:
		if rows == nil {
			rows = []signal.Row{}
		}
		return render.JSON(a.Out, rows)
	case render.FormatCSV:
		return render.RowsCSV(a.Out, report.Options.Dimensions, rows)
	case render.FormatText:
		return render.Digest(a.Out, report, render.DigestOptions{ActionableOnly: true})
	default:
		if err := render.RowsTable(a.Out, rows); err != nil {
			return err
		}
		writeFailures(a.Out, report)
		return nil
	}
}

func writeFailures(w io.Writer, report *engine.Report) {
	if len(report.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, "\nNot computed:")
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  - %s: %s\n", f.Analysis, f.Message)
	}
}
