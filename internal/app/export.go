package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/rank"
	"revenue-action-center/internal/render"
	"revenue-action-center/internal/signal"
)

// ExportOptions hold output paths for a report export.
type ExportOptions struct {
	AnalyzeOptions
	CSVPath  string
	JSONPath string
	// PNGPath receives a bar chart of the top keys' trend deltas.
	PNGPath string
	// SeriesPNGPath receives the daily trend-metric series of the top keys.
	SeriesPNGPath string
}

// Export renders the report to files.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.JSONPath == "" && opts.PNGPath == "" && opts.SeriesPNGPath == "" {
		return errors.New("at least one of --csv, --json, --png or --series-png must be provided")
	}

	engOpts, err := a.EngineOptions(opts.Overrides)
	if err != nil {
		return err
	}
	ds, err := a.Load(ctx, opts.Source, engOpts)
	if err != nil {
		return err
	}
	report, err := engine.New(a.Logger).Run(ds, engOpts)
	if err != nil {
		return err
	}

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error {
			return render.RowsCSV(w, report.Options.Dimensions, report.Rows)
		}); err != nil {
			return err
		}
	}
	if opts.JSONPath != "" {
		if err := writeFile(opts.JSONPath, func(w io.Writer) error {
			return render.JSON(w, report)
		}); err != nil {
			return err
		}
	}

	top := report.Top(rank.ViewRevenueDelta, 0)
	if opts.PNGPath != "" {
		title := fmt.Sprintf("%s change, %s vs %s", report.Options.TrendMetric, report.LastWindow, report.PreviousWindow)
		if err := writeFile(opts.PNGPath, func(w io.Writer) error {
			return render.WindowsPNG(w, title, top)
		}); err != nil {
			return err
		}
	}
	if opts.SeriesPNGPath != "" {
		series := topSeries(ds, report, top)
		if err := writeFile(opts.SeriesPNGPath, func(w io.Writer) error {
			return render.SeriesPNG(w, string(report.Options.TrendMetric), series)
		}); err != nil {
			return err
		}
	}

	a.Logger.Info().Str("run_id", report.RunID).
		Int("rows", len(report.Rows)).
		Int("charted", len(top)).
		Msg("report exported")
	return nil
}

// topSeries returns the daily series of the ranked keys, in rank order.
func topSeries(ds *dataset.Dataset, report *engine.Report, top []signal.Row) []aggregate.Series {
	all := aggregate.Daily(ds.Records, report.Options.Dimensions, report.Options.TrendMetric)
	byKey := make(map[string]aggregate.Series, len(all))
	for _, s := range all {
		byKey[s.Key.ID()] = s
	}
	out := make([]aggregate.Series, 0, len(top))
	for _, r := range top {
		if s, ok := byKey[r.Key.ID()]; ok {
			out = append(out, s)
		}
	}
	return out
}

// writeFile creates path and its directory, removing a partial file when fn
// fails.
func writeFile(path string, fn func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
