package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"revenue-action-center/internal/app"
)

// analysisFlags are shared by every command that reads the feed.
type analysisFlags struct {
	input  string
	sheet  string
	sql    string
	format string

	window int
	top    int
	k      float64

	ivt         float64
	margin      float64
	costPerBn   float64
	discrepancy float64
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.input, "input", "", "CSV/XLSX feed path, - for CSV on stdin (defaults to dataset.input)")
	fs.StringVar(&f.sheet, "sheet", "", "XLSX worksheet name (defaults to the first sheet)")
	fs.StringVar(&f.sql, "sql", "", "SQL query to run against database.dsn instead of a file")
	fs.StringVarP(&f.format, "format", "o", "table", "Output format: table, json, csv or text")

	fs.IntVar(&f.window, "window", 0, "Trailing window size in days (defaults to config)")
	fs.IntVar(&f.top, "top", 0, "Number of keys in ranked views (defaults to config)")
	fs.Float64Var(&f.k, "k", 0, "Spike sensitivity in standard deviations (defaults to config)")

	fs.Float64Var(&f.ivt, "ivt", 0, "High invalid-traffic threshold, percent")
	fs.Float64Var(&f.margin, "margin", 0, "Low margin threshold, percent")
	fs.Float64Var(&f.costPerBn, "cost-per-billion", 0, "Serving cost per billion requests, dollars")
	fs.Float64Var(&f.discrepancy, "discrepancy", 0, "Impression discrepancy threshold, percent")
}

func (f *analysisFlags) options(cmd *cobra.Command) app.AnalyzeOptions {
	fs := cmd.Flags()
	ov := app.Overrides{
		WindowDays:             f.window,
		TopK:                   f.top,
		SpikeK:                 changed(fs, "k", f.k),
		IVT:                    changed(fs, "ivt", f.ivt),
		Margin:                 changed(fs, "margin", f.margin),
		CostPerBillionRequests: changed(fs, "cost-per-billion", f.costPerBn),
		DiscrepancyPct:         changed(fs, "discrepancy", f.discrepancy),
	}
	return app.AnalyzeOptions{
		Source:    app.SourceOptions{Input: f.input, Sheet: f.sheet, SQL: f.sql},
		Overrides: ov,
		Format:    f.format,
	}
}

// changed returns &v only when the flag was set explicitly, so a zero
// threshold can still be requested.
func changed(fs *pflag.FlagSet, name string, v float64) *float64 {
	if !fs.Changed(name) {
		return nil
	}
	return &v
}
