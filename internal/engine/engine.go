// Package engine runs every analysis over one dataset snapshot and collects the
// results into a Report.
//
// Analyses are independent: a structural failure in one (for example too few
// dates for the window comparison) is recorded in Report.Failures and the
// others still run. The engine keeps no state between runs.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/anomaly"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/feed"
	"revenue-action-center/internal/rank"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/signal"
	"revenue-action-center/internal/trend"
)

// Analysis names one independent computation of a run.
type Analysis string

const (
	AnalysisTrend          Analysis = "trend"
	AnalysisSpikes         Analysis = "spikes"
	AnalysisClassification Analysis = "classification"
	AnalysisDrops          Analysis = "drops"
)

// Failure records an analysis that could not run.
type Failure struct {
	Analysis Analysis `json:"analysis"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

// Report is the result of one run.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	Options     Options   `json:"options"`

	LastWindow     aggregate.Window `json:"last_window"`
	PreviousWindow aggregate.Window `json:"previous_window"`
	SpikeDate      time.Time        `json:"spike_date"`
	DropWindow     aggregate.Window `json:"drop_window"`

	Rows       []signal.Row       `json:"rows"`
	Spikes     []anomaly.Result   `json:"spikes"`
	DropAlerts []trend.Comparison `json:"drop_alerts"`

	Load                    dataset.LoadReport `json:"load"`
	DiscrepancyExcludedRows int                `json:"discrepancy_excluded_rows"`
	Failures                []Failure          `json:"failures,omitempty"`
}

// Err returns the failure of analysis a, or nil when it ran.
func (r *Report) Err(a Analysis) error {
	for _, f := range r.Failures {
		if f.Analysis == a {
			return f.Err
		}
	}
	return nil
}

// Top returns the view over the report's rows, k <= 0 meaning Options.TopK.
func (r *Report) Top(view rank.View, k int) []signal.Row {
	if k <= 0 {
		k = r.Options.TopK
	}
	return rank.Top(r.Rows, view, k)
}

// Actionable returns rows that need attention, in key order.
func (r *Report) Actionable() []signal.Row {
	var out []signal.Row
	for _, row := range r.Rows {
		if row.Actionable() {
			out = append(out, row)
		}
	}
	return out
}

// Counts tallies rows per winning label.
func (r *Report) Counts() map[rules.Label]int {
	out := make(map[rules.Label]int, len(rules.Labels))
	for _, row := range r.Rows {
		out[row.Classification.Label]++
	}
	return out
}

// Engine runs analyses. The zero value is not usable; call New.
type Engine struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New builds an engine logging through logger.
func New(logger zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "engine").Logger(),
		now:    time.Now,
	}
}

// RequiredFields are the canonical fields a source must carry for a run.
// Metrics only some analyses need are checked per analysis instead.
func RequiredFields(opts Options) []schema.Field {
	out := []schema.Field{schema.FieldDate}
	out = append(out, opts.Dimensions...)
	out = append(out, schema.FieldGrossRevenue)
	if opts.TrendMetric != schema.FieldGrossRevenue {
		out = append(out, opts.TrendMetric)
	}
	return out
}

// RequiredMetrics are the metrics whose unparseable cell excludes a row. Every
// other metric is optional per row.
func RequiredMetrics(opts Options) []schema.Field {
	var out []schema.Field
	for _, f := range RequiredFields(opts) {
		if schema.IsMetric(f) {
			out = append(out, f)
		}
	}
	return out
}

// Prepare resolves table headers and types the rows.
func Prepare(table *feed.Table, resolver *schema.Resolver, opts Options, load dataset.LoadOptions) (*dataset.Dataset, error) {
	mapping, err := resolver.Resolve(table.Headers, RequiredFields(opts))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", table.Source, err)
	}
	load.Dimensions = opts.Dimensions
	load.Required = RequiredMetrics(opts)
	ds, err := dataset.Load(table, mapping, load)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table.Source, err)
	}
	return ds, nil
}

// Run executes every analysis over ds. It only fails outright on invalid
// options or an empty dataset; per-analysis failures land in the report.
func (e *Engine) Run(ds *dataset.Dataset, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	if ds == nil || len(ds.Records) == 0 {
		return nil, fmt.Errorf("dataset has no usable rows: %w", feed.ErrEmptyTable)
	}

	report := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: e.now().UTC(),
		Source:      ds.Source,
		Options:     opts,
		Load:        ds.Report,
	}
	logger := e.logger.With().Str("run_id", report.RunID).Str("source", ds.Source).Logger()
	for _, ex := range ds.Report.Exclusions {
		msg := "rows excluded from analysis"
		if ex.Kept {
			msg = "non-numeric values ignored"
		}
		logger.Warn().Str("field", string(ex.Field)).Str("column", ex.Header).Int("rows", ex.Rows).
			Ints("sample_rows", ex.Sample).Msg(msg)
	}

	rows := e.trendRows(ds, opts, report, logger)
	e.classify(rows, opts, report)
	e.spikes(ds, opts, rows, report)
	e.drops(ds, opts, report)

	report.Rows = rows
	for _, f := range report.Failures {
		logger.Warn().Str("analysis", string(f.Analysis)).Msg(f.Message)
	}
	if report.DiscrepancyExcludedRows > 0 {
		logger.Debug().Int("rows", report.DiscrepancyExcludedRows).
			Msg("rows with zero advertiser impressions skipped by the discrepancy rule")
	}
	logger.Info().
		Int("rows", len(report.Rows)).
		Int("spikes", len(report.Spikes)).
		Int("drop_alerts", len(report.DropAlerts)).
		Int("failures", len(report.Failures)).
		Str("last_window", report.LastWindow.String()).
		Msg("analysis complete")
	return report, nil
}

func (r *Report) fail(a Analysis, err error) {
	r.Failures = append(r.Failures, Failure{Analysis: a, Message: err.Error(), Err: err})
}

// trendRows builds one row per key. Without enough history for the comparison
// the rows fall back to the last window alone so classification can still run.
func (e *Engine) trendRows(ds *dataset.Dataset, opts Options, report *Report, logger zerolog.Logger) []signal.Row {
	if !ds.HasMetric(opts.TrendMetric) {
		report.fail(AnalysisTrend, &schema.MissingFieldError{Fields: []schema.Field{opts.TrendMetric}})
		return e.lastWindowRows(ds, opts, report)
	}

	cmp := trend.Comparator{
		Dimensions: opts.Dimensions,
		Metric:     opts.TrendMetric,
		WindowDays: opts.WindowDays,
		Metrics:    ds.Metrics,
	}
	res, err := cmp.Run(ds.Records)
	if err != nil {
		var histErr *aggregate.InsufficientHistoryError
		if !errors.As(err, &histErr) {
			logger.Error().Err(err).Msg("trend comparison failed")
		}
		report.fail(AnalysisTrend, err)
		return e.lastWindowRows(ds, opts, report)
	}

	report.LastWindow, report.PreviousWindow = res.Last, res.Previous
	rows := make([]signal.Row, 0, len(res.Pairs))
	for i, p := range res.Pairs {
		c := res.Comparisons[i]
		rows = append(rows, signal.Row{Key: p.Key, Last: p.Last, Previous: p.Previous, Trend: &c})
	}
	return rows
}

func (e *Engine) lastWindowRows(ds *dataset.Dataset, opts Options, report *Report) []signal.Row {
	w := aggregate.LatestWindow(ds.Dates(), opts.WindowDays)
	report.LastWindow = w

	set := aggregate.Aggregator{Dimensions: opts.Dimensions, Metrics: ds.Metrics}.Aggregate(ds.Records, w)
	rows := make([]signal.Row, 0, len(set))
	for _, key := range set.Keys() {
		a, _ := set.Get(key, w)
		rows = append(rows, signal.Row{Key: key, Last: a})
	}
	return rows
}

func (e *Engine) classify(rows []signal.Row, opts Options, report *Report) {
	for i := range rows {
		rows[i].Classification = rules.Classify(rules.FromAggregate(rows[i].Last), opts.Thresholds)
		report.DiscrepancyExcludedRows += rows[i].Last.Impressions.ExcludedRows
	}
}

func (e *Engine) spikes(ds *dataset.Dataset, opts Options, rows []signal.Row, report *Report) {
	if !ds.HasMetric(opts.SpikeMetric) {
		report.fail(AnalysisSpikes, &schema.MissingFieldError{Fields: []schema.Field{opts.SpikeMetric}})
		return
	}
	latest, _ := ds.LatestDate()
	report.SpikeDate = latest

	det := anomaly.Detector{Dimensions: opts.Dimensions, Metric: opts.SpikeMetric, K: opts.SpikeK}
	results, err := det.EvaluateDay(ds.Records, latest)
	if err != nil {
		report.fail(AnalysisSpikes, err)
		return
	}

	byKey := make(map[string]int, len(rows))
	for i, r := range rows {
		byKey[r.Key.ID()] = i
	}
	for i := range results {
		res := results[i]
		if res.Reason == anomaly.ReasonNoObservationDays {
			continue
		}
		if idx, ok := byKey[res.Key.ID()]; ok {
			rows[idx].Spike = &res
		}
	}
	report.Spikes = anomaly.Spikes(results)
}

func (e *Engine) drops(ds *dataset.Dataset, opts Options, report *Report) {
	if !ds.HasMetric(schema.FieldGrossRevenue) {
		report.fail(AnalysisDrops, &schema.MissingFieldError{Fields: []schema.Field{schema.FieldGrossRevenue}})
		return
	}
	alerts, w, err := trend.DropAlerts(ds.Records, opts.Dimensions, opts.Drop)
	if err != nil {
		report.fail(AnalysisDrops, err)
		return
	}
	report.DropWindow = w
	report.DropAlerts = alerts
}
