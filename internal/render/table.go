package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"revenue-action-center/internal/anomaly"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/signal"
	"revenue-action-center/internal/trend"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func trendCells(r signal.Row) []string {
	if r.Trend == nil {
		return []string{"-", "-", "-", "-"}
	}
	m := r.Trend.Metric
	return []string{
		metric(m, r.Trend.Last),
		metric(m, r.Trend.Previous),
		metric(m, r.Trend.Delta),
		r.Trend.Percent.Label(),
	}
}

// RowsTable prints one aligned line per row.
func RowsTable(w io.Writer, rows []signal.Row) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "Key\tLast\tPrevious\tDelta\t% Change\tIVT\tMargin\tNet After Cost\tDiscrepancy\tSpike\tLabel\tAction")
	for _, r := range rows {
		cells := []string{r.Key.String()}
		cells = append(cells, trendCells(r)...)
		cells = append(cells,
			value(r.Last, schema.FieldIVTRate),
			value(r.Last, schema.FieldMargin),
			net(r),
			discrepancy(r),
			spike(r),
			r.Classification.Label.Title(),
			string(r.Classification.Action),
		)
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// SpikesTable prints spike evaluations with their baselines.
func SpikesTable(w io.Writer, results []anomaly.Result) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "Date\tKey\tMetric\tValue\tMean\tStdDev\tThreshold\tSpike\tReason")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\t%t\t%s\n",
			r.Date.Format(time.DateOnly),
			r.Key,
			r.Metric,
			r.Value,
			stat(r.Baseline.Mean),
			stat(r.Baseline.StdDev),
			stat(r.Threshold),
			r.Spike,
			r.Reason,
		)
	}
	return tw.Flush()
}

func stat(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// ComparisonsTable prints bare trend comparisons, e.g. revenue-drop alerts.
func ComparisonsTable(w io.Writer, cs []trend.Comparison) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "Key\tLast\tPrevious\tDelta\t% Change\tDirection")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Key,
			metric(c.Metric, c.Last),
			metric(c.Metric, c.Previous),
			metric(c.Metric, c.Delta),
			c.Percent.Label(),
			c.Direction(),
		)
	}
	return tw.Flush()
}

// RecordsTable prints typed records, dimensions first, then metrics.
func RecordsTable(w io.Writer, records []dataset.Record, dims, metrics []schema.Field) error {
	tw := newTabWriter(w)
	header := []string{"Date"}
	for _, f := range dims {
		header = append(header, string(f))
	}
	for _, f := range metrics {
		header = append(header, string(f))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, rec := range records {
		cells := []string{rec.Date.Format(time.DateOnly)}
		for _, f := range dims {
			cells = append(cells, sanitizeInline(rec.Dimensions[f]))
		}
		for _, f := range metrics {
			if v, ok := rec.Metric(f); ok {
				cells = append(cells, metric(f, v))
			} else {
				cells = append(cells, "-")
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
