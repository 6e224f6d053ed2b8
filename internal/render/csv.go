package render

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"revenue-action-center/internal/anomaly"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/signal"
	"revenue-action-center/internal/trend"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func observed(r signal.Row, f schema.Field) string {
	if !r.Last.Has(f) {
		return ""
	}
	return num(r.Last.Value(f))
}

// RowsCSV writes one record per row with a column per dimension. Undefined
// percentages are written as "N/A"; unobserved metrics are left empty.
func RowsCSV(w io.Writer, dims []schema.Field, rows []signal.Row) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(dims)+16)
	for _, f := range dims {
		header = append(header, string(f))
	}
	header = append(header,
		"last_window", "previous_window", "last", "previous", "delta", "percent_change",
		"ivt_rate", "margin", "net_after_cost", "discrepancy_pct",
		"spike", "spike_mean", "spike_stddev", "label", "action", "reasons",
	)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := make([]string, 0, len(header))
		record = append(record, r.Key...)
		if r.Trend != nil {
			record = append(record,
				r.Last.Window.String(), r.Previous.Window.String(),
				num(r.Trend.Last), num(r.Trend.Previous), num(r.Trend.Delta), r.Trend.Percent.Label(),
			)
		} else {
			record = append(record, r.Last.Window.String(), "", "", "", "", "")
		}
		record = append(record, observed(r, schema.FieldIVTRate), observed(r, schema.FieldMargin))

		if p := r.Classification.Profitability; p != nil {
			record = append(record, p.Net.StringFixed(2))
		} else {
			record = append(record, "")
		}
		if d := r.Classification.Discrepancy; d != nil {
			record = append(record, num(*d))
		} else {
			record = append(record, "")
		}

		if r.Spike != nil {
			record = append(record, strconv.FormatBool(r.Spike.Spike), stat(r.Spike.Baseline.Mean), stat(r.Spike.Baseline.StdDev))
		} else {
			record = append(record, "", "", "")
		}
		record = append(record,
			string(r.Classification.Label),
			string(r.Classification.Action),
			strings.Join(r.Classification.Reasons, "; "),
		)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// RecordsCSV writes typed records back out, e.g. after filtering.
func RecordsCSV(w io.Writer, records []dataset.Record, dims, metrics []schema.Field) error {
	writer := csv.NewWriter(w)

	header := []string{string(schema.FieldDate)}
	for _, f := range dims {
		header = append(header, string(f))
	}
	for _, f := range metrics {
		header = append(header, string(f))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		record := make([]string, 0, len(header))
		record = append(record, rec.Date.Format(time.DateOnly))
		for _, f := range dims {
			record = append(record, rec.Dimensions[f])
		}
		for _, f := range metrics {
			v, ok := rec.Metric(f)
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, num(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SpikesCSV writes spike evaluations; undefined statistics are left empty.
func SpikesCSV(w io.Writer, dims []schema.Field, results []anomaly.Result) error {
	writer := csv.NewWriter(w)

	header := []string{"date"}
	for _, f := range dims {
		header = append(header, string(f))
	}
	header = append(header, "metric", "value", "mean", "stddev", "threshold", "spike", "reason")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{r.Date.Format(time.DateOnly)}
		record = append(record, r.Key...)
		record = append(record,
			string(r.Metric),
			num(r.Value),
			optional(r.Baseline.Mean),
			optional(r.Baseline.StdDev),
			optional(r.Threshold),
			strconv.FormatBool(r.Spike),
			string(r.Reason),
		)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ComparisonsCSV writes trend comparisons with "N/A" for undefined percentages.
func ComparisonsCSV(w io.Writer, dims []schema.Field, cs []trend.Comparison) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(dims)+6)
	for _, f := range dims {
		header = append(header, string(f))
	}
	header = append(header, "metric", "last", "previous", "delta", "percent_change", "direction")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range cs {
		record := make([]string, 0, len(header))
		record = append(record, c.Key...)
		record = append(record,
			string(c.Metric),
			num(c.Last),
			num(c.Previous),
			num(c.Delta),
			c.Percent.Label(),
			string(c.Direction()),
		)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func optional(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return num(v)
}
