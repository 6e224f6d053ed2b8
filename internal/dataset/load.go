package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"revenue-action-center/internal/feed"
	"revenue-action-center/internal/schema"
)

// DefaultDateLayouts covers the export formats seen in ad-server reports.
// Slash dates are month-first; day-first feeds set dataset.date_layouts to
// DayFirstDateLayouts.
var DefaultDateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"01-02-06",
	"1/2/06",
	"2-Jan-2006",
}

// DayFirstDateLayouts is DefaultDateLayouts with day-first slash dates.
var DayFirstDateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-06",
	"2/1/06",
	"2-Jan-2006",
}

// LoadOptions drive typing of a resolved table.
type LoadOptions struct {
	Dimensions  []schema.Field
	DateLayouts []string
	MaxRows     int

	// Metrics restricts typing to these fields when they are bound; nil types
	// every bound metric column.
	Metrics []schema.Field
	// Required metrics exclude the whole row when their cell is not numeric.
	// A bad cell in any other metric only leaves that metric unobserved for
	// the row.
	Required []schema.Field
}

// NonNumericDataError counts cells of a field that could not be coerced. It is
// reported, never returned as a fatal error.
type NonNumericDataError struct {
	Field  schema.Field
	Header string
	Rows   int
	// Sample holds up to five 1-based spreadsheet row numbers for the message.
	Sample []int
	// Kept is true when the rows stayed in the dataset without this metric.
	Kept bool
}

func (e *NonNumericDataError) Error() string {
	if e.Kept {
		return fmt.Sprintf("%d value(s) ignored, rows kept: column %q (%s) is not numeric, e.g. rows %v",
			e.Rows, e.Header, e.Field, e.Sample)
	}
	return fmt.Sprintf("%d row(s) excluded: column %q (%s) is not numeric or not a date, e.g. rows %v",
		e.Rows, e.Header, e.Field, e.Sample)
}

// LoadReport accounts for every input row.
type LoadReport struct {
	TotalRows    int
	LoadedRows   int
	ExcludedRows int
	Exclusions   []*NonNumericDataError
}

// Load types every table row against the mapping. Rows whose date or any
// required metric cannot be parsed are excluded, and the first offending field
// of the row is charged. Other unparseable metric cells are dropped from their
// record alone and counted per field.
func Load(table *feed.Table, mapping *schema.Mapping, opts LoadOptions) (*Dataset, error) {
	if opts.MaxRows > 0 && table.Len() > opts.MaxRows {
		return nil, &feed.ResourceLimitError{Source: table.Source, MaxRows: opts.MaxRows}
	}
	if !mapping.Has(schema.FieldDate) {
		return nil, &schema.MissingFieldError{Fields: []schema.Field{schema.FieldDate}, Headers: mapping.Headers}
	}
	var missingDims []schema.Field
	for _, f := range opts.Dimensions {
		if !mapping.Has(f) {
			missingDims = append(missingDims, f)
		}
	}
	if len(missingDims) > 0 {
		return nil, &schema.MissingFieldError{Fields: missingDims, Headers: mapping.Headers}
	}

	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}

	metrics := boundMetrics(mapping, opts.Metrics)

	ds := &Dataset{
		Source:     table.Source,
		Dimensions: append([]schema.Field(nil), opts.Dimensions...),
		Metrics:    metrics,
		Records:    make([]Record, 0, table.Len()),
	}
	required := make(map[schema.Field]bool, len(opts.Required))
	for _, f := range opts.Required {
		required[f] = true
	}

	excluded := make(map[schema.Field]*NonNumericDataError)
	charge := func(f schema.Field, row int) {
		e, ok := excluded[f]
		if !ok {
			e = &NonNumericDataError{Field: f, Header: mapping.Header(f), Kept: f != schema.FieldDate && !required[f]}
			excluded[f] = e
		}
		e.Rows++
		if len(e.Sample) < 5 {
			e.Sample = append(e.Sample, row)
		}
	}

	dateCol, _ := mapping.Column(schema.FieldDate)
	for i := range table.Rows {
		// Header is spreadsheet row 1.
		rowNum := i + 2

		date, ok := ParseDate(table.Cell(i, dateCol), layouts)
		if !ok {
			charge(schema.FieldDate, rowNum)
			continue
		}

		rec := Record{
			Row:        rowNum,
			Date:       date,
			Dimensions: make(map[schema.Field]string, len(opts.Dimensions)),
			Metrics:    make(map[schema.Field]float64, len(metrics)),
		}
		for _, f := range opts.Dimensions {
			col, _ := mapping.Column(f)
			rec.Dimensions[f] = table.Cell(i, col)
		}

		var skipped []schema.Field
		valid := true
		for _, f := range metrics {
			col, _ := mapping.Column(f)
			v, ok := ParseNumber(table.Cell(i, col))
			if ok {
				rec.Metrics[f] = v
				continue
			}
			if required[f] {
				charge(f, rowNum)
				valid = false
				break
			}
			skipped = append(skipped, f)
		}
		if !valid {
			continue
		}
		for _, f := range skipped {
			charge(f, rowNum)
		}
		ds.Records = append(ds.Records, rec)
	}

	ds.Report = LoadReport{
		TotalRows:    table.Len(),
		LoadedRows:   len(ds.Records),
		ExcludedRows: table.Len() - len(ds.Records),
	}
	for _, e := range excluded {
		ds.Report.Exclusions = append(ds.Report.Exclusions, e)
	}
	sort.Slice(ds.Report.Exclusions, func(i, j int) bool {
		return ds.Report.Exclusions[i].Field < ds.Report.Exclusions[j].Field
	})
	return ds, nil
}

func boundMetrics(mapping *schema.Mapping, wanted []schema.Field) []schema.Field {
	var out []schema.Field
	if wanted == nil {
		for _, f := range mapping.Fields() {
			if schema.IsMetric(f) {
				out = append(out, f)
			}
		}
		return out
	}
	seen := make(map[schema.Field]bool, len(wanted))
	for _, f := range wanted {
		if seen[f] || !mapping.Has(f) || !schema.IsMetric(f) {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseDate parses s with the first matching layout and truncates it to a UTC day.
func ParseDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParseNumber accepts plain and report-decorated numbers: "$1,234.50", "12.5%",
// "(42)" for negatives. Blank, NaN and infinite values are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}
