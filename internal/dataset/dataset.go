// Package dataset types a raw feed table into immutable daily records.
package dataset

import (
	"sort"
	"strings"
	"time"

	"revenue-action-center/internal/schema"
)

// KeySeparator joins dimension values into a comparable key string. The unit
// separator never appears in spreadsheet text.
const KeySeparator = "\x1f"

// Key is an ordered tuple of dimension values.
type Key []string

// String renders a key for display ("com.app / 123").
func (k Key) String() string {
	return strings.Join(k, " / ")
}

// ID is a map-safe encoding of the key.
func (k Key) ID() string {
	return strings.Join(k, KeySeparator)
}

// Compare orders keys lexicographically, element by element.
func (k Key) Compare(other Key) int {
	for i := 0; i < len(k) && i < len(other); i++ {
		if c := strings.Compare(k[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	default:
		return 0
	}
}

// Record is one observation. Records are shared read-only between analyses.
type Record struct {
	Row        int
	Date       time.Time
	Dimensions map[schema.Field]string
	Metrics    map[schema.Field]float64
}

// Metric returns the value of f and whether the record carries it.
func (r Record) Metric(f schema.Field) (float64, bool) {
	v, ok := r.Metrics[f]
	return v, ok
}

// KeyFor extracts the dimension tuple for the given fields.
func (r Record) KeyFor(fields []schema.Field) Key {
	key := make(Key, len(fields))
	for i, f := range fields {
		key[i] = r.Dimensions[f]
	}
	return key
}

// Dataset is a typed, validated batch.
type Dataset struct {
	Source     string
	Records    []Record
	Dimensions []schema.Field
	Metrics    []schema.Field
	Report     LoadReport
}

// HasMetric reports whether the source carried a column for f.
func (d *Dataset) HasMetric(f schema.Field) bool {
	for _, m := range d.Metrics {
		if m == f {
			return true
		}
	}
	return false
}

// Dates returns the distinct record dates in ascending order.
func (d *Dataset) Dates() []time.Time {
	return DistinctDates(d.Records)
}

// DistinctDates returns the distinct dates in ascending order.
func DistinctDates(records []Record) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, r := range records {
		seen[r.Date] = struct{}{}
	}
	out := make([]time.Time, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// LatestDate returns the most recent record date.
func (d *Dataset) LatestDate() (time.Time, bool) {
	var latest time.Time
	for _, r := range d.Records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, !latest.IsZero()
}
