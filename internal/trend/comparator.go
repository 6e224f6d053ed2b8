// Package trend compares each key's last window against the window right
// before it.
package trend

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

// DefaultWindowDays is the comparison length when none is configured.
const DefaultWindowDays = 3

// Direction summarises the sign of a comparison.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
	DirectionNew  Direction = "new"
)

// Comparison is one key's trend over a metric.
type Comparison struct {
	Key      dataset.Key  `json:"key"`
	Metric   schema.Field `json:"metric"`
	Last     float64      `json:"last"`
	Previous float64      `json:"previous"`
	Delta    float64      `json:"delta"`
	Percent  Percent      `json:"percent_change"`
}

// Direction reports whether the key grew, shrank, stayed flat, or only has a
// last window to speak of.
func (c Comparison) Direction() Direction {
	switch {
	case c.Previous == 0 && c.Last != 0:
		return DirectionNew
	case c.Delta > 0:
		return DirectionUp
	case c.Delta < 0:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// MarshalJSON adds the display label of the percentage and the direction.
func (c Comparison) MarshalJSON() ([]byte, error) {
	type plain Comparison
	return json.Marshal(struct {
		plain
		PercentLabel string    `json:"percent_change_label"`
		Direction    Direction `json:"direction"`
	}{plain(c), c.Percent.Label(), c.Direction()})
}

// Compare builds the comparison of two values.
func Compare(key dataset.Key, metric schema.Field, last, previous float64) Comparison {
	return Comparison{
		Key:      key,
		Metric:   metric,
		Last:     last,
		Previous: previous,
		Delta:    last - previous,
		Percent:  PercentChange(last, previous),
	}
}

// Comparator compares Metric per key between two trailing windows of
// WindowDays each. Metrics lists additional fields reduced alongside so callers
// can reuse the window aggregates.
type Comparator struct {
	Dimensions []schema.Field
	Metric     schema.Field
	WindowDays int
	Metrics    []schema.Field
}

// Result holds the windows, the joined aggregates, and one comparison per key
// in key order.
type Result struct {
	Last        aggregate.Window
	Previous    aggregate.Window
	Pairs       []aggregate.Pair
	Comparisons []Comparison
}

// Run compares every key present in either window. It fails with
// *aggregate.InsufficientHistoryError when the records span fewer than
// 2 × WindowDays distinct dates.
func (c Comparator) Run(records []dataset.Record) (*Result, error) {
	if c.Metric == "" {
		return nil, fmt.Errorf("trend metric not configured")
	}
	last, prev, err := aggregate.TrailingWindows(dataset.DistinctDates(records), c.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("compare %s over %d-day windows: %w", c.Metric, c.WindowDays, err)
	}

	ag := aggregate.Aggregator{Dimensions: c.Dimensions, Metrics: c.metrics()}
	pairs := aggregate.Join(ag.Aggregate(records, last), last, ag.Aggregate(records, prev), prev)

	res := &Result{Last: last, Previous: prev, Pairs: pairs, Comparisons: make([]Comparison, 0, len(pairs))}
	for _, p := range pairs {
		res.Comparisons = append(res.Comparisons, Compare(p.Key, c.Metric, p.Last.Value(c.Metric), p.Previous.Value(c.Metric)))
	}
	return res, nil
}

func (c Comparator) metrics() []schema.Field {
	out := []schema.Field{c.Metric}
	for _, f := range c.Metrics {
		if f != c.Metric {
			out = append(out, f)
		}
	}
	return out
}

// SortByDelta orders comparisons by delta, largest gain first. Equal deltas fall
// back to descending |last| and then lexicographic key, so the order is fully
// determined by the values.
func SortByDelta(cs []Comparison) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Delta != cs[j].Delta {
			return cs[i].Delta > cs[j].Delta
		}
		return TieBreak(cs[i].Key, cs[i].Last, cs[j].Key, cs[j].Last)
	})
}

// TieBreak reports whether a sorts before b when their primary values are equal.
func TieBreak(a dataset.Key, aLast float64, b dataset.Key, bLast float64) bool {
	if x, y := math.Abs(aLast), math.Abs(bLast); x != y {
		return x > y
	}
	return a.Compare(b) < 0
}
