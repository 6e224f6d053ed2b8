// Package aggregate reduces daily records into per-key window summaries.
//
// Volume metrics (revenue, impressions, requests) are summed. Rate metrics
// (IVT, margin, RPM, fill rate, CPM) are the plain arithmetic mean of the rows in
// the window, deliberately not weighted by volume.
package aggregate

import (
	"sort"
	"time"

	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

// ImpressionBasis holds impression totals over rows with non-zero advertiser
// impressions only, the input of the discrepancy rule.
type ImpressionBasis struct {
	Publisher  float64 `json:"publisher"`
	Advertiser float64 `json:"advertiser"`
	Rows       int     `json:"rows"`

	// ExcludedRows counts rows skipped because advertiser impressions were zero.
	ExcludedRows int `json:"excluded_rows"`
}

// Aggregate is the reduction of one dimension key over one window.
type Aggregate struct {
	Key          dataset.Key              `json:"key"`
	Window       Window                   `json:"window"`
	Rows         int                      `json:"rows"`
	Days         int                      `json:"days"`
	Values       map[schema.Field]float64 `json:"values"`
	Observations map[schema.Field]int     `json:"-"`
	Impressions  ImpressionBasis          `json:"impressions"`
}

// Value returns the reduced metric, 0 when the key had no observation.
func (a Aggregate) Value(f schema.Field) float64 {
	return a.Values[f]
}

// Has reports whether at least one row contributed to f.
func (a Aggregate) Has(f schema.Field) bool {
	return a.Observations[f] > 0
}

// Set holds aggregates indexed by Key.ID.
type Set map[string]Aggregate

// Keys returns the set's keys in lexicographic order.
func (s Set) Keys() []dataset.Key {
	keys := make([]dataset.Key, 0, len(s))
	for _, a := range s {
		keys = append(keys, a.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

// Get returns the aggregate for key, or an empty one for the given window.
func (s Set) Get(key dataset.Key, w Window) (Aggregate, bool) {
	if a, ok := s[key.ID()]; ok {
		return a, true
	}
	return empty(key, w), false
}

func empty(key dataset.Key, w Window) Aggregate {
	return Aggregate{
		Key:          key,
		Window:       w,
		Values:       map[schema.Field]float64{},
		Observations: map[schema.Field]int{},
	}
}

// Aggregator groups records by Dimensions and reduces Metrics.
type Aggregator struct {
	Dimensions []schema.Field
	Metrics    []schema.Field
}

type accumulator struct {
	key   dataset.Key
	rows  int
	days  map[time.Time]struct{}
	sums  map[schema.Field]float64
	count map[schema.Field]int
	imps  ImpressionBasis
}

// Aggregate reduces every record inside w. Input records are not modified, and
// repeated calls over the same input return equal sets.
func (ag Aggregator) Aggregate(records []dataset.Record, w Window) Set {
	accs := make(map[string]*accumulator)
	order := make([]string, 0)

	for _, r := range records {
		if !w.Contains(r.Date) {
			continue
		}
		key := r.KeyFor(ag.Dimensions)
		id := key.ID()
		acc, ok := accs[id]
		if !ok {
			acc = &accumulator{
				key:   key,
				days:  make(map[time.Time]struct{}),
				sums:  make(map[schema.Field]float64, len(ag.Metrics)),
				count: make(map[schema.Field]int, len(ag.Metrics)),
			}
			accs[id] = acc
			order = append(order, id)
		}
		ag.add(acc, r)
	}

	out := make(Set, len(accs))
	for _, id := range order {
		out[id] = accs[id].finish(w)
	}
	return out
}

func (ag Aggregator) add(acc *accumulator, r dataset.Record) {
	acc.rows++
	acc.days[r.Date] = struct{}{}
	for _, f := range ag.Metrics {
		v, ok := r.Metric(f)
		if !ok {
			continue
		}
		acc.sums[f] += v
		acc.count[f]++
	}

	pub, hasPub := r.Metric(schema.FieldPublisherImpressions)
	adv, hasAdv := r.Metric(schema.FieldAdvertiserImpressions)
	if !hasPub || !hasAdv {
		return
	}
	if adv <= 0 {
		acc.imps.ExcludedRows++
		return
	}
	acc.imps.Publisher += pub
	acc.imps.Advertiser += adv
	acc.imps.Rows++
}

func (acc *accumulator) finish(w Window) Aggregate {
	a := empty(acc.key, w)
	a.Rows = acc.rows
	a.Days = len(acc.days)
	a.Impressions = acc.imps
	for f, sum := range acc.sums {
		n := acc.count[f]
		a.Observations[f] = n
		if schema.KindOf(f) == schema.KindRate {
			a.Values[f] = sum / float64(n)
			continue
		}
		a.Values[f] = sum
	}
	return a
}

// Pair is one key's aggregates on both sides of a comparison.
type Pair struct {
	Key      dataset.Key
	Last     Aggregate
	Previous Aggregate

	// InLast and InPrevious report which sides had rows.
	InLast     bool
	InPrevious bool
}

// Join is a full outer join of two window sets: every key present on either
// side appears exactly once, and the missing side is an empty aggregate whose
// metrics read as 0. Pairs are returned in key order.
func Join(last Set, lastWindow Window, previous Set, previousWindow Window) []Pair {
	ids := make(map[string]dataset.Key, len(last)+len(previous))
	for id, a := range last {
		ids[id] = a.Key
	}
	for id, a := range previous {
		ids[id] = a.Key
	}

	pairs := make([]Pair, 0, len(ids))
	for _, key := range ids {
		l, inLast := last.Get(key, lastWindow)
		p, inPrev := previous.Get(key, previousWindow)
		pairs = append(pairs, Pair{Key: key, Last: l, Previous: p, InLast: inLast, InPrevious: inPrev})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key.Compare(pairs[j].Key) < 0 })
	return pairs
}
