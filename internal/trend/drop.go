package trend

import (
	"sort"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

// DropRule flags keys whose revenue fell sharply day over day.
type DropRule struct {
	// MinRevenue is the last-day revenue a key must exceed to be considered.
	MinRevenue float64
	// Pct is the drop size, as a positive percentage.
	Pct float64
}

// DefaultDropRule matches the dashboard alert: more than $50 yesterday and
// down more than 20%.
var DefaultDropRule = DropRule{MinRevenue: 50, Pct: 20}

// Matches reports whether c is a qualifying drop. An undefined percentage never
// qualifies.
func (r DropRule) Matches(c Comparison) bool {
	pct, ok := c.Percent.Value()
	return ok && c.Last > r.MinRevenue && pct < -r.Pct
}

// DropAlerts compares the latest date against the previous date present in the
// records on gross revenue and returns the qualifying keys, largest fall first.
func DropAlerts(records []dataset.Record, dims []schema.Field, rule DropRule) ([]Comparison, aggregate.Window, error) {
	res, err := Comparator{Dimensions: dims, Metric: schema.FieldGrossRevenue, WindowDays: 1}.Run(records)
	if err != nil {
		return nil, aggregate.Window{}, err
	}
	var out []Comparison
	for _, c := range res.Comparisons {
		if rule.Matches(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Delta != out[j].Delta {
			return out[i].Delta < out[j].Delta
		}
		return TieBreak(out[i].Key, out[i].Last, out[j].Key, out[j].Last)
	})
	return out, res.Last, nil
}
