package aggregate

import (
	"sort"
	"time"

	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

// DayValue is one key's reduced metric on one date.
type DayValue struct {
	Date  time.Time
	Value float64
}

// Series is the per-day history of a metric for one key, ascending by date.
type Series struct {
	Key    dataset.Key
	Points []DayValue
}

// Daily reduces field per key per distinct date, using the same sum/mean rule as
// Aggregate. Days where the key has no observation of field are absent.
func Daily(records []dataset.Record, dims []schema.Field, field schema.Field) []Series {
	type cell struct {
		sum float64
		n   int
	}
	byKey := make(map[string]map[time.Time]*cell)
	keys := make(map[string]dataset.Key)

	for _, r := range records {
		v, ok := r.Metric(field)
		if !ok {
			continue
		}
		key := r.KeyFor(dims)
		id := key.ID()
		days, ok := byKey[id]
		if !ok {
			days = make(map[time.Time]*cell)
			byKey[id] = days
			keys[id] = key
		}
		c, ok := days[r.Date]
		if !ok {
			c = &cell{}
			days[r.Date] = c
		}
		c.sum += v
		c.n++
	}

	rate := schema.KindOf(field) == schema.KindRate
	out := make([]Series, 0, len(byKey))
	for id, days := range byKey {
		s := Series{Key: keys[id], Points: make([]DayValue, 0, len(days))}
		for d, c := range days {
			v := c.sum
			if rate {
				v = c.sum / float64(c.n)
			}
			s.Points = append(s.Points, DayValue{Date: d, Value: v})
		}
		sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Date.Before(s.Points[j].Date) })
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out
}
