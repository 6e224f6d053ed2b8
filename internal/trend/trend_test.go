package trend

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

var pkgDims = []schema.Field{schema.FieldPackage}

func on(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func revenue(d int, pkg string, v float64) dataset.Record {
	return dataset.Record{
		Date:       on(d),
		Dimensions: map[schema.Field]string{schema.FieldPackage: pkg},
		Metrics:    map[schema.Field]float64{schema.FieldGrossRevenue: v},
	}
}

func sampleRecords() []dataset.Record {
	var out []dataset.Record
	for i, v := range []float64{100, 100, 100, 50, 50, 50} {
		out = append(out, revenue(i+1, "P1", v))
	}
	out = append(out, revenue(5, "P2", 80))
	out = append(out, revenue(1, "P3", 40))
	return out
}

func byKey(t *testing.T, cs []Comparison, key string) Comparison {
	t.Helper()
	for _, c := range cs {
		if c.Key.String() == key {
			return c
		}
	}
	t.Fatalf("no comparison for %s", key)
	return Comparison{}
}

func TestComparatorExampleScenarios(t *testing.T) {
	res, err := Comparator{Dimensions: pkgDims, Metric: schema.FieldGrossRevenue, WindowDays: 3}.Run(sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, aggregate.Window{Start: on(4), End: on(6)}, res.Last)
	assert.Equal(t, aggregate.Window{Start: on(1), End: on(3)}, res.Previous)

	p1 := byKey(t, res.Comparisons, "P1")
	assert.Equal(t, 150.0, p1.Last)
	assert.Equal(t, 300.0, p1.Previous)
	assert.Equal(t, -150.0, p1.Delta)
	pct, ok := p1.Percent.Value()
	require.True(t, ok)
	assert.Equal(t, -50.0, pct)
	assert.Equal(t, DirectionDown, p1.Direction())

	p2 := byKey(t, res.Comparisons, "P2")
	assert.Equal(t, 80.0, p2.Delta)
	assert.False(t, p2.Percent.Defined())
	assert.Equal(t, "N/A", p2.Percent.Label())
	assert.Equal(t, DirectionNew, p2.Direction())
}

func TestComparatorOuterJoinIsComplete(t *testing.T) {
	res, err := Comparator{Dimensions: pkgDims, Metric: schema.FieldGrossRevenue, WindowDays: 3}.Run(sampleRecords())
	require.NoError(t, err)
	require.Len(t, res.Comparisons, 3)

	seen := map[string]int{}
	for _, c := range res.Comparisons {
		seen[c.Key.String()]++
	}
	assert.Equal(t, map[string]int{"P1": 1, "P2": 1, "P3": 1}, seen)

	p3 := byKey(t, res.Comparisons, "P3")
	assert.Equal(t, 0.0, p3.Last)
	assert.Equal(t, 40.0, p3.Previous)
	assert.Equal(t, -40.0, p3.Delta)
}

func TestComparatorInsufficientHistory(t *testing.T) {
	_, err := Comparator{Dimensions: pkgDims, Metric: schema.FieldGrossRevenue, WindowDays: 4}.Run(sampleRecords())
	var histErr *aggregate.InsufficientHistoryError
	require.True(t, errors.As(err, &histErr))
	assert.Equal(t, 8, histErr.Required)
	assert.Contains(t, err.Error(), "gross_revenue")
}

func TestPercentChangeZeroPrevious(t *testing.T) {
	for _, last := range []float64{0, 1, -5, 1e9} {
		p := PercentChange(last, 0)
		assert.False(t, p.Defined(), "last=%v", last)
	}
	assert.True(t, PercentChange(0, 10).Defined())
	v, _ := PercentChange(0, 10).Value()
	assert.Equal(t, -100.0, v)
}

func TestPercentJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		A Percent `json:"a"`
		B Percent `json:"b"`
	}{A: PercentOf(-50), B: NotApplicable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": -50, "b": null}`, string(raw))

	var p Percent
	require.NoError(t, json.Unmarshal([]byte(`"N/A"`), &p))
	assert.False(t, p.Defined())
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &p))
	assert.Equal(t, "12.5%", p.Label())
}

func TestSortByDeltaIsDeterministic(t *testing.T) {
	build := func() []Comparison {
		return []Comparison{
			Compare(dataset.Key{"b"}, schema.FieldGrossRevenue, 10, 0),
			Compare(dataset.Key{"a"}, schema.FieldGrossRevenue, 10, 0),
			Compare(dataset.Key{"c"}, schema.FieldGrossRevenue, 30, 20),
			Compare(dataset.Key{"d"}, schema.FieldGrossRevenue, 50, 10),
		}
	}
	first, second := build(), build()
	second[0], second[3] = second[3], second[0]
	SortByDelta(first)
	SortByDelta(second)

	keys := func(cs []Comparison) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.Key.String()
		}
		return out
	}
	// Equal deltas of 10: c has the larger |last|, then a before b.
	assert.Equal(t, []string{"d", "c", "a", "b"}, keys(first))
	assert.Equal(t, keys(first), keys(second))
}

func TestDropAlerts(t *testing.T) {
	records := []dataset.Record{
		revenue(1, "P1", 200), revenue(2, "P1", 100),
		revenue(1, "P2", 100), revenue(2, "P2", 90),
		revenue(1, "P3", 50), revenue(2, "P3", 30),
		revenue(2, "P4", 500),
		revenue(1, "P5", 1000), revenue(2, "P5", 60),
	}
	alerts, w, err := DropAlerts(records, pkgDims, DefaultDropRule)
	require.NoError(t, err)
	assert.Equal(t, aggregate.SingleDay(on(2)), w)
	require.Len(t, alerts, 2)
	assert.Equal(t, "P5", alerts[0].Key.String())
	assert.Equal(t, "P1", alerts[1].Key.String())
}

func TestComparisonJSON(t *testing.T) {
	raw, err := json.Marshal(Compare(dataset.Key{"P2"}, schema.FieldGrossRevenue, 80, 0))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["percent_change"])
	assert.Equal(t, "N/A", decoded["percent_change_label"])
	assert.Equal(t, 80.0, decoded["delta"])
	assert.Equal(t, "new", decoded["direction"])
}

func TestComparatorSkipsCalendarGaps(t *testing.T) {
	var records []dataset.Record
	for _, d := range []int{1, 2, 3, 10, 11, 12} {
		records = append(records, revenue(d, "P1", 100))
	}

	res, err := Comparator{Dimensions: pkgDims, Metric: schema.FieldGrossRevenue, WindowDays: 3}.Run(records)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Window{Start: on(10), End: on(12)}, res.Last)
	assert.Equal(t, aggregate.Window{Start: on(1), End: on(3)}, res.Previous)

	p1 := byKey(t, res.Comparisons, "P1")
	assert.Equal(t, 300.0, p1.Last)
	assert.Equal(t, 300.0, p1.Previous)
	pct, ok := p1.Percent.Value()
	require.True(t, ok)
	assert.Equal(t, 0.0, pct)
}

func TestDropAlertsComparesLastTwoObservedDates(t *testing.T) {
	records := []dataset.Record{revenue(5, "P1", 200), revenue(9, "P1", 60)}

	alerts, w, err := DropAlerts(records, pkgDims, DefaultDropRule)
	require.NoError(t, err)
	assert.Equal(t, aggregate.SingleDay(on(9)), w)
	require.Len(t, alerts, 1)
	assert.Equal(t, 60.0, alerts[0].Last)
	assert.Equal(t, 200.0, alerts[0].Previous)
	pct, _ := alerts[0].Percent.Value()
	assert.InDelta(t, -70.0, pct, 1e-9)
}
