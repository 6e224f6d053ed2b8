package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

var pkgDims = []schema.Field{schema.FieldPackage}

func on(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func rec(d int, pkg string, metrics map[schema.Field]float64) dataset.Record {
	return dataset.Record{
		Date:       on(d),
		Dimensions: map[schema.Field]string{schema.FieldPackage: pkg},
		Metrics:    metrics,
	}
}

func revenueRecords() []dataset.Record {
	var out []dataset.Record
	for i, v := range []float64{100, 100, 100, 50, 50, 50} {
		out = append(out, rec(i+1, "P1", map[schema.Field]float64{schema.FieldGrossRevenue: v}))
	}
	out = append(out, rec(5, "P2", map[schema.Field]float64{schema.FieldGrossRevenue: 80}))
	out = append(out, rec(2, "P3", map[schema.Field]float64{schema.FieldGrossRevenue: 20}))
	return out
}

func TestTrailingWindows(t *testing.T) {
	dates := dataset.DistinctDates(revenueRecords())

	last, prev, err := TrailingWindows(dates, 3)
	require.NoError(t, err)
	assert.Equal(t, Window{Start: on(4), End: on(6)}, last)
	assert.Equal(t, Window{Start: on(1), End: on(3)}, prev)
	assert.Equal(t, 3, last.Days())
	assert.Equal(t, "2024-05-04..2024-05-06", last.String())
	assert.True(t, prev.End.AddDate(0, 0, 1).Equal(last.Start), "windows must be contiguous")
}

func TestTrailingWindowsInsufficientHistory(t *testing.T) {
	dates := dataset.DistinctDates(revenueRecords())

	_, _, err := TrailingWindows(dates, 4)
	var histErr *InsufficientHistoryError
	require.True(t, errors.As(err, &histErr))
	assert.Equal(t, 8, histErr.Required)
	assert.Equal(t, 6, histErr.Available)
	assert.Contains(t, err.Error(), "2024-05-01..2024-05-06")

	_, _, err = TrailingWindows(nil, 1)
	require.True(t, errors.As(err, &histErr))
	assert.Equal(t, 0, histErr.Available)
}

func TestTrailingWindowsUseObservedDates(t *testing.T) {
	dates := []time.Time{on(1), on(2), on(3), on(10), on(11), on(12)}

	last, prev, err := TrailingWindows(dates, 3)
	require.NoError(t, err)
	assert.Equal(t, Window{Start: on(10), End: on(12)}, last)
	assert.Equal(t, Window{Start: on(1), End: on(3)}, prev)

	last, prev, err = TrailingWindows(dates, 1)
	require.NoError(t, err)
	assert.Equal(t, SingleDay(on(12)), last)
	assert.Equal(t, SingleDay(on(11)), prev)
}

func TestLatestWindow(t *testing.T) {
	dates := []time.Time{on(1), on(5), on(9)}
	assert.Equal(t, Window{Start: on(5), End: on(9)}, LatestWindow(dates, 2))
	assert.Equal(t, Window{Start: on(1), End: on(9)}, LatestWindow(dates, 7))
	assert.Equal(t, Window{}, LatestWindow(nil, 3))
}

func TestAggregateSumsVolumeAndMeansRates(t *testing.T) {
	records := []dataset.Record{
		rec(1, "P1", map[schema.Field]float64{schema.FieldGrossRevenue: 900, schema.FieldMargin: 10}),
		rec(2, "P1", map[schema.Field]float64{schema.FieldGrossRevenue: 100, schema.FieldMargin: 30}),
		rec(3, "P1", map[schema.Field]float64{schema.FieldGrossRevenue: 1, schema.FieldMargin: 99}),
	}
	ag := Aggregator{Dimensions: pkgDims, Metrics: []schema.Field{schema.FieldGrossRevenue, schema.FieldMargin}}

	set := ag.Aggregate(records, Window{Start: on(1), End: on(2)})
	a, ok := set.Get(dataset.Key{"P1"}, Window{})
	require.True(t, ok)
	assert.Equal(t, 1000.0, a.Value(schema.FieldGrossRevenue))
	// Unweighted: (10 + 30) / 2, not the revenue-weighted 12.
	assert.Equal(t, 20.0, a.Value(schema.FieldMargin))
	assert.Equal(t, 2, a.Rows)
	assert.Equal(t, 2, a.Days)
}

func TestAggregateIsIdempotent(t *testing.T) {
	records := revenueRecords()
	ag := Aggregator{Dimensions: pkgDims, Metrics: []schema.Field{schema.FieldGrossRevenue}}
	w := Window{Start: on(1), End: on(6)}

	first := ag.Aggregate(records, w)
	second := ag.Aggregate(records, w)
	assert.Equal(t, first, second)
	assert.Equal(t, 100.0, records[0].Metrics[schema.FieldGrossRevenue])
}

func TestJoinIsFullOuter(t *testing.T) {
	records := revenueRecords()
	ag := Aggregator{Dimensions: pkgDims, Metrics: []schema.Field{schema.FieldGrossRevenue}}
	last, prev, err := TrailingWindows(dataset.DistinctDates(records), 3)
	require.NoError(t, err)

	pairs := Join(ag.Aggregate(records, last), last, ag.Aggregate(records, prev), prev)
	require.Len(t, pairs, 3)

	assert.Equal(t, dataset.Key{"P1"}, pairs[0].Key)
	assert.Equal(t, 150.0, pairs[0].Last.Value(schema.FieldGrossRevenue))
	assert.Equal(t, 300.0, pairs[0].Previous.Value(schema.FieldGrossRevenue))

	assert.Equal(t, dataset.Key{"P2"}, pairs[1].Key)
	assert.True(t, pairs[1].InLast)
	assert.False(t, pairs[1].InPrevious)
	assert.Equal(t, 0.0, pairs[1].Previous.Value(schema.FieldGrossRevenue))
	assert.Equal(t, prev, pairs[1].Previous.Window)

	assert.Equal(t, dataset.Key{"P3"}, pairs[2].Key)
	assert.False(t, pairs[2].InLast)
	assert.Equal(t, 0.0, pairs[2].Last.Value(schema.FieldGrossRevenue))
}

func TestAggregateImpressionBasisSkipsZeroAdvertiser(t *testing.T) {
	records := []dataset.Record{
		rec(1, "P1", map[schema.Field]float64{schema.FieldPublisherImpressions: 900, schema.FieldAdvertiserImpressions: 1000}),
		rec(2, "P1", map[schema.Field]float64{schema.FieldPublisherImpressions: 500, schema.FieldAdvertiserImpressions: 0}),
	}
	ag := Aggregator{Dimensions: pkgDims, Metrics: []schema.Field{schema.FieldPublisherImpressions, schema.FieldAdvertiserImpressions}}

	a, _ := ag.Aggregate(records, Window{Start: on(1), End: on(2)}).Get(dataset.Key{"P1"}, Window{})
	assert.Equal(t, 900.0, a.Impressions.Publisher)
	assert.Equal(t, 1000.0, a.Impressions.Advertiser)
	assert.Equal(t, 1, a.Impressions.Rows)
	assert.Equal(t, 1, a.Impressions.ExcludedRows)
	assert.Equal(t, 1400.0, a.Value(schema.FieldPublisherImpressions))
}

func TestDailyMeansRatesPerDay(t *testing.T) {
	records := []dataset.Record{
		rec(1, "P1", map[schema.Field]float64{schema.FieldIVTRate: 4}),
		rec(1, "P1", map[schema.Field]float64{schema.FieldIVTRate: 8}),
		rec(2, "P1", map[schema.Field]float64{schema.FieldIVTRate: 5}),
		rec(1, "P2", map[schema.Field]float64{schema.FieldGrossRevenue: 5}),
	}

	series := Daily(records, pkgDims, schema.FieldIVTRate)
	require.Len(t, series, 1)
	assert.Equal(t, []DayValue{{Date: on(1), Value: 6}, {Date: on(2), Value: 5}}, series[0].Points)
}
