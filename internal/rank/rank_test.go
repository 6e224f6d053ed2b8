package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/signal"
	"revenue-action-center/internal/trend"
)

func row(key string, last, previous float64, ivt *float64, metrics map[schema.Field]float64) signal.Row {
	k := dataset.Key{key}
	agg := aggregate.Aggregate{
		Key:          k,
		Values:       map[schema.Field]float64{},
		Observations: map[schema.Field]int{},
	}
	if ivt != nil {
		agg.Values[schema.FieldIVTRate] = *ivt
		agg.Observations[schema.FieldIVTRate] = 1
	}
	c := trend.Compare(k, schema.FieldGrossRevenue, last, previous)
	r := signal.Row{Key: k, Trend: &c, Last: agg}
	if metrics != nil {
		r.Classification = rules.Classify(rules.Metrics{Values: metrics}, rules.DefaultThresholds())
	}
	return r
}

func ptr(v float64) *float64 { return &v }

func keys(rows []signal.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key.String()
	}
	return out
}

func sample() []signal.Row {
	return []signal.Row{
		row("b", 100, 50, ptr(3), nil),
		row("a", 100, 150, ptr(12), nil),
		row("c", 10, 60, nil, nil),
		row("d", 0, 5, ptr(12), map[schema.Field]float64{
			schema.FieldGrossRevenue: 10,
			schema.FieldRequests:     1_000_000_000,
		}),
		row("e", 300, 290, ptr(40), map[schema.Field]float64{
			schema.FieldGrossRevenue: 100,
			schema.FieldRevenueCost:  50,
			schema.FieldRequests:     100_000_000,
		}),
	}
}

func TestTopRevenueDelta(t *testing.T) {
	top := Top(sample(), ViewRevenueDelta, 3)
	// a and b tie on |delta| 50 with equal |last|; c also 50 but smaller |last|.
	assert.Equal(t, []string{"a", "b", "c"}, keys(top))
}

func TestTopIVTSkipsUnobserved(t *testing.T) {
	top := Top(sample(), ViewIVT, 0)
	// a and d tie at 12: a has the larger |last|.
	assert.Equal(t, []string{"e", "a", "d", "b"}, keys(top))
}

func TestTopRevenueDeltaSkipsRowsWithoutTrend(t *testing.T) {
	rows := sample()
	rows[0].Trend = nil
	assert.Equal(t, []string{"a", "c", "e", "d"}, keys(Top(rows, ViewRevenueDelta, 0)))
}

func TestTopLoss(t *testing.T) {
	top := Top(sample(), ViewLoss, 10)
	require.Len(t, top, 1)
	assert.Equal(t, "d", top[0].Key.String())
	assert.Equal(t, 190.0, top[0].Loss())
}

func TestTopIsDeterministic(t *testing.T) {
	a := sample()
	b := sample()
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	for _, v := range Views {
		assert.Equal(t, keys(Top(a, v, 0)), keys(Top(b, v, 0)), "view %s", v)
	}
	assert.Equal(t, "b", a[0].Key.String(), "input must not be reordered")
}

func TestParseView(t *testing.T) {
	v, err := ParseView(" IVT ")
	require.NoError(t, err)
	assert.Equal(t, ViewIVT, v)

	_, err = ParseView("profit")
	assert.ErrorContains(t, err, "unknown view")
}
