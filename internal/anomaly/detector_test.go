package anomaly

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

func on(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func ivtRecords(pkg string, values ...float64) []dataset.Record {
	out := make([]dataset.Record, 0, len(values))
	for i, v := range values {
		out = append(out, dataset.Record{
			Date:       on(i + 1),
			Dimensions: map[schema.Field]string{schema.FieldPackage: pkg},
			Metrics:    map[schema.Field]float64{schema.FieldIVTRate: v},
		})
	}
	return out
}

func TestNewBaselineSampleStdDev(t *testing.T) {
	b := NewBaseline([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, b.Mean, 1e-9)
	// Sample (n-1) standard deviation: sqrt(32/7).
	assert.InDelta(t, math.Sqrt(32.0/7.0), b.StdDev, 1e-9)
	assert.Equal(t, 8, b.Count)
	assert.True(t, b.Defined())
}

func TestEvaluateUndefinedBaselines(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		reason  Reason
	}{
		{name: "no history", history: nil, reason: ReasonNotEnoughHistory},
		{name: "single point", history: []float64{3}, reason: ReasonNotEnoughHistory},
		{name: "flat history", history: []float64{5, 5, 5}, reason: ReasonFlatBaseline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(1e6, tt.history, DefaultK)
			assert.False(t, res.Spike)
			assert.Equal(t, tt.reason, res.Reason)
			assert.True(t, math.IsNaN(res.Threshold))
		})
	}
}

func TestEvaluateFlagsSpike(t *testing.T) {
	res := Evaluate(30, []float64{4, 5, 6, 5}, DefaultK)
	require.True(t, res.Spike)
	assert.Equal(t, ReasonSpike, res.Reason)
	assert.InDelta(t, 5.0, res.Baseline.Mean, 1e-9)
	assert.InDelta(t, res.Baseline.Mean+2*res.Baseline.StdDev, res.Threshold, 1e-9)

	res = Evaluate(5.5, []float64{4, 5, 6, 5}, DefaultK)
	assert.False(t, res.Spike)
	assert.Equal(t, ReasonWithinBaseline, res.Reason)
}

func TestEvaluateMonotonicInK(t *testing.T) {
	history := []float64{4, 5, 6, 5, 7, 3}
	values := []float64{5, 6, 7, 8, 9, 10, 12, 15}
	ks := []float64{0, 0.5, 1, 1.5, 2, 3, 5}

	prev := len(values) + 1
	for _, k := range ks {
		flagged := 0
		for _, v := range values {
			if Evaluate(v, history, k).Spike {
				flagged++
			}
		}
		assert.LessOrEqual(t, flagged, prev, "k=%v flagged more values than a smaller k", k)
		prev = flagged
	}
}

func TestEvaluateDayExcludesEvaluatedDay(t *testing.T) {
	records := ivtRecords("P1", 4, 5, 6, 5, 40)
	records = append(records, ivtRecords("P2", 8, 8)...)
	d := Detector{Dimensions: []schema.Field{schema.FieldPackage}, Metric: schema.FieldIVTRate, K: DefaultK}

	results, err := d.EvaluateDay(records, on(5))
	require.NoError(t, err)
	require.Len(t, results, 2)

	p1 := results[0]
	assert.Equal(t, dataset.Key{"P1"}, p1.Key)
	assert.Equal(t, 4, p1.Baseline.Count)
	assert.InDelta(t, 5.0, p1.Baseline.Mean, 1e-9)
	assert.True(t, p1.Spike)

	p2 := results[1]
	assert.Equal(t, dataset.Key{"P2"}, p2.Key)
	assert.False(t, p2.Spike)
	assert.Equal(t, ReasonNoObservationDays, p2.Reason)

	assert.Len(t, Spikes(results), 1)
}

func TestScanEvaluatesEveryDay(t *testing.T) {
	d := Detector{Dimensions: []schema.Field{schema.FieldPackage}, Metric: schema.FieldIVTRate, K: DefaultK}
	results, err := d.Scan(ivtRecords("P1", 4, 5, 6, 5, 40))
	require.NoError(t, err)
	require.Len(t, results, 5)

	spikes := Spikes(results)
	require.Len(t, spikes, 1)
	assert.Equal(t, on(5), spikes[0].Date)
}

func TestDetectorValidate(t *testing.T) {
	_, err := Detector{K: 2}.EvaluateDay(nil, on(1))
	require.Error(t, err)

	_, err = Detector{Metric: schema.FieldIVTRate, K: -1}.Scan(nil)
	require.Error(t, err)
}

func TestResultJSONWritesNullForUndefinedStats(t *testing.T) {
	res := Evaluate(3, []float64{1}, DefaultK)
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["threshold"])
	baseline := decoded["baseline"].(map[string]any)
	assert.Nil(t, baseline["stddev"])
	assert.Equal(t, 1.0, baseline["mean"])
}
