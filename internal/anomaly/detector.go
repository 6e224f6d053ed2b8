// Package anomaly flags per-key spikes against each key's own history.
//
// A day is a spike when its value exceeds mean + k·stddev of the key's other
// days. Baselines with fewer than two historical points or a zero/NaN standard
// deviation are undefined and never flag.
package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/schema"
)

// DefaultK is the sensitivity used when none is configured.
const DefaultK = 2.0

// MinHistory is the minimum number of historical days for a defined baseline.
const MinHistory = 2

// Baseline is the historical mean and sample standard deviation of a metric.
type Baseline struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// Defined reports whether the baseline can support a spike decision.
func (b Baseline) Defined() bool {
	return b.Count >= MinHistory && !math.IsNaN(b.StdDev) && !math.IsInf(b.StdDev, 0) && b.StdDev > 0
}

// Threshold returns mean + k·stddev.
func (b Baseline) Threshold(k float64) float64 {
	return b.Mean + k*b.StdDev
}

// NewBaseline summarises history. Fewer than MinHistory points leave StdDev NaN.
func NewBaseline(history []float64) Baseline {
	b := Baseline{Count: len(history), StdDev: math.NaN()}
	if len(history) == 0 {
		b.Mean = math.NaN()
		return b
	}
	b.Mean = stat.Mean(history, nil)
	if len(history) >= MinHistory {
		b.StdDev = stat.StdDev(history, nil)
	}
	return b
}

// Reason explains why a value was or was not flagged.
type Reason string

const (
	ReasonSpike             Reason = "spike"
	ReasonWithinBaseline    Reason = "within_baseline"
	ReasonNotEnoughHistory  Reason = "insufficient_history"
	ReasonFlatBaseline      Reason = "zero_stddev"
	ReasonNoObservationDays Reason = "no_observation"
)

// Result is the audit record of one evaluation.
type Result struct {
	Key       dataset.Key  `json:"key"`
	Metric    schema.Field `json:"metric"`
	Date      time.Time    `json:"date"`
	Value     float64      `json:"value"`
	Baseline  Baseline     `json:"baseline"`
	K         float64      `json:"k"`
	Threshold float64      `json:"threshold"`
	Spike     bool         `json:"spike"`
	Reason    Reason       `json:"reason"`
}

// Evaluate decides whether value is a spike against history. An undefined
// baseline yields Spike=false with an explicit reason, never a NaN comparison.
func Evaluate(value float64, history []float64, k float64) Result {
	b := NewBaseline(history)
	res := Result{Value: value, Baseline: b, K: k, Threshold: math.NaN()}

	switch {
	case b.Count < MinHistory:
		res.Reason = ReasonNotEnoughHistory
	case !b.Defined():
		res.Reason = ReasonFlatBaseline
	default:
		res.Threshold = b.Threshold(k)
		res.Spike = value > res.Threshold
		res.Reason = ReasonWithinBaseline
		if res.Spike {
			res.Reason = ReasonSpike
		}
	}
	return res
}

// Detector evaluates one metric grouped by Dimensions.
type Detector struct {
	Dimensions []schema.Field
	Metric     schema.Field
	K          float64
}

// Validate checks the detector configuration.
func (d Detector) Validate() error {
	if d.Metric == "" {
		return fmt.Errorf("spike detector metric not configured")
	}
	if d.K < 0 || math.IsNaN(d.K) {
		return fmt.Errorf("spike sensitivity k must be non-negative, got %v", d.K)
	}
	return nil
}

// EvaluateDay evaluates every key on date, using all of the key's other days as
// history. Keys without an observation on date are reported with
// ReasonNoObservationDays so the caller can see them.
func (d Detector) EvaluateDay(records []dataset.Record, date time.Time) ([]Result, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	series := aggregate.Daily(records, d.Dimensions, d.Metric)
	out := make([]Result, 0, len(series))
	for _, s := range series {
		out = append(out, d.evaluatePoint(s, date))
	}
	return out, nil
}

// Scan evaluates every (key, day) point, each against the key's remaining days.
func (d Detector) Scan(records []dataset.Record) ([]Result, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var out []Result
	for _, s := range aggregate.Daily(records, d.Dimensions, d.Metric) {
		for _, p := range s.Points {
			out = append(out, d.evaluatePoint(s, p.Date))
		}
	}
	return out, nil
}

func (d Detector) evaluatePoint(s aggregate.Series, date time.Time) Result {
	history := make([]float64, 0, len(s.Points))
	value, found := 0.0, false
	for _, p := range s.Points {
		if p.Date.Equal(date) {
			value, found = p.Value, true
			continue
		}
		history = append(history, p.Value)
	}

	var res Result
	if found {
		res = Evaluate(value, history, d.K)
	} else {
		res = Result{Baseline: NewBaseline(history), K: d.K, Threshold: math.NaN(), Reason: ReasonNoObservationDays}
	}
	res.Key = s.Key
	res.Metric = d.Metric
	res.Date = date
	return res
}

// Spikes filters results down to flagged entries.
func Spikes(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Spike {
			out = append(out, r)
		}
	}
	return out
}

// MarshalJSON writes undefined statistics as null.
func (b Baseline) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mean   *float64 `json:"mean"`
		StdDev *float64 `json:"stddev"`
		Count  int      `json:"count"`
	}{nullable(b.Mean), nullable(b.StdDev), b.Count})
}

// MarshalJSON writes an undefined threshold as null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Threshold *float64 `json:"threshold"`
	}{plain(r), nullable(r.Threshold)})
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
