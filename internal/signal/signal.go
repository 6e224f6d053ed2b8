// Package signal defines the per-key output row shared by ranking and
// rendering.
package signal

import (
	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/anomaly"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/trend"
)

// Row is everything the engine knows about one dimension key.
type Row struct {
	Key            dataset.Key          `json:"key"`
	Last           aggregate.Aggregate  `json:"last"`
	Previous       aggregate.Aggregate  `json:"previous"`
	Classification rules.Classification `json:"classification"`

	// Trend is nil when the window comparison could not run.
	Trend *trend.Comparison `json:"trend,omitempty"`
	// Spike is the latest-day evaluation, nil when spike detection did not run
	// or the key had no observation that day.
	Spike *anomaly.Result `json:"spike,omitempty"`
}

// IVT returns the last-window invalid-traffic rate when it was observed.
func (r Row) IVT() (float64, bool) {
	if !r.Last.Has(schema.FieldIVTRate) {
		return 0, false
	}
	return r.Last.Value(schema.FieldIVTRate), true
}

// LastValue is the last-window value of the trend metric, 0 without a trend.
func (r Row) LastValue() float64 {
	if r.Trend == nil {
		return 0
	}
	return r.Trend.Last
}

// Loss is the last-window loss after serving cost.
func (r Row) Loss() float64 {
	return r.Classification.Loss()
}

// Spiking reports whether the key spiked on the latest day.
func (r Row) Spiking() bool {
	return r.Spike != nil && r.Spike.Spike
}

// Actionable reports whether the row needs operator attention.
func (r Row) Actionable() bool {
	return r.Classification.Action != rules.ActionSafe || r.Spiking()
}
