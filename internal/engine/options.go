package engine

import (
	"fmt"
	"math"

	"revenue-action-center/internal/anomaly"
	"revenue-action-center/internal/rank"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/trend"
)

// Options is everything a run depends on besides the dataset. Two runs with
// equal datasets and equal options produce equal reports, apart from RunID and
// GeneratedAt.
type Options struct {
	Dimensions  []schema.Field   `json:"dimensions"`
	WindowDays  int              `json:"window_days"`
	TrendMetric schema.Field     `json:"trend_metric"`
	SpikeMetric schema.Field     `json:"spike_metric"`
	SpikeK      float64          `json:"spike_k"`
	TopK        int              `json:"top_k"`
	Thresholds  rules.Thresholds `json:"thresholds"`
	Drop        trend.DropRule   `json:"drop"`
}

// DefaultOptions groups by package and compares three-day windows.
func DefaultOptions() Options {
	return Options{
		Dimensions:  []schema.Field{schema.FieldPackage},
		WindowDays:  trend.DefaultWindowDays,
		TrendMetric: schema.FieldGrossRevenue,
		SpikeMetric: schema.FieldIVTRate,
		SpikeK:      anomaly.DefaultK,
		TopK:        rank.DefaultTopK,
		Thresholds:  rules.DefaultThresholds(),
		Drop:        trend.DefaultDropRule,
	}
}

// Validate rejects options no analysis could run with.
func (o Options) Validate() error {
	if len(o.Dimensions) == 0 {
		return fmt.Errorf("at least one dimension is required")
	}
	for _, f := range o.Dimensions {
		if schema.KindOf(f) != schema.KindDimension {
			return fmt.Errorf("%s is not a dimension field", f)
		}
	}
	if o.WindowDays <= 0 {
		return fmt.Errorf("window_days must be greater than zero, got %d", o.WindowDays)
	}
	if !schema.IsMetric(o.TrendMetric) {
		return fmt.Errorf("trend metric %q is not a metric field", o.TrendMetric)
	}
	if !schema.IsMetric(o.SpikeMetric) {
		return fmt.Errorf("spike metric %q is not a metric field", o.SpikeMetric)
	}
	if o.SpikeK < 0 || math.IsNaN(o.SpikeK) {
		return fmt.Errorf("spike_k must be non-negative, got %v", o.SpikeK)
	}
	if o.TopK <= 0 {
		return fmt.Errorf("top_k must be greater than zero, got %d", o.TopK)
	}
	if o.Drop.MinRevenue < 0 || o.Drop.Pct < 0 {
		return fmt.Errorf("drop thresholds cannot be negative")
	}
	return o.Thresholds.Validate()
}
