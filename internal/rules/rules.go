// Package rules classifies a key's metrics against operator thresholds.
//
// Every rule is evaluated independently; the returned label is the fired rule
// with the highest precedence:
//
//	Critical > HighInvalidTraffic > LowMargin > UnprofitableAfterCost > ImpressionDiscrepancy > OK
//
// A rule whose inputs are absent does not fire.
package rules

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/schema"
)

var billion = decimal.NewFromInt(1_000_000_000)

// Thresholds parameterise every rule. Percent values are in percentage points.
type Thresholds struct {
	IVT                    float64 `json:"ivt"`
	IVTCritical            float64 `json:"ivt_critical"`
	Margin                 float64 `json:"margin"`
	MarginCritical         float64 `json:"margin_critical"`
	CostPerBillionRequests float64 `json:"cost_per_billion_requests"`
	DiscrepancyPct         float64 `json:"discrepancy_pct"`
}

// DefaultThresholds returns the thresholds used by the dashboards.
func DefaultThresholds() Thresholds {
	return Thresholds{
		IVT:                    10,
		IVTCritical:            10,
		Margin:                 20,
		MarginCritical:         20,
		CostPerBillionRequests: 200,
		DiscrepancyPct:         30,
	}
}

// Validate rejects negative or non-finite thresholds.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"ivt":                       t.IVT,
		"ivt_critical":              t.IVTCritical,
		"margin":                    t.Margin,
		"margin_critical":           t.MarginCritical,
		"cost_per_billion_requests": t.CostPerBillionRequests,
		"discrepancy_pct":           t.DiscrepancyPct,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold %s must be a non-negative number, got %v", name, v)
		}
	}
	return nil
}

// Metrics is the input of Classify. Values holds only the metrics that were
// observed; a missing entry is not the same as zero.
type Metrics struct {
	Values      map[schema.Field]float64
	Impressions aggregate.ImpressionBasis
}

// FromAggregate takes the observed metrics of a window aggregate.
func FromAggregate(a aggregate.Aggregate) Metrics {
	m := Metrics{Values: make(map[schema.Field]float64, len(a.Values)), Impressions: a.Impressions}
	for f, v := range a.Values {
		if a.Has(f) {
			m.Values[f] = v
		}
	}
	return m
}

func (m Metrics) get(f schema.Field) (float64, bool) {
	v, ok := m.Values[f]
	return v, ok
}

// Classification is the audit trail of one Classify call.
type Classification struct {
	Label   Label    `json:"label"`
	Action  Action   `json:"action"`
	Fired   []Label  `json:"fired,omitempty"`
	Reasons []string `json:"reasons,omitempty"`

	// Profitability is set when gross revenue and requests were observed.
	Profitability *Profitability `json:"profitability,omitempty"`
	// Discrepancy is |1 − publisher/advertiser| in percent, nil when no row had
	// advertiser impressions.
	Discrepancy *float64 `json:"discrepancy_pct,omitempty"`
}

// Has reports whether label fired, whether or not it won.
func (c Classification) Has(label Label) bool {
	for _, l := range c.Fired {
		if l == label {
			return true
		}
	}
	return false
}

// Loss is the magnitude of a negative net revenue after serving cost, 0 when
// the key is profitable or profitability is unknown.
func (c Classification) Loss() float64 {
	if c.Profitability == nil || !c.Profitability.Net.IsNegative() {
		return 0
	}
	return c.Profitability.Net.Abs().InexactFloat64()
}

// Profitability is revenue net of revenue cost and modelled serving cost.
type Profitability struct {
	Gross       decimal.Decimal `json:"gross"`
	RevenueCost decimal.Decimal `json:"revenue_cost"`
	ServingCost decimal.Decimal `json:"serving_cost"`
	Net         decimal.Decimal `json:"net"`
}

// ServingCost models infrastructure cost as a linear function of requests.
func ServingCost(requests, costPerBillion float64) decimal.Decimal {
	return decimal.NewFromFloat(requests).Div(billion).Mul(decimal.NewFromFloat(costPerBillion))
}

// NetAfterCost computes gross − revenue cost − serving cost.
func NetAfterCost(gross, revenueCost, requests, costPerBillion float64) Profitability {
	p := Profitability{
		Gross:       decimal.NewFromFloat(gross),
		RevenueCost: decimal.NewFromFloat(revenueCost),
		ServingCost: ServingCost(requests, costPerBillion),
	}
	p.Net = p.Gross.Sub(p.RevenueCost).Sub(p.ServingCost)
	return p
}

// Classify applies every rule to m and returns the highest-precedence label.
func Classify(m Metrics, t Thresholds) Classification {
	var c Classification
	fire := func(l Label, format string, args ...any) {
		c.Fired = append(c.Fired, l)
		c.Reasons = append(c.Reasons, fmt.Sprintf(format, args...))
	}

	ivt, hasIVT := m.get(schema.FieldIVTRate)
	margin, hasMargin := m.get(schema.FieldMargin)

	if hasIVT && hasMargin && ivt > t.IVTCritical && margin < t.MarginCritical {
		fire(LabelCritical, "ivt %.2f%% > %.2f%% and margin %.2f%% < %.2f%%", ivt, t.IVTCritical, margin, t.MarginCritical)
	}
	if hasIVT && ivt > t.IVT {
		fire(LabelHighInvalidTraffic, "ivt %.2f%% > %.2f%%", ivt, t.IVT)
	}
	if hasMargin && margin < t.Margin {
		fire(LabelLowMargin, "margin %.2f%% < %.2f%%", margin, t.Margin)
	}

	gross, hasGross := m.get(schema.FieldGrossRevenue)
	requests, hasRequests := m.get(schema.FieldRequests)
	if hasGross && hasRequests {
		cost, _ := m.get(schema.FieldRevenueCost)
		p := NetAfterCost(gross, cost, requests, t.CostPerBillionRequests)
		c.Profitability = &p
		if p.Net.IsNegative() {
			fire(LabelUnprofitableAfterCost, "net after serving cost %s < 0", p.Net.StringFixed(2))
		}
	}

	if imp := m.Impressions; imp.Rows > 0 && imp.Advertiser > 0 {
		d := math.Abs(1-imp.Publisher/imp.Advertiser) * 100
		c.Discrepancy = &d
		if d > t.DiscrepancyPct {
			fire(LabelImpressionDiscrepancy, "impression discrepancy %.2f%% > %.2f%%", d, t.DiscrepancyPct)
		}
	}

	c.Label = LabelOK
	for _, l := range c.Fired {
		if l.Precedence() < c.Label.Precedence() {
			c.Label = l
		}
	}
	c.Action = c.Label.Action()
	return c
}
