// Package render writes engine reports for people and downstream tools: aligned
// tables, CSV, JSON, a plain-text digest, and PNG charts.
package render

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/signal"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatText  Format = "text"
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV, FormatText:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json, csv or text)", s)
	}
}

// Money renders whole dollars with thousands separators: "$1,234", "-$1,234".
func Money(v float64) string {
	return MoneyDecimal(decimal.NewFromFloat(v))
}

// MoneyDecimal is Money for decimal amounts.
func MoneyDecimal(d decimal.Decimal) string {
	whole := d.Round(0)
	if whole.IsNegative() {
		return "-$" + humanize.Comma(whole.Neg().IntPart())
	}
	return "$" + humanize.Comma(whole.IntPart())
}

// Count renders an integer-valued volume with separators.
func Count(v float64) string {
	return humanize.Comma(decimal.NewFromFloat(v).Round(0).IntPart())
}

// Rate renders a percentage-point value.
func Rate(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// value renders a window metric, "-" when it was not observed.
func value(a aggregate.Aggregate, f schema.Field) string {
	if !a.Has(f) {
		return "-"
	}
	return metric(f, a.Value(f))
}

func metric(f schema.Field, v float64) string {
	switch f {
	case schema.FieldGrossRevenue, schema.FieldRevenueCost:
		return Money(v)
	case schema.FieldPublisherImpressions, schema.FieldAdvertiserImpressions, schema.FieldRequests:
		return Count(v)
	case schema.FieldRPM, schema.FieldCPM:
		return fmt.Sprintf("%.4f", v)
	}
	if schema.KindOf(f) == schema.KindRate {
		return Rate(v)
	}
	return humanize.Commaf(v)
}

func net(r signal.Row) string {
	p := r.Classification.Profitability
	if p == nil {
		return "-"
	}
	return MoneyDecimal(p.Net)
}

func discrepancy(r signal.Row) string {
	if r.Classification.Discrepancy == nil {
		return "-"
	}
	return Rate(*r.Classification.Discrepancy)
}

func spike(r signal.Row) string {
	switch {
	case r.Spike == nil:
		return "-"
	case r.Spike.Spike:
		return "yes"
	default:
		return "no"
	}
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
