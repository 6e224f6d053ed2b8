// Package rank orders engine rows into bounded top-K views. It only sorts and
// slices; nothing is recomputed.
package rank

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"revenue-action-center/internal/signal"
	"revenue-action-center/internal/trend"
)

// DefaultTopK is the view size when none is configured.
const DefaultTopK = 10

// View selects the ordering.
type View string

const (
	// ViewRevenueDelta orders by |delta| of the trend metric. Rows without a
	// trend are left out.
	ViewRevenueDelta View = "revenue-delta"
	// ViewIVT orders by last-window invalid-traffic rate, highest first. Rows
	// without an observed rate are left out.
	ViewIVT View = "ivt"
	// ViewLoss orders by loss after serving cost. Profitable rows are left out.
	ViewLoss View = "loss"
)

// Views lists the supported views.
var Views = []View{ViewRevenueDelta, ViewIVT, ViewLoss}

// ParseView accepts a view name, case-insensitively.
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Views {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q (want one of %v)", s, Views)
}

func (v View) score(r signal.Row) (float64, bool) {
	switch v {
	case ViewRevenueDelta:
		if r.Trend == nil {
			return 0, false
		}
		return math.Abs(r.Trend.Delta), true
	case ViewIVT:
		return r.IVT()
	case ViewLoss:
		loss := r.Loss()
		return loss, loss > 0
	default:
		return 0, false
	}
}

// Top returns up to k rows in view order. Equal scores fall back to descending
// |last value| and then the lexicographic key, so identical inputs always give
// identical output. k <= 0 returns every qualifying row. The input slice is not
// reordered.
func Top(rows []signal.Row, view View, k int) []signal.Row {
	type scored struct {
		row   signal.Row
		score float64
	}
	list := make([]scored, 0, len(rows))
	for _, r := range rows {
		if s, ok := view.score(r); ok {
			list = append(list, scored{row: r, score: s})
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		a, b := list[i].row, list[j].row
		return trend.TieBreak(a.Key, a.LastValue(), b.Key, b.LastValue())
	})
	if k > 0 && len(list) > k {
		list = list[:k]
	}
	out := make([]signal.Row, len(list))
	for i, s := range list {
		out[i] = s.row
	}
	return out
}
