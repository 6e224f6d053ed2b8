package trend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NotApplicableLabel is how an undefined percentage is displayed.
const NotApplicableLabel = "N/A"

// Percent is a percentage change that may be undefined. The zero value is
// undefined, which is what a zero previous-window value produces. It is never
// coerced to 0% or 100%.
type Percent struct {
	value   float64
	defined bool
}

// NotApplicable is the undefined percentage.
var NotApplicable = Percent{}

// PercentOf wraps a finite value. NaN and infinities become NotApplicable.
func PercentOf(v float64) Percent {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotApplicable
	}
	return Percent{value: v, defined: true}
}

// PercentChange returns 100 × (last − previous) / previous.
func PercentChange(last, previous float64) Percent {
	if previous == 0 {
		return NotApplicable
	}
	return PercentOf(100 * (last - previous) / previous)
}

// Defined reports whether the percentage has a numeric value.
func (p Percent) Defined() bool { return p.defined }

// Value returns the percentage and whether it is defined.
func (p Percent) Value() (float64, bool) { return p.value, p.defined }

// Label is the display form used in tables and CSV: "-50.0%" or "N/A".
func (p Percent) Label() string {
	if !p.defined {
		return NotApplicableLabel
	}
	return strconv.FormatFloat(p.value, 'f', 1, 64) + "%"
}

func (p Percent) String() string { return p.Label() }

// Less orders defined values numerically and puts NotApplicable last.
func (p Percent) Less(other Percent) bool {
	switch {
	case !p.defined:
		return false
	case !other.defined:
		return true
	default:
		return p.value < other.value
	}
}

// MarshalJSON writes the number, or null when undefined.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.defined {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts a number, null, or the "N/A" label.
func (p *Percent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`"`+NotApplicableLabel+`"`)) {
		*p = NotApplicable
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("percent: %w", err)
	}
	*p = PercentOf(v)
	return nil
}
