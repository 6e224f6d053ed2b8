package aggregate

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SingleDay returns the window covering only d.
func SingleDay(d time.Time) Window {
	return Window{Start: d, End: d}
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days returns the number of calendar days covered.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start)/day) + 1
}

func (w Window) String() string {
	if w.Start.Equal(w.End) {
		return w.Start.Format(time.DateOnly)
	}
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}

// InsufficientHistoryError is returned when the dataset spans too few distinct
// dates for the requested comparison.
type InsufficientHistoryError struct {
	Required  int
	Available int
	First     time.Time
	Last      time.Time
}

func (e *InsufficientHistoryError) Error() string {
	if e.Available == 0 {
		return fmt.Sprintf("need %d distinct dates, dataset has none", e.Required)
	}
	return fmt.Sprintf("need %d distinct dates, dataset has %d (%s)",
		e.Required, e.Available, Window{Start: e.First, End: e.Last})
}

// TrailingWindows splits the trailing 2·size distinct dates into two windows:
// last spans the most recent size dates and previous the size dates before
// them. Calendar gaps are skipped, so each window always holds exactly size
// observed dates. dates must be ascending and distinct.
func TrailingWindows(dates []time.Time, size int) (last, previous Window, err error) {
	if size <= 0 {
		return Window{}, Window{}, fmt.Errorf("window size must be positive, got %d", size)
	}
	if len(dates) < 2*size {
		e := &InsufficientHistoryError{Required: 2 * size, Available: len(dates)}
		if len(dates) > 0 {
			e.First, e.Last = dates[0], dates[len(dates)-1]
		}
		return Window{}, Window{}, e
	}

	n := len(dates)
	last = Window{Start: dates[n-size], End: dates[n-1]}
	previous = Window{Start: dates[n-2*size], End: dates[n-size-1]}
	return last, previous, nil
}

// LatestWindow spans the most recent size distinct dates, or all of them when
// fewer are available.
func LatestWindow(dates []time.Time, size int) Window {
	if len(dates) == 0 || size <= 0 {
		return Window{}
	}
	start := len(dates) - size
	if start < 0 {
		start = 0
	}
	return Window{Start: dates[start], End: dates[len(dates)-1]}
}
