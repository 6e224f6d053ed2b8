package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/rank"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/signal"
)

// DigestOptions bound the length of a text digest.
type DigestOptions struct {
	// PerSection caps the lines listed under each heading.
	PerSection int
	// ActionableOnly drops the top-mover section.
	ActionableOnly bool
}

// Digest writes a plain-text summary of report: actions to take, spikes,
// revenue drops, top movers and anything that could not be computed.
func Digest(w io.Writer, report *engine.Report, opts DigestOptions) error {
	limit := opts.PerSection
	if limit <= 0 {
		limit = report.Options.TopK
	}
	b := &strings.Builder{}

	fmt.Fprintf(b, "Revenue Action Center report %s\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "Source: %s (%d rows loaded, %d excluded)\n", report.Source, report.Load.LoadedRows, report.Load.ExcludedRows)
	if report.PreviousWindow.Start.IsZero() {
		fmt.Fprintf(b, "Window: %s\n", report.LastWindow)
	} else {
		fmt.Fprintf(b, "Windows: %s vs %s\n", report.LastWindow, report.PreviousWindow)
	}
	fmt.Fprintf(b, "Keys: %d (%s)\n", len(report.Rows), labelCounts(report.Counts()))

	var block, investigate []signal.Row
	for _, r := range report.Rows {
		switch r.Classification.Action {
		case rules.ActionBlock:
			block = append(block, r)
		case rules.ActionInvestigate:
			investigate = append(investigate, r)
		}
	}
	actionSection(b, "Block", block, limit)
	actionSection(b, "Investigate", investigate, limit)

	if len(report.Spikes) > 0 {
		fmt.Fprintf(b, "\n%s spikes on %s (%d):\n", report.Options.SpikeMetric, report.SpikeDate.Format(time.DateOnly), len(report.Spikes))
		for i, s := range report.Spikes {
			if i == limit {
				fmt.Fprintf(b, "  ... %d more\n", len(report.Spikes)-limit)
				break
			}
			fmt.Fprintf(b, "  - %s: %.2f > %.2f (mean %.2f, stddev %.2f)\n",
				s.Key, s.Value, s.Threshold, s.Baseline.Mean, s.Baseline.StdDev)
		}
	}

	if len(report.DropAlerts) > 0 {
		fmt.Fprintf(b, "\nRevenue drops on %s (%d):\n", report.DropWindow, len(report.DropAlerts))
		for i, c := range report.DropAlerts {
			if i == limit {
				fmt.Fprintf(b, "  ... %d more\n", len(report.DropAlerts)-limit)
				break
			}
			fmt.Fprintf(b, "  - %s: %s vs %s (%s)\n", c.Key, Money(c.Last), Money(c.Previous), c.Percent.Label())
		}
	}

	if !opts.ActionableOnly {
		if movers := report.Top(rank.ViewRevenueDelta, limit); len(movers) > 0 {
			fmt.Fprintf(b, "\nTop movers by %s delta:\n", report.Options.TrendMetric)
			for _, r := range movers {
				fmt.Fprintf(b, "  - %s: %s -> %s (%s, %s)\n", r.Key,
					metric(r.Trend.Metric, r.Trend.Previous), metric(r.Trend.Metric, r.Trend.Last),
					metric(r.Trend.Metric, r.Trend.Delta), r.Trend.Percent.Label())
			}
		}
	}

	if len(report.Failures) > 0 {
		b.WriteString("\nNot computed:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(b, "  - %s: %s\n", f.Analysis, f.Message)
		}
	}
	if len(report.Load.Exclusions) > 0 {
		b.WriteString("\nUnparsed values:\n")
		for _, e := range report.Load.Exclusions {
			fmt.Fprintf(b, "  - %s\n", e.Error())
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func actionSection(b *strings.Builder, title string, rows []signal.Row, limit int) {
	if len(rows) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Classification.Label.Precedence() < rows[j].Classification.Label.Precedence()
	})
	fmt.Fprintf(b, "\n%s (%d):\n", title, len(rows))
	for i, r := range rows {
		if i == limit {
			fmt.Fprintf(b, "  ... %d more\n", len(rows)-limit)
			return
		}
		fmt.Fprintf(b, "  - %s: %s", r.Key, r.Classification.Label.Title())
		if len(r.Classification.Reasons) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(r.Classification.Reasons, "; "))
		}
		b.WriteString("\n")
	}
}

func labelCounts(counts map[rules.Label]int) string {
	parts := make([]string, 0, len(counts))
	for _, l := range rules.Labels {
		if n := counts[l]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", strings.ToLower(l.Title()), n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
