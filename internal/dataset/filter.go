package dataset

import (
	"sort"

	"revenue-action-center/internal/schema"
)

// FilterOptions select sellable rows for a cleaned export.
type FilterOptions struct {
	MinRPM     float64
	MinRevenue float64
	SortBy     schema.Field
}

// Filter keeps records with RPM above MinRPM and gross revenue above MinRevenue,
// ordered by SortBy then date. Records missing either metric are dropped. The
// receiver is not modified.
func (d *Dataset) Filter(opts FilterOptions) []Record {
	out := make([]Record, 0, len(d.Records))
	for _, r := range d.Records {
		rpm, ok := r.Metric(schema.FieldRPM)
		if !ok || rpm <= opts.MinRPM {
			continue
		}
		rev, ok := r.Metric(schema.FieldGrossRevenue)
		if !ok || rev <= opts.MinRevenue {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if opts.SortBy != "" {
			a, b := out[i].Dimensions[opts.SortBy], out[j].Dimensions[opts.SortBy]
			if a != b {
				return a < b
			}
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
