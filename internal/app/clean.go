package app

import (
	"context"
	"fmt"

	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/render"
	"revenue-action-center/internal/schema"
)

// CleanOptions select sellable rows. Nil pointers keep the configured values.
type CleanOptions struct {
	Source     SourceOptions
	Format     string
	MinRPM     *float64
	MinRevenue *float64
	SortBy     string
}

// Clean prints the feed filtered to rows above the RPM and revenue floors.
func (a *App) Clean(ctx context.Context, opts CleanOptions) error {
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	filter := dataset.FilterOptions{
		MinRPM:     a.Config.Clean.MinRPM,
		MinRevenue: a.Config.Clean.MinRevenue,
		SortBy:     schema.Field(a.Config.Clean.SortBy),
	}
	if opts.MinRPM != nil {
		filter.MinRPM = *opts.MinRPM
	}
	if opts.MinRevenue != nil {
		filter.MinRevenue = *opts.MinRevenue
	}
	if opts.SortBy != "" {
		filter.SortBy = schema.Field(opts.SortBy)
	}
	if filter.SortBy != "" && schema.KindOf(filter.SortBy) != schema.KindDimension {
		return fmt.Errorf("sort field %q is not a dimension", filter.SortBy)
	}

	engOpts, err := a.EngineOptions(Overrides{})
	if err != nil {
		return err
	}
	if filter.SortBy != "" && !containsField(engOpts.Dimensions, filter.SortBy) {
		engOpts.Dimensions = append(engOpts.Dimensions, filter.SortBy)
	}
	ds, err := a.Load(ctx, opts.Source, engOpts)
	if err != nil {
		return err
	}
	if !ds.HasMetric(schema.FieldRPM) {
		return &schema.MissingFieldError{Fields: []schema.Field{schema.FieldRPM}}
	}

	records := ds.Filter(filter)
	a.Logger.Info().Int("kept", len(records)).Int("total", len(ds.Records)).
		Float64("min_rpm", filter.MinRPM).
		Float64("min_revenue", filter.MinRevenue).
		Msg("feed filtered")

	switch format {
	case render.FormatJSON:
		if records == nil {
			records = []dataset.Record{}
		}
		return render.JSON(a.Out, records)
	case render.FormatCSV:
		return render.RecordsCSV(a.Out, records, engOpts.Dimensions, ds.Metrics)
	default:
		return render.RecordsTable(a.Out, records, engOpts.Dimensions, ds.Metrics)
	}
}

func containsField(fields []schema.Field, f schema.Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
