package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"revenue-action-center/internal/alerting"
	"revenue-action-center/internal/config"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/feed"
	"revenue-action-center/internal/render"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/schema"
	"revenue-action-center/internal/storage"
	"revenue-action-center/internal/trend"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; stdout unless a test swaps it.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// SourceOptions override where the feed is read from for one invocation.
type SourceOptions struct {
	Input string
	Sheet string
	SQL   string
}

// Overrides adjust analysis parameters for one invocation. Nil pointers and
// zero ints keep the configured value.
type Overrides struct {
	WindowDays int
	TopK       int
	SpikeK     *float64

	IVT                    *float64
	Margin                 *float64
	CostPerBillionRequests *float64
	DiscrepancyPct         *float64
}

// EngineOptions merges configuration with per-call overrides.
func (a *App) EngineOptions(ov Overrides) (engine.Options, error) {
	cfg := a.Config
	opts := engine.Options{
		WindowDays:  cfg.Analysis.WindowDays,
		TrendMetric: schema.Field(cfg.Analysis.TrendMetric),
		SpikeMetric: schema.Field(cfg.Analysis.SpikeMetric),
		SpikeK:      cfg.Analysis.SpikeK,
		TopK:        cfg.ResolveTopK(ov.TopK),
		Thresholds: rules.Thresholds{
			IVT:                    cfg.Thresholds.IVT,
			IVTCritical:            cfg.Thresholds.IVTCritical,
			Margin:                 cfg.Thresholds.Margin,
			MarginCritical:         cfg.Thresholds.MarginCritical,
			CostPerBillionRequests: cfg.Thresholds.CostPerBillionRequests,
			DiscrepancyPct:         cfg.Thresholds.DiscrepancyPct,
		},
		Drop: trend.DropRule{MinRevenue: cfg.Thresholds.DropMinRevenue, Pct: cfg.Thresholds.DropPct},
	}
	for _, d := range cfg.Dataset.Dimensions {
		opts.Dimensions = append(opts.Dimensions, schema.Field(d))
	}

	if ov.WindowDays != 0 {
		opts.WindowDays = ov.WindowDays
	}
	if ov.SpikeK != nil {
		opts.SpikeK = *ov.SpikeK
	}
	if ov.IVT != nil {
		opts.Thresholds.IVT = *ov.IVT
	}
	if ov.Margin != nil {
		opts.Thresholds.Margin = *ov.Margin
	}
	if ov.CostPerBillionRequests != nil {
		opts.Thresholds.CostPerBillionRequests = *ov.CostPerBillionRequests
	}
	if ov.DiscrepancyPct != nil {
		opts.Thresholds.DiscrepancyPct = *ov.DiscrepancyPct
	}

	if err := opts.Validate(); err != nil {
		return engine.Options{}, err
	}
	return opts, nil
}

func (a *App) newResolver() (*schema.Resolver, error) {
	extra := make(map[schema.Field][]string, len(a.Config.Dataset.Synonyms))
	for field, names := range a.Config.Dataset.Synonyms {
		extra[schema.Field(field)] = names
	}
	return schema.NewResolver(extra)
}

// newNotifier returns the Telegram notifier when alerting is on, otherwise a
// notifier that writes digests to the log.
func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, storage.Options{
		DSN:             a.Config.Database.DSN,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) feedOptions(src SourceOptions) feed.Options {
	sheet := src.Sheet
	if sheet == "" {
		sheet = a.Config.Dataset.Sheet
	}
	return feed.Options{Sheet: sheet, MaxRows: a.Config.Dataset.MaxRows, MaxBytes: a.Config.Dataset.MaxBytes}
}

// readTable fetches the raw feed: a file when an input is given, otherwise the
// SQL query against database.dsn.
func (a *App) readTable(ctx context.Context, src SourceOptions, store *storage.Store) (*feed.Table, error) {
	input := src.Input
	if input == "" && src.SQL == "" {
		input = a.Config.Dataset.Input
	}
	if input != "" {
		return feed.Open(ctx, input, a.feedOptions(src))
	}

	query := src.SQL
	if query == "" {
		query = a.Config.Database.Query
	}
	if query == "" {
		return nil, fmt.Errorf("no feed configured: pass --input or --sql, or set dataset.input or database.query")
	}
	if store == nil {
		return nil, fmt.Errorf("database.dsn not configured; cannot run sql feed")
	}
	pool, err := store.Pool()
	if err != nil {
		return nil, err
	}

	if a.Config.Database.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Database.QueryTimeout)
		defer cancel()
	}
	return feed.QueryTable(ctx, pool, query, a.feedOptions(src))
}

// Load reads and types the feed for opts.
func (a *App) Load(ctx context.Context, src SourceOptions, opts engine.Options) (*dataset.Dataset, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		defer closeStore()
	}
	return a.load(ctx, src, opts, store)
}

func (a *App) load(ctx context.Context, src SourceOptions, opts engine.Options, store *storage.Store) (*dataset.Dataset, error) {
	table, err := a.readTable(ctx, src, store)
	if err != nil {
		return nil, err
	}
	resolver, err := a.newResolver()
	if err != nil {
		return nil, err
	}
	ds, err := engine.Prepare(table, resolver, opts, dataset.LoadOptions{
		DateLayouts: a.Config.Dataset.DateLayouts,
		MaxRows:     a.Config.Dataset.MaxRows,
	})
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("source", ds.Source).
		Int("rows", ds.Report.LoadedRows).
		Int("excluded", ds.Report.ExcludedRows).
		Msg("feed loaded")
	return ds, nil
}

// Evaluate loads the feed and runs every analysis.
func (a *App) Evaluate(ctx context.Context, src SourceOptions, ov Overrides) (*engine.Report, error) {
	opts, err := a.EngineOptions(ov)
	if err != nil {
		return nil, err
	}
	ds, err := a.Load(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	return engine.New(a.Logger).Run(ds, opts)
}

func (a *App) digestOptions() render.DigestOptions {
	return render.DigestOptions{
		PerSection:     a.Config.Alerting.MaxLines,
		ActionableOnly: a.Config.Alerting.OnlyActionable,
	}
}
