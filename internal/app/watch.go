package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/scheduler"
	"revenue-action-center/internal/service"
)

// NotifyOptions configure a one-shot digest.
type NotifyOptions struct {
	AnalyzeOptions
	// Force sends the digest even when nothing is actionable.
	Force bool
}

// Notify runs the analyses once and pushes the digest.
func (a *App) Notify(ctx context.Context, opts NotifyOptions) error {
	report, err := a.Evaluate(ctx, opts.Source, opts.Overrides)
	if err != nil {
		return err
	}
	note, err := service.BuildNotification(report, a.digestOptions())
	if err != nil {
		return err
	}
	if !opts.Force && a.Config.Alerting.OnlyActionable && !note.Actionable() {
		a.Logger.Info().Str("run_id", report.RunID).Msg("nothing actionable, digest not sent")
		return nil
	}
	return a.newNotifier().Notify(ctx, note)
}

// WatchOptions configure the watch loop.
type WatchOptions struct {
	AnalyzeOptions
	// Once runs a single tick and exits.
	Once bool
}

// Watch re-evaluates the feed on the configured interval until interrupted.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engOpts, err := a.EngineOptions(opts.Overrides)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
		MaxRuns:        onceRuns(opts.Once),
	}, a.Logger)
	if err != nil {
		return err
	}

	source := func(ctx context.Context) (*dataset.Dataset, error) {
		return a.load(ctx, opts.Source, engOpts, store)
	}

	var locker service.Locker
	if store != nil {
		locker = store
	}
	if !a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("alerting.enabled is false; digests are logged only")
	}
	notifier := a.newNotifier()

	svc := service.New(service.Options{
		Engine:         engOpts,
		Digest:         a.digestOptions(),
		OnlyActionable: a.Config.Alerting.OnlyActionable,
		LockKey:        a.Config.Scheduler.AdvisoryLockKey,
	}, sched, source, engine.New(a.Logger), notifier, locker, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch service stopped")
	return nil
}

func onceRuns(once bool) int {
	if once {
		return 1
	}
	return 0
}
