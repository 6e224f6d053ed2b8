package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"revenue-action-center/internal/alerting"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/render"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/scheduler"
)

// SourceFunc loads a fresh dataset snapshot for one tick.
type SourceFunc func(ctx context.Context) (*dataset.Dataset, error)

// Locker guards a tick so only one replica evaluates and notifies.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Options tune what a tick notifies about.
type Options struct {
	Engine engine.Options
	Digest render.DigestOptions
	// OnlyActionable skips notifications with nothing to block, investigate,
	// spike or drop.
	OnlyActionable bool
	// LockKey selects the advisory lock; 0 disables locking.
	LockKey int64
}

// Service re-evaluates the feed on a schedule and pushes digests.
type Service struct {
	scheduler *scheduler.Scheduler
	source    SourceFunc
	engine    *engine.Engine
	notifier  alerting.Notifier
	locker    Locker
	logger    zerolog.Logger
	opts      Options

	sent            bool
	lastFingerprint string
}

// New constructs the watch service. locker may be nil.
func New(opts Options, sched *scheduler.Scheduler, source SourceFunc, eng *engine.Engine, notifier alerting.Notifier, locker Locker, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		source:    source,
		engine:    eng,
		notifier:  notifier,
		locker:    locker,
		logger:    logger.With().Str("component", "service").Logger(),
		opts:      opts,
	}
}

// Run begins the scheduled evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单次调度：加锁、分析、推送。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	report, err := s.Evaluate(ctx)
	if err != nil {
		return err
	}
	return s.notify(ctx, tick, report)
}

// Evaluate loads a snapshot and runs every analysis over it.
func (s *Service) Evaluate(ctx context.Context) (*engine.Report, error) {
	if s.source == nil || s.engine == nil {
		return nil, fmt.Errorf("service source not configured")
	}
	ds, err := s.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return s.engine.Run(ds, s.opts.Engine)
}

func (s *Service) notify(ctx context.Context, tick time.Time, report *engine.Report) error {
	if s.notifier == nil {
		return nil
	}
	note, err := BuildNotification(report, s.opts.Digest)
	if err != nil {
		return err
	}
	if s.opts.OnlyActionable && !note.Actionable() {
		s.logger.Info().Time("tick", tick).Str("run_id", report.RunID).Msg("nothing actionable, digest not sent")
		return nil
	}

	fp := Fingerprint(report)
	if s.sent && fp == s.lastFingerprint {
		s.logger.Info().Time("tick", tick).Str("run_id", report.RunID).Msg("findings unchanged since last digest, not sent")
		return nil
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("tick", tick).Msg("failed to dispatch digest")
		return nil
	}
	s.sent, s.lastFingerprint = true, fp
	return nil
}

// BuildNotification renders report into a notification.
func BuildNotification(report *engine.Report, opts render.DigestOptions) (alerting.Notification, error) {
	var body bytes.Buffer
	if err := render.Digest(&body, report, opts); err != nil {
		return alerting.Notification{}, fmt.Errorf("render digest: %w", err)
	}

	note := alerting.Notification{
		RunID:       report.RunID,
		Source:      report.Source,
		GeneratedAt: report.GeneratedAt,
		Spikes:      len(report.Spikes),
		Drops:       len(report.DropAlerts),
		Body:        body.String(),
	}
	for _, r := range report.Rows {
		switch r.Classification.Action {
		case rules.ActionBlock:
			note.Blocked++
		case rules.ActionInvestigate:
			note.Investigate++
		}
	}
	return note, nil
}

// Fingerprint summarises the actionable findings of report. Two reports with
// the same keys under the same labels, spikes and drops share a fingerprint.
func Fingerprint(report *engine.Report) string {
	parts := make([]string, 0, len(report.Rows)+len(report.Spikes)+len(report.DropAlerts))
	for _, r := range report.Rows {
		if r.Classification.Action != rules.ActionSafe {
			parts = append(parts, "label:"+r.Key.String()+"="+string(r.Classification.Label))
		}
	}
	for _, sp := range report.Spikes {
		parts = append(parts, "spike:"+sp.Key.String()+"@"+sp.Date.Format(time.DateOnly))
	}
	for _, c := range report.DropAlerts {
		parts = append(parts, "drop:"+c.Key.String()+"@"+report.DropWindow.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
