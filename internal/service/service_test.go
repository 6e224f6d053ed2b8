package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"revenue-action-center/internal/alerting"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/engine"
	"revenue-action-center/internal/feed"
	"revenue-action-center/internal/schema"
)

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.notes = append(r.notes, note)
	return nil
}

type fakeLocker struct {
	acquired bool
	calls    int
	released int
}

func (f *fakeLocker) TryAdvisoryLock(_ context.Context, _ int64) (func(), bool, error) {
	f.calls++
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.released++ }, true, nil
}

func source(t *testing.T, lastIVT float64) SourceFunc {
	t.Helper()
	lines := []string{"Date,Package,Gross Revenue,IVT (%),Margin (%)"}
	ivt := []float64{4, 5, 6, 5, 4, lastIVT}
	for i, v := range ivt {
		lines = append(lines, fmt.Sprintf("2024-05-0%d,P1,100,%v,35", i+1, v))
	}
	csv := strings.Join(lines, "\n") + "\n"

	return func(context.Context) (*dataset.Dataset, error) {
		table, err := feed.ReadCSV(strings.NewReader(csv), "feed.csv", feed.Options{})
		if err != nil {
			return nil, err
		}
		resolver, err := schema.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		return engine.Prepare(table, resolver, engine.DefaultOptions(), dataset.LoadOptions{})
	}
}

func newService(src SourceFunc, notifier alerting.Notifier, locker Locker, opts Options) *Service {
	opts.Engine = engine.DefaultOptions()
	return New(opts, nil, src, engine.New(zerolog.Nop()), notifier, locker, zerolog.Nop())
}

func TestProcessTickNotifiesOncePerFindingSet(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newService(source(t, 60), notifier, nil, Options{OnlyActionable: true})

	for i := 0; i < 2; i++ {
		if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected one digest for unchanged findings, got %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.Blocked != 1 || note.Spikes != 1 {
		t.Fatalf("unexpected counts: blocked=%d spikes=%d", note.Blocked, note.Spikes)
	}
	if !strings.Contains(note.Body, "P1") {
		t.Fatalf("digest should name the key, got %q", note.Body)
	}
}

func TestProcessTickSkipsQuietRuns(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newService(source(t, 5), notifier, nil, Options{OnlyActionable: true})

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("quiet run should not notify, got %d", len(notifier.notes))
	}
}

func TestProcessTickRespectsLock(t *testing.T) {
	notifier := &recordingNotifier{}
	locker := &fakeLocker{}
	svc := newService(source(t, 60), notifier, locker, Options{LockKey: 42})

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if locker.calls != 1 || len(notifier.notes) != 0 {
		t.Fatalf("locked tick should be skipped: calls=%d notes=%d", locker.calls, len(notifier.notes))
	}

	locker.acquired = true
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(notifier.notes) != 1 || locker.released != 1 {
		t.Fatalf("expected notify and release: notes=%d released=%d", len(notifier.notes), locker.released)
	}
}

func TestProcessTickNotifierFailureRetriesNextTick(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("boom")}
	svc := newService(source(t, 60), notifier, nil, Options{})

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("notifier failure should not fail the tick: %v", err)
	}
	notifier.err = nil
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("failed digest should be retried, got %d", len(notifier.notes))
	}
}

func TestProcessTickSourceError(t *testing.T) {
	failing := func(context.Context) (*dataset.Dataset, error) { return nil, errors.New("unreachable") }
	svc := newService(failing, &recordingNotifier{}, nil, Options{})

	err := svc.ProcessTick(context.Background(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "load dataset") {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestRunRequiresScheduler(t *testing.T) {
	svc := newService(source(t, 5), nil, nil, Options{})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error without scheduler")
	}
}
