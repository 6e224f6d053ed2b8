package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("zero interval should be rejected")
	}
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	now := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected aligned tick %s", got)
	}
	onBoundary := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	if got := s.nextTick(onBoundary); !got.Equal(onBoundary.Add(time.Hour)) {
		t.Fatalf("tick on boundary should move forward, got %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s, _ := New(Options{Interval: 90 * time.Second}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 10, 20, 7, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(90 * time.Second)) {
		t.Fatalf("unexpected tick %s", got)
	}
}

func TestRunStopsAfterMaxRuns(t *testing.T) {
	s, _ := New(Options{Interval: 10 * time.Millisecond, RunImmediately: true, MaxRuns: 3}, zerolog.Nop())

	calls := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx, func(context.Context, time.Time) error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run should finish cleanly after MaxRuns: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 ticks, got %d", calls)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	s, _ := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick should not run")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
