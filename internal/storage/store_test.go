package storage

import (
	"context"
	"errors"
	"testing"
)

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), Options{}); err == nil {
		t.Fatal("empty DSN should be rejected")
	}
}

func TestNewPoolRejectsMalformedDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), Options{DSN: "postgres://%zz"}); err == nil {
		t.Fatal("malformed DSN should be rejected")
	}
}

func TestNilStoreNotConfigured(t *testing.T) {
	var s *Store
	if _, _, err := s.TryAdvisoryLock(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}
