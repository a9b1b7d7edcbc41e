package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/UltimateTournament/backoff/v4"
)

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(fmt.Errorf("column %q: %w", "a", ErrNotFound)) {
		t.Fatal("wrapped taxonomy error should be permanent")
	}
	if IsPermanent(errors.New("connection reset")) {
		t.Fatal("plain error should not be permanent")
	}
	if IsPermanent(nil) {
		t.Fatal("nil is not permanent")
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5), func() error {
		calls++
		return fmt.Errorf("bad write: %w", ErrTypeMismatch)
	})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
