// pkg/backoff/backoff_test.go
package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/backoff"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	cfg := backoff.Config{MaxElapsedTime: time.Second}
	called := 0
	err := backoff.Execute(context.Background(), "test", cfg, logger.NewNop(), func(ctx context.Context) error {
		called++
		return nil
	})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
}

func TestExecute_EventualSuccess(t *testing.T) {
	cfg := backoff.Config{InitialInterval: time.Millisecond, Multiplier: 1, MaxElapsedTime: time.Second}
	called := 0
	err := backoff.Execute(context.Background(), "test", cfg, logger.NewNop(), func(ctx context.Context) error {
		called++
		if called < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if called != 3 {
		t.Errorf("expected 3 attempts, got %d", called)
	}
}

func TestExecute_PermanentStopsImmediately(t *testing.T) {
	cfg := backoff.Config{InitialInterval: time.Millisecond, MaxElapsedTime: time.Second}
	sentinel := errors.New("bad request")
	called := 0
	err := backoff.Execute(context.Background(), "test", cfg, logger.NewNop(), func(ctx context.Context) error {
		called++
		return backoff.Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
}

func TestExecute_MaxRetriesExceeded(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 5 * time.Millisecond, Multiplier: 1, MaxElapsedTime: 30 * time.Millisecond}
	called := 0
	err := backoff.Execute(context.Background(), "test", cfg, logger.NewNop(), func(ctx context.Context) error {
		called++
		return errors.New("always fail")
	})
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if maxErr.Attempts != called {
		t.Errorf("attempts mismatch: ErrMaxRetries.Attempts=%d, actual=%d", maxErr.Attempts, called)
	}
}

func TestExecute_InvalidConfig(t *testing.T) {
	cfg := backoff.Config{RandomizationFactor: 2}
	err := backoff.Execute(context.Background(), "test", cfg, logger.NewNop(), func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for invalid randomization factor")
	}
}
