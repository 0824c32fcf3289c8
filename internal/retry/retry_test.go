package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloneai/cloneai/internal/log"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	cfg := Config{
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Jitter:    0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := Config{
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Jitter:    500 * time.Millisecond,
	}

	for range 100 {
		d := Backoff(1, cfg)
		if d < time.Second || d >= time.Second+500*time.Millisecond {
			t.Fatalf("Backoff(1) = %v, want [1s, 1.5s)", d)
		}
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), log.NewNop(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), log.NewNop(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDo_PermanentErrorAbortsImmediately(t *testing.T) {
	permanent := errors.New("invalid credentials")
	calls := 0
	err := Do(context.Background(), fastConfig(), log.NewNop(), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (permanent errors must not retry)", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("503 service unavailable")
	calls := 0
	err := Do(context.Background(), fastConfig(), log.NewNop(), func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("Do() error = %v, want wrapped %v", err, transient)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDo_ContextCancelAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Second, // long enough that only cancellation can end the sleep
		MaxDelay:    10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, log.NewNop(), func(context.Context) error {
			return errors.New("timeout")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after context cancellation")
	}
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"server error", errors.New("502 Bad Gateway"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"auth failure", errors.New("401 Unauthorized"), false},
		{"validation", errors.New("400 Bad Request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.want {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// fastConfig keeps retry tests quick.
func fastConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Jitter:      time.Millisecond,
	}
}
