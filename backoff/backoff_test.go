package backoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/Miminimi234/lawl/backoff"
)

func TestDelayExponential(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second}, // 64 capped at 60
		{8, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, tt := range tests {
		got := backoff.Delay(tt.attempt, 2, 60, 0)
		if got != tt.want {
			t.Errorf("Delay(%d, 2, 60, 0) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayNeverExceedsCapPlusJitter(t *testing.T) {
	const jitter = 600 * time.Millisecond
	for attempt := 1; attempt <= 50; attempt++ {
		d := backoff.Delay(attempt, 2, 60, jitter)
		floor := backoff.Delay(attempt, 2, 60, 0)
		if d < floor {
			t.Fatalf("attempt %d: delay %v below jitterless floor %v", attempt, d, floor)
		}
		if d >= floor+jitter {
			t.Fatalf("attempt %d: delay %v not in [%v, %v)", attempt, d, floor, floor+jitter)
		}
	}
}

func TestDelayConstantBase(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		if got := backoff.Delay(attempt, 1, 60, 0); got != time.Second {
			t.Errorf("Delay(%d, 1, 60, 0) = %v, want constant 1s", attempt, got)
		}
	}
}

func TestDelayClampsAttempt(t *testing.T) {
	if got := backoff.Delay(0, 2, 60, 0); got != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
	if got := backoff.Delay(-3, 2, 60, 0); got != time.Second {
		t.Errorf("Delay(-3) = %v, want 1s", got)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := backoff.Sleep(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("Sleep on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestSleepCompletes(t *testing.T) {
	if err := backoff.Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep = %v", err)
	}
}
