package retry

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 60 * time.Second, Multiplier: 2.0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: 1 * time.Second},
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 5, want: 32 * time.Second},
		{attempt: 6, want: 60 * time.Second},
		{attempt: 100, want: 60 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_NonDecreasingWithoutJitter(t *testing.T) {
	b := Backoff{BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 1.5}

	prev := time.Duration(0)
	for attempt := 0; attempt < 30; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v is less than previous %v", attempt, d, prev)
		}
		if d > b.MaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds MaxDelay %v", attempt, d, b.MaxDelay)
		}
		prev = d
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 8 * time.Second, Multiplier: 2.0, Jitter: true}

	results := make(map[time.Duration]bool)
	for i := 0; i < 200; i++ {
		for attempt := 0; attempt < 6; attempt++ {
			d := b.Delay(attempt)
			if d < 0 {
				t.Fatalf("Delay(%d) = %v is negative", attempt, d)
			}
			if d > time.Duration(float64(b.MaxDelay)*1.25) {
				t.Fatalf("Delay(%d) = %v exceeds MaxDelay*1.25", attempt, d)
			}
			results[d] = true
		}
	}

	// Should have some variation (not all the same)
	if len(results) < 2 {
		t.Error("expected jitter to produce varied results")
	}
}

func TestBackoff_ZeroValues(t *testing.T) {
	if got := (Backoff{}).Delay(3); got != 0 {
		t.Errorf("expected zero delay for zero BaseDelay, got %v", got)
	}

	// Zero MaxDelay means uncapped
	b := Backoff{BaseDelay: time.Second, Multiplier: 10}
	if got := b.Delay(3); got != 1000*time.Second {
		t.Errorf("expected 1000s, got %v", got)
	}

	// Very large attempts must not overflow into negative durations
	if got := b.Delay(1000); got <= 0 {
		t.Errorf("expected positive delay for huge attempt, got %v", got)
	}
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()

	if b.BaseDelay != time.Second || b.MaxDelay != 60*time.Second || b.Multiplier != 2.0 || !b.Jitter {
		t.Errorf("unexpected default backoff %+v", b)
	}
}
