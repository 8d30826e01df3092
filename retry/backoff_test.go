package retry

import (
	"testing"
	"time"
)

func TestExponentialBackoffGrowth(t *testing.T) {
	backoff := NewExponentialBackoff(time.Second, 15*time.Minute, 2, time.Second)
	backoff.Rand = func() float64 { return 0 }

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tc := range cases {
		if got := backoff.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialBackoffCapped(t *testing.T) {
	backoff := NewExponentialBackoff(time.Second, 15*time.Minute, 2, time.Second)
	backoff.Rand = func() float64 { return 0 }

	if got := backoff.Delay(30); got != 15*time.Minute {
		t.Fatalf("expected cap at 15m, got %s", got)
	}
	if got := backoff.Delay(500); got != 15*time.Minute {
		t.Fatalf("expected large attempts to stay capped, got %s", got)
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := NewExponentialBackoff(time.Second, 15*time.Minute, 2, time.Second)

	for i := 0; i < 200; i++ {
		got := backoff.Delay(2)
		if got < 2*time.Second || got >= 3*time.Second {
			t.Fatalf("jittered delay %s outside [2s, 3s)", got)
		}
	}
}

func TestExponentialBackoffJitterAppliesAtCap(t *testing.T) {
	backoff := NewExponentialBackoff(time.Second, 15*time.Minute, 2, time.Second)
	backoff.Rand = func() float64 { return 0.5 }

	want := 15*time.Minute + 500*time.Millisecond
	if got := backoff.Delay(30); got != want {
		t.Fatalf("expected jitter on top of cap, want %s got %s", want, got)
	}
}

func TestExponentialBackoffMonotonicWithoutJitter(t *testing.T) {
	backoff := NewExponentialBackoff(1500*time.Millisecond, 10*time.Minute, 1.7, 0)

	previous := time.Duration(0)
	for attempt := 1; attempt <= 40; attempt++ {
		got := backoff.Delay(attempt)
		if got < previous {
			t.Fatalf("delay regressed at attempt %d: %s < %s", attempt, got, previous)
		}
		if got > 10*time.Minute {
			t.Fatalf("delay %s exceeds cap", got)
		}
		previous = got
	}
}

func TestExponentialBackoffClampsAttempt(t *testing.T) {
	backoff := NewExponentialBackoff(time.Second, time.Minute, 2, 0)

	if got := backoff.Delay(0); got != time.Second {
		t.Fatalf("expected attempt 0 treated as first attempt, got %s", got)
	}
	if got := backoff.Delay(-3); got != time.Second {
		t.Fatalf("expected negative attempt treated as first attempt, got %s", got)
	}
}
