package backoff

import (
	"testing"
	"time"
)

func TestExponential_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{6, 3200 * time.Millisecond},
		{7, 5 * time.Second}, // capped at max
		{8, 5 * time.Second}, // capped at max
	}

	for _, tt := range tests {
		got := Exponential(tt.attempt, nil)
		if got != tt.want {
			t.Errorf("Exponential(%d, nil) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_ZeroOrNegativeAttempt(t *testing.T) {
	t.Parallel()

	if got := Exponential(0, nil); got != 100*time.Millisecond {
		t.Errorf("Exponential(0, nil) = %v, want 100ms", got)
	}
	if got := Exponential(-1, nil); got != 100*time.Millisecond {
		t.Errorf("Exponential(-1, nil) = %v, want 100ms", got)
	}
}

func TestExponential_CustomFactor(t *testing.T) {
	t.Parallel()

	cfg := &Config{Initial: time.Second, Max: 3 * time.Second, Factor: 1.5}
	if got := Exponential(2, cfg); got != 1500*time.Millisecond {
		t.Errorf("Exponential(2) = %v, want 1.5s", got)
	}
	if got := Exponential(5, cfg); got != 3*time.Second {
		t.Errorf("Exponential(5) = %v, want 3s (capped)", got)
	}
}

func TestPolicy_PollingSequence(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{
		Initial: 2500 * time.Millisecond,
		Max:     15 * time.Second,
		Factor:  1.7,
	})

	want := []time.Duration{
		2500 * time.Millisecond,
		4250 * time.Millisecond,
		7225 * time.Millisecond,
		12282 * time.Millisecond,
		15 * time.Second,
		15 * time.Second,
	}
	for i, w := range want {
		if got := p.Next(); got != w {
			t.Fatalf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}
}

func TestPolicy_MonotonicAndCapped(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{Initial: 10 * time.Millisecond, Max: time.Second, Factor: 1.3})
	prev := time.Duration(0)
	for i := 0; i < 100; i++ {
		d := p.Next()
		if d < prev {
			t.Fatalf("delay decreased at step %d: %v < %v", i, d, prev)
		}
		if d > time.Second {
			t.Fatalf("delay exceeded ceiling at step %d: %v", i, d)
		}
		prev = d
	}
	if prev != time.Second {
		t.Errorf("expected delay to reach ceiling, got %v", prev)
	}
}

func TestPolicy_Reset(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{Initial: time.Second, Max: 10 * time.Second, Factor: 2})
	p.Next()
	p.Next()
	if p.Current() != 4*time.Second {
		t.Fatalf("Current() = %v, want 4s", p.Current())
	}

	p.Reset()
	if p.Current() != time.Second {
		t.Errorf("Current() after Reset = %v, want 1s", p.Current())
	}
}

func TestPolicy_FloorAboveCeiling(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{Initial: 20 * time.Second, Max: 15 * time.Second, Factor: 1.7})
	if got := p.Next(); got != 15*time.Second {
		t.Errorf("Next() = %v, want ceiling 15s", got)
	}
}
