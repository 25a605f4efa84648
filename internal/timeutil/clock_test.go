package timeutil

import (
	"context"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_Sleep(t *testing.T) {
	clock := RealClock{}
	start := time.Now()
	if err := clock.Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Sleep() returned early")
	}
}

func TestRealClock_SleepCancelled(t *testing.T) {
	clock := RealClock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := clock.Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled Sleep() blocked")
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	_ = clock.Sleep(context.Background(), 2*time.Second)
	clock.Advance(time.Second)

	if got := clock.Since(start); got != 3*time.Second {
		t.Errorf("Since() = %v, want 3s", got)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 2*time.Second {
		t.Errorf("Sleeps() = %v, want [2s]", sleeps)
	}
}

func TestMockClock_SleepCancelled(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clock.Sleep(ctx, time.Second); err == nil {
		t.Error("expected error from cancelled context")
	}
	if len(clock.Sleeps()) != 0 {
		t.Error("cancelled sleep should not be recorded")
	}
}

func TestPacer_Wait(t *testing.T) {
	clock := NewMockClock(time.Unix(100, 0))
	p := NewPacer(clock, 1)
	ctx := context.Background()

	// First call anchors and never sleeps.
	if err := p.Wait(ctx, 5.0); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx, 5.25); err != nil {
		t.Fatal(err)
	}
	// Processing time already covers the next gap.
	clock.Advance(time.Second)
	if err := p.Wait(ctx, 5.5); err != nil {
		t.Fatal(err)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 250*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [250ms]", sleeps)
	}
}

func TestPacer_Speed(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	p := NewPacer(clock, 2)
	ctx := context.Background()

	_ = p.Wait(ctx, 0)
	_ = p.Wait(ctx, 1)

	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 500*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [500ms]", sleeps)
	}
	if NewPacer(clock, 0).speed != 1 {
		t.Error("non-positive speed should default to 1")
	}
}
