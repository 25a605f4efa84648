// Package timeutil provides a testable abstraction over wall-clock time
// for replay pacing.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() if the context ended the wait.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Sleep blocks for d, returning early if ctx is cancelled.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MockClock is a manually controlled clock for testing. Sleep advances
// the clock instead of blocking.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the mock clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep records d and advances the clock by it. A done context wins.
func (c *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	return nil
}

// Sleeps returns all recorded sleep durations.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.sleeps))
	copy(result, c.sleeps)
	return result
}

// Pacer maps stream timestamps (seconds) onto wall-clock deadlines so a
// recorded stream can be replayed at its original rate. The first Wait
// anchors the stream origin to the current wall time.
type Pacer struct {
	clock Clock
	speed float64

	anchored bool
	wall0    time.Time
	stream0  float64
}

// NewPacer returns a Pacer on clock. speed scales playback: 2 plays twice
// as fast. A non-positive speed is treated as 1.
func NewPacer(clock Clock, speed float64) *Pacer {
	if speed <= 0 {
		speed = 1
	}
	return &Pacer{clock: clock, speed: speed}
}

// Wait blocks until the wall-clock time corresponding to ts.
func (p *Pacer) Wait(ctx context.Context, ts float64) error {
	if !p.anchored {
		p.anchored = true
		p.wall0 = p.clock.Now()
		p.stream0 = ts
		return ctx.Err()
	}
	offset := time.Duration((ts - p.stream0) / p.speed * float64(time.Second))
	lag := offset - p.clock.Since(p.wall0)
	if lag <= 0 {
		return ctx.Err()
	}
	return p.clock.Sleep(ctx, lag)
}
