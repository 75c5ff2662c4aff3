// Package domaintest provides test doubles for the domain package.
package domaintest

import (
	"sync"
	"time"

	"github.com/kuo-hm/devdeck-backends/internal/domain"
)

// FakeClock is a deterministic clock for tests. It can advance on its own
// every time it is read, which lets a handler observe a fixed request
// duration without sleeping.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// NewSteppingClock creates a FakeClock that moves forward by step after
// each call to Now.
func NewSteppingClock(t time.Time, step time.Duration) *FakeClock {
	return &FakeClock{current: t, step: step}
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Advance moves the fake clock forward by the given duration.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set changes the fake clock to a specific time.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Ensure FakeClock implements domain.Clock at compile time.
var _ domain.Clock = (*FakeClock)(nil)
