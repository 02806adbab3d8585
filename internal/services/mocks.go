package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"focuswatch/internal/types"
)

// MockCollector implements Collector for testing
type MockCollector struct {
	mu         sync.Mutex
	samples    []types.UsageSample
	foreground *types.ForegroundApp
	permission bool
	failUsage  bool
	usageCalls int
}

// NewMockCollector creates a collector mock with permission granted
func NewMockCollector() *MockCollector {
	return &MockCollector{permission: true}
}

// SetSamples replaces the samples returned by UsageSince
func (c *MockCollector) SetSamples(samples ...types.UsageSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = samples
}

// SetForeground sets the current foreground app (nil means none)
func (c *MockCollector) SetForeground(app *types.ForegroundApp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.foreground = app
}

// SetFailUsage makes UsageSince return an error
func (c *MockCollector) SetFailUsage(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failUsage = fail
}

// UsageCalls reports how many times UsageSince ran
func (c *MockCollector) UsageCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usageCalls
}

// UsageSince implements Collector
func (c *MockCollector) UsageSince(ctx context.Context, since time.Time) ([]types.UsageSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usageCalls++
	if c.failUsage {
		return nil, fmt.Errorf("mock collector failure")
	}
	out := make([]types.UsageSample, len(c.samples))
	copy(out, c.samples)
	return out, nil
}

// CurrentForegroundApp implements Collector
func (c *MockCollector) CurrentForegroundApp(ctx context.Context) (*types.ForegroundApp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.foreground == nil {
		return nil, nil
	}
	out := *c.foreground
	return &out, nil
}

// PermissionGranted implements Collector
func (c *MockCollector) PermissionGranted(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	mu       sync.Mutex
	sends    []MockSend
	failSend bool
}

// MockSend records one delivery attempt
type MockSend struct {
	Title     string
	Body      string
	Intensity types.Intensity
}

// NewMockNotifier creates a notifier mock
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// SetFailSend makes Send return an error
func (n *MockNotifier) SetFailSend(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failSend = fail
}

// Send implements Notifier
func (n *MockNotifier) Send(title, body string, intensity types.Intensity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, MockSend{Title: title, Body: body, Intensity: intensity})
	if n.failSend {
		return fmt.Errorf("mock delivery failure")
	}
	return nil
}

// Sends returns a copy of all recorded delivery attempts
func (n *MockNotifier) Sends() []MockSend {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]MockSend, len(n.sends))
	copy(out, n.sends)
	return out
}

// FakeClock implements Clock with manually advanced time
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewFakeClock creates a clock frozen at the given instant
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now implements Clock
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After implements Clock; the returned channel fires once Advance moves the
// clock past the deadline
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	deadline := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{at: deadline, ch: ch})
	return ch
}

// Advance moves the clock forward and fires any elapsed waiters
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}
