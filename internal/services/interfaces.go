package services

import (
	"context"
	"time"

	"focuswatch/internal/types"
)

// Collector supplies foreground usage readings. Implementations may return
// empty results on unavailability; callers never treat that as fatal.
type Collector interface {
	UsageSince(ctx context.Context, since time.Time) ([]types.UsageSample, error)
	CurrentForegroundApp(ctx context.Context) (*types.ForegroundApp, error)
	PermissionGranted(ctx context.Context) bool
}

// Notifier delivers a single alert. Delivery is best-effort; errors are
// logged and swallowed by the caller.
type Notifier interface {
	Send(title, body string, intensity types.Intensity) error
}

// Clock abstracts wall-clock access so midnight-crossing behavior can be
// tested deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real-time Clock implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
