package services

import (
	"sync"
	"time"

	"focuswatch/internal/types"
)

// AppTracker accumulates one monitored app's usage for the current day and
// remembers which thresholds have already produced an alert. Created when a
// package enters the monitored set, cleared at daily reset, destroyed when
// the package leaves the set.
type AppTracker struct {
	mu            sync.Mutex
	packageName   string
	appName       string
	totalTodayMs  int64
	lastCheckedAt time.Time
	notified      map[int]struct{}
}

// NewAppTracker creates a tracker seeded with the app's current cumulative
// usage. Seeding with the live value instead of zero prevents a false
// threshold fire the moment a package is registered.
func NewAppTracker(packageName, appName string, seedMs int64) *AppTracker {
	if seedMs < 0 {
		seedMs = 0
	}
	return &AppTracker{
		packageName:  packageName,
		appName:      appName,
		totalTodayMs: seedMs,
		notified:     make(map[int]struct{}),
	}
}

// PackageName returns the tracked package identifier.
func (t *AppTracker) PackageName() string { return t.packageName }

// AppName returns the tracked app's display name.
func (t *AppTracker) AppName() string { return t.appName }

// Update applies a collector sample. The sample only takes effect when its
// cumulative total exceeds the tracked total, which guards against stale and
// out-of-order readings. Returns the usage delta, or 0 when nothing changed.
func (t *AppTracker) Update(sample types.UsageSample) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastCheckedAt = sample.AsOf

	if sample.TotalForegroundMs <= t.totalTodayMs {
		return 0
	}

	delta := sample.TotalForegroundMs - t.totalTodayMs
	t.totalTodayMs = sample.TotalForegroundMs
	if sample.AppName != "" {
		t.appName = sample.AppName
	}
	return delta
}

// TotalTodayMs returns the accumulated usage for the current day.
func (t *AppTracker) TotalTodayMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalTodayMs
}

// ThresholdsCrossed returns the indices of thresholds the current total has
// crossed but which have not yet been notified, ascending by duration.
func (t *AppTracker) ThresholdsCrossed(thresholds []types.Threshold) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var crossed []int
	for i, th := range thresholds {
		if _, done := t.notified[i]; done {
			continue
		}
		if t.totalTodayMs >= th.Duration.Milliseconds() {
			crossed = append(crossed, i)
		}
	}
	return crossed
}

// MarkNotified records that the threshold at the given index has produced an
// alert today. The notified set only grows between resets.
func (t *AppTracker) MarkNotified(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notified[index] = struct{}{}
}

// NotifiedCount returns how many thresholds have fired today.
func (t *AppTracker) NotifiedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.notified)
}

// Reset zeroes the daily total and clears the notified set. The tracker
// itself survives the reset.
func (t *AppTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalTodayMs = 0
	t.notified = make(map[int]struct{})
	t.lastCheckedAt = time.Time{}
}
