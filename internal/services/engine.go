package services

import (
	"context"
	"strings"
	"sync"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/repository"
	"focuswatch/internal/types"
)

// EngineState names the monitoring engine's lifecycle states.
type EngineState int

const (
	EngineStopped EngineState = iota
	EnginePolling
	EnginePollingRealtime
)

// String returns the state name used in logs.
func (s EngineState) String() string {
	switch s {
	case EnginePolling:
		return "polling"
	case EnginePollingRealtime:
		return "polling+realtime"
	default:
		return "stopped"
	}
}

// MonitoringEngine owns the tick loop: it polls the collector, feeds per-app
// trackers, evaluates thresholds and hands due alerts to the dispatcher.
// Exactly one instance runs per process; ticks from the background timer and
// the realtime foreground signal are serialized through a single-flight
// guard.
type MonitoringEngine struct {
	collector  Collector
	repo       repository.UsageRepository
	dispatcher *NotificationDispatcher
	aggregator *ScoreAggregator
	bus        *EventBus
	clock      Clock
	logger     logging.Logger

	thresholds   []types.Threshold
	pollInterval time.Duration
	tickTimeout  time.Duration

	mu       sync.Mutex
	state    EngineState
	trackers map[string]*AppTracker
	stopCh   chan struct{}
	doneCh   chan struct{}
	kickCh   chan struct{}

	// tickMu is the single-flight guard; a tick in progress causes
	// concurrent triggers to drop, not queue
	tickMu       sync.Mutex
	lastForegrnd string
}

// NewMonitoringEngine wires an engine. Nil clock and logger get defaults;
// nil thresholds get the built-in table.
func NewMonitoringEngine(
	collector Collector,
	repo repository.UsageRepository,
	dispatcher *NotificationDispatcher,
	aggregator *ScoreAggregator,
	bus *EventBus,
	thresholds []types.Threshold,
	pollInterval, tickTimeout time.Duration,
	clock Clock,
	logger logging.Logger,
) *MonitoringEngine {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if len(thresholds) == 0 {
		thresholds = types.DefaultThresholds()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if tickTimeout <= 0 {
		tickTimeout = 10 * time.Second
	}
	return &MonitoringEngine{
		collector:    collector,
		repo:         repo,
		dispatcher:   dispatcher,
		aggregator:   aggregator,
		bus:          bus,
		clock:        clock,
		logger:       logger,
		thresholds:   thresholds,
		pollInterval: pollInterval,
		tickTimeout:  tickTimeout,
		trackers:     make(map[string]*AppTracker),
	}
}

// State returns the current lifecycle state.
func (e *MonitoringEngine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start transitions Stopped -> Polling and launches the background loop.
// Idempotent: calling on a running engine is a no-op.
func (e *MonitoringEngine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.state != EngineStopped {
		e.mu.Unlock()
		return
	}
	e.state = EnginePolling
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.kickCh = make(chan struct{}, 1)
	stopCh, doneCh, kickCh := e.stopCh, e.doneCh, e.kickCh
	e.mu.Unlock()

	if err := e.SyncMonitoredSet(ctx); err != nil {
		e.logger.Warn("Initial monitored set sync failed", "error", err)
	}

	e.logger.Info("Monitoring engine started", "state", e.State().String())
	go e.pollLoop(stopCh, doneCh, kickCh)
}

// EnableRealtime transitions Polling -> Polling+realtime. The realtime
// signal itself arrives through OnForegroundChange.
func (e *MonitoringEngine) EnableRealtime() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EnginePolling {
		e.state = EnginePollingRealtime
		e.logger.Info("Monitoring engine state changed", "state", e.state.String())
	}
}

// OnForegroundChange is the realtime trigger: the platform layer calls it
// when the foreground app changes, prompting an immediate tick. Dropped
// silently when the engine is not in the realtime state.
func (e *MonitoringEngine) OnForegroundChange() {
	e.mu.Lock()
	kickCh := e.kickCh
	active := e.state == EnginePollingRealtime
	e.mu.Unlock()

	if !active || kickCh == nil {
		return
	}
	select {
	case kickCh <- struct{}{}:
	default:
	}
}

// Stop cancels pending ticks and waits for the loop to exit. Idempotent.
// A tick already in flight completes; no further ones are scheduled.
func (e *MonitoringEngine) Stop() {
	e.mu.Lock()
	if e.state == EngineStopped {
		e.mu.Unlock()
		return
	}
	e.state = EngineStopped
	stopCh, doneCh := e.stopCh, e.doneCh
	e.stopCh, e.doneCh, e.kickCh = nil, nil, nil
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
	e.logger.Info("Monitoring engine stopped")
}

func (e *MonitoringEngine) pollLoop(stopCh, doneCh chan struct{}, kickCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Immediate first tick so a fresh start does not wait a full interval
	e.Tick(context.Background())

	for {
		select {
		case <-ticker.C:
			e.Tick(context.Background())
		case <-kickCh:
			e.Tick(context.Background())
		case <-stopCh:
			return
		}
	}
}

// Tick runs one usage check. Serialized: if another tick is in flight this
// call returns immediately. Never panics outward; any failure degrades to a
// logged no-op tick.
func (e *MonitoringEngine) Tick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		e.logger.Debug("Tick skipped, previous tick still in flight")
		return
	}
	defer e.tickMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Tick panicked, recovered", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.tickTimeout)
	defer cancel()

	if !e.notificationsAllowed(ctx) {
		e.logger.Debug("Tick skipped, notifications disabled or snoozed")
		return
	}

	priority := e.observeForeground(ctx)

	now := e.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	samples, err := e.collector.UsageSince(ctx, dayStart)
	if err != nil {
		storeErr := repoerrors.HandleUnavailableError("Tick", err.Error())
		logging.LogError(e.logger, storeErr, "Tick", nil)
		return
	}
	if len(samples) == 0 {
		// No data is a skipped tick, never a reset signal
		e.logger.Debug("Tick skipped, collector returned no usage data")
		return
	}

	byPackage := make(map[string]types.UsageSample, len(samples))
	for _, s := range samples {
		byPackage[s.PackageName] = s
	}

	// Check the current foreground app first so its alert lands promptly
	order := e.trackerOrder(priority)
	for _, pkg := range order {
		sample, ok := byPackage[pkg]
		if !ok {
			continue
		}
		e.checkPackage(ctx, pkg, sample, now)
	}
}

// checkPackage updates one tracker and dispatches at most one alert for it.
// Failures are contained to the package: a panic or error here never aborts
// the rest of the tick.
func (e *MonitoringEngine) checkPackage(ctx context.Context, pkg string, sample types.UsageSample, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Package check panicked, recovered", "package", pkg, "panic", r)
		}
	}()

	e.mu.Lock()
	tracker, ok := e.trackers[pkg]
	e.mu.Unlock()
	if !ok {
		return
	}

	delta := tracker.Update(sample)
	if delta <= 0 {
		return
	}

	row := types.RawUsageRow{
		Date:        now,
		PackageName: pkg,
		AppName:     tracker.AppName(),
		TotalMs:     tracker.TotalTodayMs(),
		UpdatedAt:   now,
	}
	if err := e.repo.UpsertRawUsage(ctx, row); err != nil {
		// In-memory state stays intact; persistence catches up next tick
		e.logger.Warn("Failed to persist raw usage", "package", pkg, "error", err)
	} else if e.aggregator != nil {
		e.aggregator.Invalidate(now)
	}

	crossed := tracker.ThresholdsCrossed(e.thresholds)
	if len(crossed) == 0 {
		return
	}

	// At most one notification per app per tick bounds burst size; the
	// earliest uncrossed threshold fires first
	idx := crossed[0]
	threshold := e.thresholds[idx]

	if e.dispatcher != nil {
		if _, err := e.dispatcher.TrySend(ctx, pkg, tracker.AppName(), threshold.Intensity, time.Duration(tracker.TotalTodayMs())*time.Millisecond); err != nil {
			// The cooldown state could not be read, so nothing was sent or
			// recorded. Leave the threshold unmarked and retry next tick
			// rather than losing the alert for the rest of the day
			e.logger.Warn("Dispatch attempt failed", "package", pkg, "error", err)
			return
		}
	}
	tracker.MarkNotified(idx)

	if e.bus != nil {
		e.bus.Publish(ThresholdCrossedEvent{
			PackageName: pkg,
			AppName:     tracker.AppName(),
			Intensity:   threshold.Intensity,
			At:          now,
		})
	}
}

// notificationsAllowed checks the global disable flag and the snooze window.
// Store failures default to allowed so a flaky store cannot silence alerts.
func (e *MonitoringEngine) notificationsAllowed(ctx context.Context) bool {
	enabled, err := e.repo.GetMeta(ctx, repository.MetaKeyNotificationsEnabled)
	if err == nil && enabled == "false" {
		return false
	}
	if err != nil && !repoerrors.IsNotFound(err) {
		e.logger.Debug("Could not read notifications flag", "error", err)
	}

	snooze, err := e.repo.GetMeta(ctx, repository.MetaKeySnoozeUntil)
	if err == nil && snooze != "" {
		if until, parseErr := time.Parse(time.RFC3339, snooze); parseErr == nil && e.clock.Now().Before(until) {
			return false
		}
	}
	return true
}

// observeForeground publishes a foreground-change event when the foreground
// app differs from the last observation, and returns the foreground package
// for priority checking. Best-effort: a collector failure returns "".
func (e *MonitoringEngine) observeForeground(ctx context.Context) string {
	fg, err := e.collector.CurrentForegroundApp(ctx)
	if err != nil || fg == nil {
		return ""
	}

	e.mu.Lock()
	changed := fg.PackageName != e.lastForegrnd
	e.lastForegrnd = fg.PackageName
	monitored := false
	if _, ok := e.trackers[fg.PackageName]; ok {
		monitored = true
	}
	e.mu.Unlock()

	if changed && e.bus != nil {
		e.bus.Publish(ForegroundChangedEvent{
			PackageName: fg.PackageName,
			AppName:     fg.AppName,
			At:          e.clock.Now(),
		})
	}

	if monitored {
		return fg.PackageName
	}
	return ""
}

// trackerOrder returns tracked packages with the priority package, when set,
// moved to the front.
func (e *MonitoringEngine) trackerOrder(priority string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := make([]string, 0, len(e.trackers))
	if priority != "" {
		if _, ok := e.trackers[priority]; ok {
			order = append(order, priority)
		}
	}
	for pkg := range e.trackers {
		if pkg != priority {
			order = append(order, pkg)
		}
	}
	return order
}

// SyncMonitoredSet reconciles trackers with the persisted monitored set:
// new packages get a tracker seeded with today's current cumulative usage,
// packages that left the set lose theirs.
func (e *MonitoringEngine) SyncMonitoredSet(ctx context.Context) error {
	monitored, err := e.repo.ListMonitoredPackages(ctx)
	if err != nil {
		return err
	}

	// Fallback serialized list when the structured source is empty
	if len(monitored) == 0 {
		serialized, metaErr := e.repo.GetMeta(ctx, repository.MetaKeyMonitoredFallback)
		if metaErr == nil {
			for _, pkg := range splitCSV(serialized) {
				monitored = append(monitored, types.MonitoredPackage{PackageName: pkg, AppName: pkg})
			}
		} else if !repoerrors.IsNotFound(metaErr) {
			e.logger.Warn("Could not read fallback monitored list", "error", metaErr)
		}
	}

	seeds := e.currentUsageByPackage(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	want := make(map[string]types.MonitoredPackage, len(monitored))
	for _, m := range monitored {
		want[m.PackageName] = m
	}

	for pkg := range e.trackers {
		if _, ok := want[pkg]; !ok {
			delete(e.trackers, pkg)
			e.logger.Info("Tracker destroyed, package left monitored set", "package", pkg)
		}
	}

	for pkg, m := range want {
		if _, ok := e.trackers[pkg]; ok {
			continue
		}
		e.trackers[pkg] = NewAppTracker(pkg, m.AppName, seeds[pkg])
		e.logger.Info("Tracker created", "package", pkg, "seed_ms", seeds[pkg])
	}

	return nil
}

// currentUsageByPackage resolves today's cumulative usage per package for
// tracker seeding, preferring the live collector and falling back to
// persisted raw rows.
func (e *MonitoringEngine) currentUsageByPackage(ctx context.Context) map[string]int64 {
	seeds := make(map[string]int64)

	now := e.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if samples, err := e.collector.UsageSince(ctx, dayStart); err == nil {
		for _, s := range samples {
			seeds[s.PackageName] = s.TotalForegroundMs
		}
	}

	if rows, err := e.repo.GetRawUsageByDate(ctx, now); err == nil {
		for _, row := range rows {
			if row.TotalMs > seeds[row.PackageName] {
				seeds[row.PackageName] = row.TotalMs
			}
		}
	}

	return seeds
}

// ResetTrackers clears every tracker's daily state. The trackers survive;
// only totals and notified thresholds are dropped.
func (e *MonitoringEngine) ResetTrackers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.trackers {
		t.Reset()
	}
	e.logger.Info("All trackers reset", "count", len(e.trackers))
}

// TrackerCount returns the number of live trackers.
func (e *MonitoringEngine) TrackerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.trackers)
}

// TrackerTotal returns today's accumulated usage for a package, or -1 when
// the package is not tracked.
func (e *MonitoringEngine) TrackerTotal(pkg string) int64 {
	e.mu.Lock()
	tracker, ok := e.trackers[pkg]
	e.mu.Unlock()
	if !ok {
		return -1
	}
	return tracker.TotalTodayMs()
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
