package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/repository"
	"focuswatch/internal/types"
)

const dateKeyLayout = "2006-01-02"

type cacheEntry struct {
	summary  *types.DailySummary
	cachedAt time.Time
}

// ScoreAggregator resolves "score for date X" through a TTL cache, the
// committed summary table, and finally raw-usage computation.
type ScoreAggregator struct {
	repo        repository.UsageRepository
	allowedMs   int64
	ttl         time.Duration
	selfPackage string
	clock       Clock
	logger      logging.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewScoreAggregator creates an aggregator with the given daily budget and
// cache TTL. selfPackage is excluded from every aggregate.
func NewScoreAggregator(repo repository.UsageRepository, allowed time.Duration, ttl time.Duration, selfPackage string, clock Clock, logger logging.Logger) *ScoreAggregator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ScoreAggregator{
		repo:        repo,
		allowedMs:   allowed.Milliseconds(),
		ttl:         ttl,
		selfPackage: selfPackage,
		clock:       clock,
		logger:      logger,
		cache:       make(map[string]cacheEntry),
	}
}

// ScoreForDate resolves the daily aggregate for a date. Resolution order:
// cache entry younger than the TTL, committed summary, raw computation. The
// result of a raw computation is cached but never persisted here; only the
// reset and backfill paths commit summaries for closed days.
func (a *ScoreAggregator) ScoreForDate(ctx context.Context, date time.Time) (*types.DailySummary, error) {
	key := date.Format(dateKeyLayout)
	now := a.clock.Now()

	a.mu.Lock()
	if entry, ok := a.cache[key]; ok && now.Sub(entry.cachedAt) < a.ttl {
		cached := entry.summary
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	summary, err := a.repo.GetDailySummary(ctx, date)
	switch {
	case err == nil:
		a.store(key, summary, now)
		return summary, nil
	case repoerrors.IsNotFound(err):
		// Fall through to raw computation
	case repoerrors.IsCorruption(err) || repoerrors.IsValidation(err):
		// Unparsable summary blob degrades to recomputation, never a crash
		a.logger.Warn("Persisted summary unreadable, recomputing from raw usage",
			"date", key, "error", err)
	default:
		return nil, err
	}

	summary, err = a.ComputeFromRaw(ctx, date)
	if err != nil {
		return nil, err
	}

	a.store(key, summary, now)
	return summary, nil
}

// ComputeFromRaw builds a summary for the date directly from raw usage rows:
// dedupe to the max total per package, keep only monitored packages, exclude
// this process's own package, order descending by usage. Bypasses the cache
// and never persists.
func (a *ScoreAggregator) ComputeFromRaw(ctx context.Context, date time.Time) (*types.DailySummary, error) {
	rows, err := a.repo.GetRawUsageByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	monitored, err := a.resolveMonitoredSet(ctx)
	if err != nil {
		return nil, err
	}

	// Reads already collapse duplicates to the max per package, but a second
	// pass keeps the invariant independent of the storage layer
	maxByPkg := make(map[string]types.RawUsageRow, len(rows))
	for _, row := range rows {
		if row.PackageName == a.selfPackage {
			continue
		}
		if len(monitored) > 0 {
			if _, ok := monitored[row.PackageName]; !ok {
				continue
			}
		}
		if existing, ok := maxByPkg[row.PackageName]; !ok || row.TotalMs > existing.TotalMs {
			maxByPkg[row.PackageName] = row
		}
	}

	var totalMs int64
	apps := make([]types.AppUsage, 0, len(maxByPkg))
	for _, row := range maxByPkg {
		totalMs += row.TotalMs
		apps = append(apps, types.AppUsage{
			PackageName: row.PackageName,
			AppName:     row.AppName,
			TotalTimeMs: row.TotalMs,
		})
	}

	sort.Slice(apps, func(i, j int) bool {
		if apps[i].TotalTimeMs != apps[j].TotalTimeMs {
			return apps[i].TotalTimeMs > apps[j].TotalTimeMs
		}
		return apps[i].PackageName < apps[j].PackageName
	})

	return &types.DailySummary{
		Date:    time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
		TotalMs: totalMs,
		Score:   Score(totalMs, a.allowedMs),
		Apps:    apps,
	}, nil
}

// resolveMonitoredSet reads the structured monitored set, falling back to
// the serialized meta list only when the structured source yields nothing.
// Both sources produce identical semantics downstream. Malformed fallback
// data degrades to an empty set.
func (a *ScoreAggregator) resolveMonitoredSet(ctx context.Context) (map[string]struct{}, error) {
	packages, err := a.repo.ListMonitoredPackages(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(packages))
	for _, p := range packages {
		set[p.PackageName] = struct{}{}
	}
	if len(set) > 0 {
		return set, nil
	}

	serialized, err := a.repo.GetMeta(ctx, repository.MetaKeyMonitoredFallback)
	if err != nil {
		if repoerrors.IsNotFound(err) {
			return set, nil
		}
		return nil, err
	}

	for _, pkg := range strings.Split(serialized, ",") {
		pkg = strings.TrimSpace(pkg)
		if pkg != "" {
			set[pkg] = struct{}{}
		}
	}
	return set, nil
}

// Invalidate evicts the cache entry for a date. Must be called after any
// write to raw usage or the summary for that date.
func (a *ScoreAggregator) Invalidate(date time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, date.Format(dateKeyLayout))
}

// InvalidateAll evicts every cache entry.
func (a *ScoreAggregator) InvalidateAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[string]cacheEntry)
}

func (a *ScoreAggregator) store(key string, summary *types.DailySummary, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[key] = cacheEntry{summary: summary, cachedAt: at}
}
