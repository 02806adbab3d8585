package repository

import (
	"context"
	"time"

	"focuswatch/internal/types"
)

// UsageRepository defines the persistence contract for the monitoring core.
// Upserts are idempotent and reads observe prior writes within a session.
type UsageRepository interface {
	// Raw usage rows: one cumulative counter per (date, package).
	// UpsertRawUsage applies max-wins semantics: a write only takes effect
	// if the new total is >= the stored total for that key.
	UpsertRawUsage(ctx context.Context, row types.RawUsageRow) error
	GetRawUsageByDate(ctx context.Context, date time.Time) ([]types.RawUsageRow, error)
	DatesWithRawUsage(ctx context.Context, since time.Time) ([]time.Time, error)
	// CanonicalizeRawUsage removes duplicate rows for the date, keeping the
	// row with the maximum total (most recently written breaks ties).
	CanonicalizeRawUsage(ctx context.Context, date time.Time) error

	// Daily summaries: at most one per date, immutable once committed for a
	// past date unless force is set.
	GetDailySummary(ctx context.Context, date time.Time) (*types.DailySummary, error)
	SaveDailySummary(ctx context.Context, summary *types.DailySummary, force bool) error

	// Meta key/value rows for settings and bookkeeping.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Monitored set: structured source. The serialized fallback list lives
	// under the meta key "monitored_packages" as a comma-separated string.
	ListMonitoredPackages(ctx context.Context) ([]types.MonitoredPackage, error)
	ReplaceMonitoredPackages(ctx context.Context, packages []types.MonitoredPackage) error

	// Notification history and cooldown bookkeeping.
	InsertNotification(ctx context.Context, rec types.NotificationRecord) error
	LastNotificationTime(ctx context.Context, pkg string, intensity types.Intensity) (time.Time, error)
	GetNotificationsByDate(ctx context.Context, date time.Time) ([]types.NotificationRecord, error)

	// Retention cleanup across raw usage, summaries and notification history.
	DeleteOldData(ctx context.Context, olderThan time.Time) error

	// Transaction support
	WithTransaction(ctx context.Context, fn func(repo UsageRepository) error) error
}
