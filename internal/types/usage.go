package types

import "time"

// UsageSample is a single collector reading for one application.
// TotalForegroundMs is cumulative since the start of the sample's calendar
// day and is monotonic within that day under correct collection.
type UsageSample struct {
	PackageName       string    `json:"packageName"`
	AppName           string    `json:"appName"`
	TotalForegroundMs int64     `json:"totalForegroundMs"`
	AsOf              time.Time `json:"asOf"`
}

// RawUsageRow is the persisted cumulative usage for one app on one date.
// The canonical value for a (date, package) key is the maximum ever observed.
type RawUsageRow struct {
	Date        time.Time `json:"date"`
	PackageName string    `json:"packageName"`
	AppName     string    `json:"appName"`
	TotalMs     int64     `json:"totalMs"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AppUsage is one application's entry in a daily snapshot, ordered by
// descending usage when part of a DailySummary.
type AppUsage struct {
	PackageName string `json:"packageName"`
	AppName     string `json:"appName"`
	TotalTimeMs int64  `json:"totalTimeMs"`
}

// DailySummary is the finalized aggregate for a single date. Once committed
// for a past date it is immutable except by an explicit forced refresh.
type DailySummary struct {
	Date        time.Time  `json:"date"`
	TotalMs     int64      `json:"totalMs"`
	Score       int        `json:"score"`
	Apps        []AppUsage `json:"apps"`
	CommittedAt time.Time  `json:"committedAt"`
}

// ForegroundApp identifies the application currently in the foreground.
type ForegroundApp struct {
	PackageName string `json:"packageName"`
	AppName     string `json:"appName"`
}

// NotificationRecord is one persisted alert-history row.
type NotificationRecord struct {
	ID          string    `json:"id"`
	PackageName string    `json:"packageName"`
	Intensity   Intensity `json:"intensity"`
	Date        time.Time `json:"date"`
	SentAt      time.Time `json:"sentAt"`
}

// MonitoredPackage is one entry of the monitored set.
type MonitoredPackage struct {
	PackageName string `json:"packageName"`
	AppName     string `json:"appName"`
}
