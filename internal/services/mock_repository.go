package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/repository"
	"focuswatch/internal/types"
)

// MockRepository implements the UsageRepository interface for testing
type MockRepository struct {
	mu            sync.RWMutex
	rawRows       map[string][]types.RawUsageRow // key: date string (YYYY-MM-DD)
	summaries     map[string]*types.DailySummary
	meta          map[string]string
	monitored     []types.MonitoredPackage
	notifications []types.NotificationRecord

	upsertCallCount    int
	summaryCallCount   int
	saveSummaryCount   int
	canonicalizeCount  int
	notifyInsertCount  int
	transactionCalls   int
	deleteCallCount    int
	shouldFailRead     bool
	shouldFailWrite    bool
	shouldFailTx       bool
	corruptSummaryRead bool
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		rawRows:   make(map[string][]types.RawUsageRow),
		summaries: make(map[string]*types.DailySummary),
		meta:      make(map[string]string),
	}
}

// SetFailureModes configures the mock to simulate failures
func (m *MockRepository) SetFailureModes(read, write, tx bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailRead = read
	m.shouldFailWrite = write
	m.shouldFailTx = tx
}

// SetCorruptSummaries makes summary reads return corruption errors
func (m *MockRepository) SetCorruptSummaries(corrupt bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corruptSummaryRead = corrupt
}

// CallCounts reports how many times each mutation path ran
func (m *MockRepository) CallCounts() (upserts, summaryReads, summarySaves, canonicalizations, notifyInserts, transactions, deletes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upsertCallCount, m.summaryCallCount, m.saveSummaryCount, m.canonicalizeCount, m.notifyInsertCount, m.transactionCalls, m.deleteCallCount
}

func mockDateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// UpsertRawUsage implements UsageRepository with max-wins semantics
func (m *MockRepository) UpsertRawUsage(ctx context.Context, row types.RawUsageRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertCallCount++

	if m.shouldFailWrite {
		return errors.NewStoreError("UpsertRawUsage", fmt.Errorf("mock write failure"), errors.ErrCodeConnection)
	}

	key := mockDateKey(row.Date)
	for i, existing := range m.rawRows[key] {
		if existing.PackageName == row.PackageName {
			if row.TotalMs >= existing.TotalMs {
				m.rawRows[key][i] = row
			}
			return nil
		}
	}
	m.rawRows[key] = append(m.rawRows[key], row)
	return nil
}

// AddDuplicateRawRow inserts a raw row without upsert semantics, to simulate
// the duplicate rows canonicalization exists to clean up
func (m *MockRepository) AddDuplicateRawRow(row types.RawUsageRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mockDateKey(row.Date)
	m.rawRows[key] = append(m.rawRows[key], row)
}

// GetRawUsageByDate implements UsageRepository; duplicates collapse to the
// max total per package, matching the SQL read path
func (m *MockRepository) GetRawUsageByDate(ctx context.Context, date time.Time) ([]types.RawUsageRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldFailRead {
		return nil, errors.NewStoreError("GetRawUsageByDate", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}

	maxByPkg := make(map[string]types.RawUsageRow)
	for _, row := range m.rawRows[mockDateKey(date)] {
		if existing, ok := maxByPkg[row.PackageName]; !ok || row.TotalMs > existing.TotalMs {
			maxByPkg[row.PackageName] = row
		}
	}

	result := make([]types.RawUsageRow, 0, len(maxByPkg))
	for _, row := range maxByPkg {
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PackageName < result[j].PackageName })
	return result, nil
}

// RawRowCount reports the number of stored rows for a date, duplicates included
func (m *MockRepository) RawRowCount(date time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rawRows[mockDateKey(date)])
}

// DatesWithRawUsage implements UsageRepository
func (m *MockRepository) DatesWithRawUsage(ctx context.Context, since time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldFailRead {
		return nil, errors.NewStoreError("DatesWithRawUsage", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}

	sinceKey := mockDateKey(since)
	var keys []string
	for key, rows := range m.rawRows {
		if len(rows) > 0 && key >= sinceKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		if t, err := time.ParseInLocation("2006-01-02", key, time.Local); err == nil {
			result = append(result, t)
		}
	}
	return result, nil
}

// CanonicalizeRawUsage implements UsageRepository: keep the max-total row
// per package, newest write breaking ties
func (m *MockRepository) CanonicalizeRawUsage(ctx context.Context, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.canonicalizeCount++

	if m.shouldFailWrite {
		return errors.NewStoreError("CanonicalizeRawUsage", fmt.Errorf("mock write failure"), errors.ErrCodeConnection)
	}

	key := mockDateKey(date)
	keep := make(map[string]types.RawUsageRow)
	for _, row := range m.rawRows[key] {
		existing, ok := keep[row.PackageName]
		if !ok || row.TotalMs > existing.TotalMs ||
			(row.TotalMs == existing.TotalMs && !row.UpdatedAt.Before(existing.UpdatedAt)) {
			keep[row.PackageName] = row
		}
	}

	canonical := make([]types.RawUsageRow, 0, len(keep))
	for _, row := range keep {
		canonical = append(canonical, row)
	}
	sort.Slice(canonical, func(i, j int) bool { return canonical[i].PackageName < canonical[j].PackageName })
	m.rawRows[key] = canonical
	return nil
}

// GetDailySummary implements UsageRepository
func (m *MockRepository) GetDailySummary(ctx context.Context, date time.Time) (*types.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summaryCallCount++

	if m.shouldFailRead {
		return nil, errors.NewStoreError("GetDailySummary", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}
	if m.corruptSummaryRead {
		return nil, errors.NewStoreError("GetDailySummary", fmt.Errorf("mock corrupt blob"), errors.ErrCodeCorruption)
	}

	summary, exists := m.summaries[mockDateKey(date)]
	if !exists {
		return nil, errors.NewStoreError("GetDailySummary", fmt.Errorf("not found"), errors.ErrCodeNotFound)
	}

	// Return a copy to avoid aliasing mock internals
	out := *summary
	out.Apps = make([]types.AppUsage, len(summary.Apps))
	copy(out.Apps, summary.Apps)
	return &out, nil
}

// SaveDailySummary implements UsageRepository; without force an existing
// committed summary wins
func (m *MockRepository) SaveDailySummary(ctx context.Context, summary *types.DailySummary, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveSummaryCount++

	if m.shouldFailWrite {
		return errors.NewStoreError("SaveDailySummary", fmt.Errorf("mock write failure"), errors.ErrCodeConnection)
	}

	key := mockDateKey(summary.Date)
	if _, exists := m.summaries[key]; exists && !force {
		return nil
	}

	stored := *summary
	stored.Apps = make([]types.AppUsage, len(summary.Apps))
	copy(stored.Apps, summary.Apps)
	m.summaries[key] = &stored
	return nil
}

// GetMeta implements UsageRepository
func (m *MockRepository) GetMeta(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldFailRead {
		return "", errors.NewStoreError("GetMeta", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}

	value, exists := m.meta[key]
	if !exists {
		return "", errors.NewStoreError("GetMeta", fmt.Errorf("not found"), errors.ErrCodeNotFound)
	}
	return value, nil
}

// SetMeta implements UsageRepository
func (m *MockRepository) SetMeta(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFailWrite {
		return errors.NewStoreError("SetMeta", fmt.Errorf("mock write failure"), errors.ErrCodeConnection)
	}

	m.meta[key] = value
	return nil
}

// ListMonitoredPackages implements UsageRepository
func (m *MockRepository) ListMonitoredPackages(ctx context.Context) ([]types.MonitoredPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldFailRead {
		return nil, errors.NewStoreError("ListMonitoredPackages", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}

	result := make([]types.MonitoredPackage, len(m.monitored))
	copy(result, m.monitored)
	return result, nil
}

// ReplaceMonitoredPackages implements UsageRepository
func (m *MockRepository) ReplaceMonitoredPackages(ctx context.Context, packages []types.MonitoredPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFailWrite {
		return errors.NewStoreError("ReplaceMonitoredPackages", fmt.Errorf("mock write failure"), errors.ErrCodeConnection)
	}

	m.monitored = make([]types.MonitoredPackage, len(packages))
	copy(m.monitored, packages)
	return nil
}

// InsertNotification implements UsageRepository
func (m *MockRepository) InsertNotification(ctx context.Context, rec types.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifyInsertCount++

	if m.shouldFailWrite {
		return errors.NewStoreError("InsertNotification", fmt.Errorf("mock write failure"), errors.ErrCodeConnection)
	}

	if rec.ID == "" {
		rec.ID = fmt.Sprintf("mock-%d", len(m.notifications)+1)
	}
	m.notifications = append(m.notifications, rec)
	return nil
}

// LastNotificationTime implements UsageRepository
func (m *MockRepository) LastNotificationTime(ctx context.Context, pkg string, intensity types.Intensity) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldFailRead {
		return time.Time{}, errors.NewStoreError("LastNotificationTime", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}

	var last time.Time
	found := false
	for _, rec := range m.notifications {
		if rec.PackageName == pkg && rec.Intensity == intensity && rec.SentAt.After(last) {
			last = rec.SentAt
			found = true
		}
	}
	if !found {
		return time.Time{}, errors.NewStoreError("LastNotificationTime", fmt.Errorf("not found"), errors.ErrCodeNotFound)
	}
	return last, nil
}

// GetNotificationsByDate implements UsageRepository
func (m *MockRepository) GetNotificationsByDate(ctx context.Context, date time.Time) ([]types.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldFailRead {
		return nil, errors.NewStoreError("GetNotificationsByDate", fmt.Errorf("mock read failure"), errors.ErrCodeConnection)
	}

	key := mockDateKey(date)
	var result []types.NotificationRecord
	for _, rec := range m.notifications {
		if mockDateKey(rec.Date) == key {
			result = append(result, rec)
		}
	}
	return result, nil
}

// NotificationCount reports how many notification rows were recorded
func (m *MockRepository) NotificationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications)
}

// DeleteOldData implements UsageRepository
func (m *MockRepository) DeleteOldData(ctx context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCallCount++

	if m.shouldFailWrite {
		return errors.NewStoreError("DeleteOldData", fmt.Errorf("mock delete failure"), errors.ErrCodeConnection)
	}

	cutoff := mockDateKey(olderThan)
	for key := range m.rawRows {
		if key < cutoff {
			delete(m.rawRows, key)
			delete(m.summaries, key)
		}
	}

	kept := m.notifications[:0]
	for _, rec := range m.notifications {
		if mockDateKey(rec.Date) >= cutoff {
			kept = append(kept, rec)
		}
	}
	m.notifications = kept
	return nil
}

// WithTransaction implements UsageRepository
func (m *MockRepository) WithTransaction(ctx context.Context, fn func(repo repository.UsageRepository) error) error {
	m.mu.Lock()
	m.transactionCalls++
	shouldFail := m.shouldFailTx
	m.mu.Unlock()

	if shouldFail {
		return errors.NewStoreError("WithTransaction", fmt.Errorf("mock transaction failure"), errors.ErrCodeTransaction)
	}

	// Execute the function with this mock repository
	return fn(m)
}

// SetSerializedMonitoredList writes the fallback monitored list meta key
func (m *MockRepository) SetSerializedMonitoredList(packages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[repository.MetaKeyMonitoredFallback] = strings.Join(packages, ",")
}
