package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"
)

// Meta keys used by the monitoring core. Callers outside the repository use
// these constants rather than raw strings.
const (
	MetaKeyLastResetDate        = "last_reset_date"
	MetaKeyResetCounter         = "reset_counter"
	MetaKeyNotificationsEnabled = "notifications_enabled"
	MetaKeySnoozeUntil          = "snooze_until"
	MetaKeyMonitoredFallback    = "monitored_packages"
)

// GetMeta reads a meta value. Returns a NOT_FOUND store error when the key
// has never been written.
func (r *SQLiteRepository) GetMeta(ctx context.Context, key string) (string, error) {
	var value string

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		err := r.q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repoerrors.HandleNotFound("GetMeta", "meta", key)
			}
			return r.wrapMetaError("GetMeta", err, key)
		}
		return nil
	})

	return value, err
}

// SetMeta writes a meta value, replacing any existing value for the key.
func (r *SQLiteRepository) SetMeta(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return repoerrors.HandleValidationError("SetMeta", "key", key, "meta key is empty or whitespace")
	}

	return repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value)
		if err != nil {
			return r.wrapMetaError("SetMeta", err, key)
		}
		return nil
	})
}

// ListMonitoredPackages reads the structured monitored set, ordered by
// package name for deterministic output.
func (r *SQLiteRepository) ListMonitoredPackages(ctx context.Context) ([]types.MonitoredPackage, error) {
	var result []types.MonitoredPackage

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT package, app_name FROM monitored_packages ORDER BY package`)
		if err != nil {
			return r.wrapMetaError("ListMonitoredPackages", err, "")
		}
		defer rows.Close()

		var scanned []types.MonitoredPackage
		for rows.Next() {
			var pkg types.MonitoredPackage
			if err := rows.Scan(&pkg.PackageName, &pkg.AppName); err != nil {
				return r.wrapMetaError("ListMonitoredPackages", err, "")
			}
			scanned = append(scanned, pkg)
		}
		if err := rows.Err(); err != nil {
			return r.wrapMetaError("ListMonitoredPackages", err, "")
		}

		result = scanned
		return nil
	})

	return result, err
}

// ReplaceMonitoredPackages overwrites the structured monitored set.
func (r *SQLiteRepository) ReplaceMonitoredPackages(ctx context.Context, packages []types.MonitoredPackage) error {
	return r.WithTransaction(ctx, func(repo UsageRepository) error {
		txRepo, ok := repo.(*SQLiteRepository)
		if !ok {
			return repoerrors.HandleValidationError("ReplaceMonitoredPackages", "repo", "unexpected type", "transaction repository type mismatch")
		}

		if _, err := txRepo.q.ExecContext(ctx, `DELETE FROM monitored_packages`); err != nil {
			return txRepo.wrapMetaError("ReplaceMonitoredPackages", err, "")
		}

		for _, pkg := range packages {
			if strings.TrimSpace(pkg.PackageName) == "" {
				continue
			}
			if _, err := txRepo.q.ExecContext(ctx, `
				INSERT INTO monitored_packages (package, app_name) VALUES (?, ?)
				ON CONFLICT(package) DO UPDATE SET app_name = excluded.app_name`,
				pkg.PackageName, pkg.AppName); err != nil {
				return txRepo.wrapMetaError("ReplaceMonitoredPackages", err, pkg.PackageName)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) wrapMetaError(op string, err error, key string) error {
	contextMap := map[string]string{}
	if key != "" {
		contextMap["key"] = key
	}
	storeErr := repoerrors.NewStoreErrorWithContext(op, err, r.classifyError(err), contextMap)

	if storeErr.IsRetryable() {
		r.logger.Debug("Retryable error in "+op, "error", err)
	} else {
		logging.LogError(r.logger, storeErr, op, nil)
	}
	return storeErr
}
