package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"
)

// UpsertRawUsage saves a cumulative usage row with max-wins semantics: the
// stored total for a (date, package) key never decreases.
func (r *SQLiteRepository) UpsertRawUsage(ctx context.Context, row types.RawUsageRow) error {
	start := time.Now()

	if strings.TrimSpace(row.PackageName) == "" {
		err := repoerrors.HandleValidationError("UpsertRawUsage", "packageName", row.PackageName, "package name is empty or whitespace")
		logging.LogError(r.logger, err, "UpsertRawUsage", map[string]interface{}{
			"date": dateKey(row.Date),
		})
		return err
	}
	if row.TotalMs < 0 {
		err := repoerrors.HandleValidationError("UpsertRawUsage", "totalMs", fmt.Sprintf("%d", row.TotalMs), "usage total is negative")
		logging.LogError(r.logger, err, "UpsertRawUsage", map[string]interface{}{
			"date":    dateKey(row.Date),
			"package": row.PackageName,
		})
		return err
	}

	day := dateKey(row.Date)

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		// Raise the existing counter if the new total is at least as large.
		// The guard defends the cumulative invariant against stale writers.
		res, err := r.q.ExecContext(ctx, `
			UPDATE raw_usage
			SET total_ms = ?, app_name = ?, updated_at = CURRENT_TIMESTAMP
			WHERE date = ? AND package = ? AND total_ms <= ?`,
			row.TotalMs, row.AppName, day, row.PackageName, row.TotalMs)
		if err != nil {
			return r.wrapRawError("UpsertRawUsage", err, day, row.PackageName)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return r.wrapRawError("UpsertRawUsage", err, day, row.PackageName)
		}
		if affected > 0 {
			return nil
		}

		// Either the key does not exist yet, or the stored total is larger.
		var existing int64
		err = r.q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(total_ms), -1) FROM raw_usage WHERE date = ? AND package = ?`,
			day, row.PackageName).Scan(&existing)
		if err != nil {
			return r.wrapRawError("UpsertRawUsage", err, day, row.PackageName)
		}
		if existing >= 0 {
			// Stored value wins; stale write dropped.
			return nil
		}

		_, err = r.q.ExecContext(ctx, `
			INSERT INTO raw_usage (date, package, app_name, total_ms, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			day, row.PackageName, row.AppName, row.TotalMs)
		if err != nil {
			return r.wrapRawError("UpsertRawUsage", err, day, row.PackageName)
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "UpsertRawUsage", time.Since(start), map[string]interface{}{
			"date":     day,
			"package":  row.PackageName,
			"total_ms": row.TotalMs,
		})
	}

	return err
}

// GetRawUsageByDate retrieves the canonical raw usage rows for a date. When
// duplicate rows exist for a package, only the maximum total is returned.
func (r *SQLiteRepository) GetRawUsageByDate(ctx context.Context, date time.Time) ([]types.RawUsageRow, error) {
	day := dateKey(date)

	var result []types.RawUsageRow

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		// Select the whole winning row per package rather than grouping
		// with aggregates: with more than one MAX() the bare columns are
		// not guaranteed to come from the max-total row. The keep-row
		// choice matches CanonicalizeRawUsage exactly
		rows, err := r.q.QueryContext(ctx, `
			SELECT date, package, app_name, total_ms, updated_at
			FROM raw_usage
			WHERE date = ?
			  AND id = (
				SELECT id FROM raw_usage AS cand
				WHERE cand.date = raw_usage.date AND cand.package = raw_usage.package
				ORDER BY cand.total_ms DESC, cand.id DESC
				LIMIT 1
			  )
			ORDER BY package`,
			day)
		if err != nil {
			return r.wrapRawError("GetRawUsageByDate", err, day, "")
		}
		defer rows.Close()

		var scanned []types.RawUsageRow
		for rows.Next() {
			var (
				dayStr     string
				updatedStr string
				row        types.RawUsageRow
			)
			if err := rows.Scan(&dayStr, &row.PackageName, &row.AppName, &row.TotalMs, &updatedStr); err != nil {
				return r.wrapRawError("GetRawUsageByDate", err, day, "")
			}
			parsed, err := parseDateKey(dayStr)
			if err != nil {
				return repoerrors.NewStoreErrorWithContext("GetRawUsageByDate", err, repoerrors.ErrCodeCorruption, map[string]string{
					"date": dayStr,
				})
			}
			row.Date = parsed
			// Timestamps are scanned as text and parsed leniently; the
			// driver renders typed TIMESTAMP columns as RFC3339
			row.UpdatedAt = parseTimestamp(updatedStr)
			scanned = append(scanned, row)
		}
		if err := rows.Err(); err != nil {
			return r.wrapRawError("GetRawUsageByDate", err, day, "")
		}

		result = scanned
		return nil
	})

	return result, err
}

// DatesWithRawUsage lists distinct dates at or after since that have at least
// one raw usage row, ascending.
func (r *SQLiteRepository) DatesWithRawUsage(ctx context.Context, since time.Time) ([]time.Time, error) {
	var result []time.Time

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT DISTINCT date FROM raw_usage WHERE date >= ? ORDER BY date ASC`,
			dateKey(since))
		if err != nil {
			return repoerrors.NewStoreError("DatesWithRawUsage", err, r.classifyError(err))
		}
		defer rows.Close()

		var scanned []time.Time
		for rows.Next() {
			var dayStr string
			if err := rows.Scan(&dayStr); err != nil {
				return repoerrors.NewStoreError("DatesWithRawUsage", err, r.classifyError(err))
			}
			parsed, err := parseDateKey(dayStr)
			if err != nil {
				// Skip unparsable keys rather than failing the whole scan
				r.logger.Warn("Skipping malformed date key in raw usage", "date", dayStr)
				continue
			}
			scanned = append(scanned, parsed)
		}
		if err := rows.Err(); err != nil {
			return repoerrors.NewStoreError("DatesWithRawUsage", err, r.classifyError(err))
		}

		result = scanned
		return nil
	})

	return result, err
}

// CanonicalizeRawUsage deletes duplicate rows for a date, keeping the row
// with the maximum total per package. Ties break to the most recently
// written row (highest id).
func (r *SQLiteRepository) CanonicalizeRawUsage(ctx context.Context, date time.Time) error {
	start := time.Now()
	day := dateKey(date)

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		res, err := r.q.ExecContext(ctx, `
			DELETE FROM raw_usage
			WHERE date = ?
			  AND id NOT IN (
				SELECT id FROM raw_usage AS keep
				WHERE keep.date = ?
				  AND keep.id = (
					SELECT id FROM raw_usage AS cand
					WHERE cand.date = keep.date AND cand.package = keep.package
					ORDER BY cand.total_ms DESC, cand.id DESC
					LIMIT 1
				  )
			  )`,
			day, day)
		if err != nil {
			return r.wrapRawError("CanonicalizeRawUsage", err, day, "")
		}

		if removed, err := res.RowsAffected(); err == nil && removed > 0 {
			r.logger.Info("Canonicalized duplicate raw usage rows", "date", day, "removed", removed)
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "CanonicalizeRawUsage", time.Since(start), map[string]interface{}{
			"date": day,
		})
	}

	return err
}

// wrapRawError attaches raw-usage context and logs at the level matching
// the error's retryability.
func (r *SQLiteRepository) wrapRawError(op string, err error, day, pkg string) error {
	contextMap := map[string]string{"date": day}
	if pkg != "" {
		contextMap["package"] = pkg
	}
	storeErr := repoerrors.NewStoreErrorWithContext(op, err, r.classifyError(err), contextMap)

	if storeErr.IsRetryable() {
		r.logger.Debug("Retryable error in "+op, "error", err, "date", day)
	} else {
		logging.LogError(r.logger, storeErr, op, map[string]interface{}{
			"date": day,
		})
	}
	return storeErr
}
