package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"
)

// GetDailySummary retrieves the committed summary for a date. Returns a
// NOT_FOUND store error when no summary has been committed.
func (r *SQLiteRepository) GetDailySummary(ctx context.Context, date time.Time) (*types.DailySummary, error) {
	day := dateKey(date)

	var result *types.DailySummary

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		var (
			totalMs      int64
			score        int
			appsJSON     string
			committedStr string
		)
		err := r.q.QueryRowContext(ctx, `
			SELECT total_ms, score, apps_json, CAST(committed_at AS TEXT)
			FROM daily_summaries WHERE date = ?`,
			day).Scan(&totalMs, &score, &appsJSON, &committedStr)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Not found is not retryable
				return repoerrors.NewStoreErrorWithContext("GetDailySummary", err, repoerrors.ErrCodeNotFound, map[string]string{
					"date": day,
				})
			}
			return r.wrapSummaryError("GetDailySummary", err, day)
		}

		var apps []types.AppUsage
		if err := json.Unmarshal([]byte(appsJSON), &apps); err != nil {
			// Malformed blob degrades to an empty app list, never a crash
			r.logger.Warn("Malformed apps blob in daily summary, treating as empty",
				"date", day, "error", err)
			apps = nil
		}

		parsed, err := parseDateKey(day)
		if err != nil {
			return repoerrors.NewStoreErrorWithContext("GetDailySummary", err, repoerrors.ErrCodeCorruption, map[string]string{
				"date": day,
			})
		}

		result = &types.DailySummary{
			Date:        parsed,
			TotalMs:     totalMs,
			Score:       score,
			Apps:        apps,
			CommittedAt: parseTimestamp(committedStr),
		}
		return nil
	})

	return result, err
}

// SaveDailySummary commits a summary for a date. A summary already committed
// for the date is left untouched unless force is set; committed summaries
// for past dates are immutable by contract.
func (r *SQLiteRepository) SaveDailySummary(ctx context.Context, summary *types.DailySummary, force bool) error {
	start := time.Now()

	if summary == nil {
		err := repoerrors.HandleValidationError("SaveDailySummary", "summary", "nil", "summary is nil")
		logging.LogError(r.logger, err, "SaveDailySummary", nil)
		return err
	}

	day := dateKey(summary.Date)

	appsJSON, err := json.Marshal(summary.Apps)
	if err != nil {
		return repoerrors.NewStoreErrorWithContext("SaveDailySummary", err, repoerrors.ErrCodeValidation, map[string]string{
			"date": day,
		})
	}

	err = repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		if force {
			_, err := r.q.ExecContext(ctx, `
				INSERT INTO daily_summaries (date, total_ms, score, apps_json, committed_at)
				VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(date) DO UPDATE SET
					total_ms = excluded.total_ms,
					score = excluded.score,
					apps_json = excluded.apps_json,
					committed_at = CURRENT_TIMESTAMP`,
				day, summary.TotalMs, summary.Score, string(appsJSON))
			if err != nil {
				return r.wrapSummaryError("SaveDailySummary", err, day)
			}
			return nil
		}

		// Without force, an existing committed summary wins
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO daily_summaries (date, total_ms, score, apps_json, committed_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(date) DO NOTHING`,
			day, summary.TotalMs, summary.Score, string(appsJSON))
		if err != nil {
			return r.wrapSummaryError("SaveDailySummary", err, day)
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "SaveDailySummary", time.Since(start), map[string]interface{}{
			"date":     day,
			"total_ms": summary.TotalMs,
			"score":    summary.Score,
			"forced":   force,
		})
	}

	return err
}

// DeleteOldData removes raw usage, summaries and notification history older
// than the cutoff date.
func (r *SQLiteRepository) DeleteOldData(ctx context.Context, olderThan time.Time) error {
	start := time.Now()
	cutoff := dateKey(olderThan)

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		for _, stmt := range []string{
			`DELETE FROM raw_usage WHERE date < ?`,
			`DELETE FROM daily_summaries WHERE date < ?`,
			`DELETE FROM notification_log WHERE date < ?`,
		} {
			if _, err := r.q.ExecContext(ctx, stmt, cutoff); err != nil {
				return r.wrapSummaryError("DeleteOldData", err, cutoff)
			}
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "DeleteOldData", time.Since(start), map[string]interface{}{
			"cutoff": cutoff,
		})
	}

	return err
}

func (r *SQLiteRepository) wrapSummaryError(op string, err error, day string) error {
	storeErr := repoerrors.NewStoreErrorWithContext(op, err, r.classifyError(err), map[string]string{
		"date": day,
	})

	if storeErr.IsRetryable() {
		r.logger.Debug("Retryable error in "+op, "error", err, "date", day)
	} else {
		logging.LogError(r.logger, storeErr, op, map[string]interface{}{
			"date": day,
		})
	}
	return storeErr
}
