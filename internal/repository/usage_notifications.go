package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"

	"github.com/google/uuid"
)

// InsertNotification records one dispatched (or attempted) alert. A missing
// ID is filled in with a fresh UUID.
func (r *SQLiteRepository) InsertNotification(ctx context.Context, rec types.NotificationRecord) error {
	start := time.Now()

	if strings.TrimSpace(rec.PackageName) == "" {
		err := repoerrors.HandleValidationError("InsertNotification", "packageName", rec.PackageName, "package name is empty or whitespace")
		logging.LogError(r.logger, err, "InsertNotification", nil)
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO notification_log (id, package, intensity, date, sent_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.PackageName, rec.Intensity.String(), dateKey(rec.Date), rec.SentAt.UTC().Format(time.RFC3339))
		if err != nil {
			return r.wrapNotificationError("InsertNotification", err, rec.PackageName)
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "InsertNotification", time.Since(start), map[string]interface{}{
			"package":   rec.PackageName,
			"intensity": rec.Intensity.String(),
			"date":      dateKey(rec.Date),
		})
	}

	return err
}

// LastNotificationTime returns when an alert for (package, intensity) was
// last sent. Returns the zero time with a NOT_FOUND store error when none
// has ever been sent.
func (r *SQLiteRepository) LastNotificationTime(ctx context.Context, pkg string, intensity types.Intensity) (time.Time, error) {
	var result time.Time

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		var sentStr sql.NullString
		err := r.q.QueryRowContext(ctx, `
			SELECT MAX(sent_at) FROM notification_log
			WHERE package = ? AND intensity = ?`,
			pkg, intensity.String()).Scan(&sentStr)
		if err != nil {
			return r.wrapNotificationError("LastNotificationTime", err, pkg)
		}
		if !sentStr.Valid || sentStr.String == "" {
			// MAX over an empty set yields NULL: no alert ever sent for
			// this pair. Only this case may read as a first alert; real
			// query failures must surface as store errors so the caller
			// skips instead of dispatching
			return repoerrors.HandleNotFound("LastNotificationTime", "notification_log", pkg+"/"+intensity.String())
		}

		parsed := parseTimestamp(sentStr.String)
		if parsed.IsZero() {
			return repoerrors.NewStoreErrorWithContext("LastNotificationTime", nil, repoerrors.ErrCodeCorruption, map[string]string{
				"package": pkg,
				"sent_at": sentStr.String,
			})
		}

		result = parsed
		return nil
	})

	return result, err
}

// GetNotificationsByDate lists the alerts recorded for a date, oldest first.
func (r *SQLiteRepository) GetNotificationsByDate(ctx context.Context, date time.Time) ([]types.NotificationRecord, error) {
	day := dateKey(date)

	var result []types.NotificationRecord

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx, `
			SELECT id, package, intensity, date, sent_at
			FROM notification_log
			WHERE date = ?
			ORDER BY sent_at ASC`,
			day)
		if err != nil {
			return r.wrapNotificationError("GetNotificationsByDate", err, "")
		}
		defer rows.Close()

		var scanned []types.NotificationRecord
		for rows.Next() {
			var (
				rec          types.NotificationRecord
				intensityStr string
				dayStr       string
				sentStr      string
			)
			if err := rows.Scan(&rec.ID, &rec.PackageName, &intensityStr, &dayStr, &sentStr); err != nil {
				return r.wrapNotificationError("GetNotificationsByDate", err, "")
			}
			rec.Intensity = types.ParseIntensity(intensityStr)
			if parsed, err := parseDateKey(dayStr); err == nil {
				rec.Date = parsed
			}
			rec.SentAt = parseTimestamp(sentStr)
			scanned = append(scanned, rec)
		}
		if err := rows.Err(); err != nil {
			return r.wrapNotificationError("GetNotificationsByDate", err, "")
		}

		result = scanned
		return nil
	})

	return result, err
}

func (r *SQLiteRepository) wrapNotificationError(op string, err error, pkg string) error {
	contextMap := map[string]string{}
	if pkg != "" {
		contextMap["package"] = pkg
	}
	storeErr := repoerrors.NewStoreErrorWithContext(op, err, r.classifyError(err), contextMap)

	if storeErr.IsRetryable() {
		r.logger.Debug("Retryable error in "+op, "error", err)
	} else {
		logging.LogError(r.logger, storeErr, op, nil)
	}
	return storeErr
}
