package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
)

// WithTransaction executes a function within a database transaction with
// retry logic. The callback receives a repository bound to the transaction.
func (r *SQLiteRepository) WithTransaction(ctx context.Context, fn func(repo UsageRepository) error) error {
	start := time.Now()

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			storeErr := repoerrors.NewStoreError("WithTransaction.Begin", err, r.classifyError(err))
			if storeErr.IsRetryable() {
				r.logger.Debug("Retryable error beginning transaction", "error", err)
			} else {
				logging.LogError(r.logger, storeErr, "WithTransaction.Begin", nil)
			}
			return storeErr
		}

		var originalErr error
		var committed bool
		defer func() {
			if !committed && tx != nil {
				if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
					r.logger.Debug("Failed to rollback transaction",
						"rollback_error", rollbackErr,
						"original_error", originalErr)
				}
			}
		}()

		// A clone bound to the transaction; db is kept for nested Begin guards
		txRepo := &SQLiteRepository{
			db:          r.db,
			q:           tx,
			dbService:   r.dbService,
			retryConfig: r.retryConfig,
			logger:      r.logger,
		}

		if err := fn(txRepo); err != nil {
			originalErr = err
			r.logger.Debug("Transaction function failed", "error", err)
			return err
		}

		if err := tx.Commit(); err != nil {
			originalErr = err
			storeErr := repoerrors.NewStoreError("WithTransaction.Commit", err, r.classifyError(err))
			if storeErr.IsRetryable() {
				r.logger.Debug("Retryable error committing transaction", "error", err)
			} else {
				logging.LogError(r.logger, storeErr, "WithTransaction.Commit", nil)
			}
			return storeErr
		}
		committed = true

		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "WithTransaction", time.Since(start), nil)
	}

	return err
}
