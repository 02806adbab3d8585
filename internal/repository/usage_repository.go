package repository

import (
	"context"
	"database/sql"

	"focuswatch/internal/database"
	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query method can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteRepository implements the UsageRepository interface using SQLite
type SQLiteRepository struct {
	db          *sql.DB
	q           dbtx // *sql.DB normally, *sql.Tx inside WithTransaction
	dbService   database.Service
	retryConfig *repoerrors.RetryConfig
	logger      logging.Logger
}

// NewSQLiteRepository creates a new SQLite repository instance
func NewSQLiteRepository(dbService database.Service, logger logging.Logger) *SQLiteRepository {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &SQLiteRepository{
		db:          dbService.DB(),
		q:           dbService.DB(),
		dbService:   dbService,
		retryConfig: repoerrors.DefaultRetryConfig(),
		logger:      logger,
	}
}

// NewSQLiteRepositoryWithConfig creates a repository with a custom retry configuration
func NewSQLiteRepositoryWithConfig(dbService database.Service, retryConfig *repoerrors.RetryConfig, logger logging.Logger) *SQLiteRepository {
	if retryConfig == nil {
		retryConfig = repoerrors.DefaultRetryConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &SQLiteRepository{
		db:          dbService.DB(),
		q:           dbService.DB(),
		dbService:   dbService,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// SetRetryConfig updates the retry configuration for the repository
func (r *SQLiteRepository) SetRetryConfig(config *repoerrors.RetryConfig) {
	if config != nil {
		r.retryConfig = config
	}
}

// SetLogger updates the logger for the repository
func (r *SQLiteRepository) SetLogger(logger logging.Logger) {
	if logger != nil {
		r.logger = logger
	}
}
