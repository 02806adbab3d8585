package services

import (
	"context"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/repository"
)

// Backfiller reconciles historical raw usage with committed summaries:
// duplicate raw rows are canonicalized to the max-total row, and closed days
// that have raw usage but no summary get one computed and committed.
//
// Backfill resolves apps against the current monitored set, not the set
// active when the usage was recorded. History is reinterpreted under today's
// settings; that staleness is a known limitation of the stored data, which
// does not record historical set membership.
type Backfiller struct {
	repo       repository.UsageRepository
	aggregator *ScoreAggregator
	clock      Clock
	logger     logging.Logger
	windowDays int
}

// NewBackfiller creates a backfiller over a trailing window of days.
func NewBackfiller(repo repository.UsageRepository, aggregator *ScoreAggregator, windowDays int, clock Clock, logger logging.Logger) *Backfiller {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if windowDays < 0 {
		windowDays = 0
	}
	return &Backfiller{
		repo:       repo,
		aggregator: aggregator,
		clock:      clock,
		logger:     logger,
		windowDays: windowDays,
	}
}

// Run processes every date in the trailing window that has raw usage.
// Idempotent: a second run over the same range changes nothing. A failure
// on one date is logged and does not stop the batch.
func (b *Backfiller) Run(ctx context.Context) error {
	start := time.Now()

	now := b.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	since := today.AddDate(0, 0, -b.windowDays)

	dates, err := b.repo.DatesWithRawUsage(ctx, since)
	if err != nil {
		return err
	}

	var processed, committed int
	for _, date := range dates {
		if err := b.processDate(ctx, date, today); err != nil {
			b.logger.Warn("Backfill failed for date",
				"date", date.Format(dateKeyLayout), "error", err)
			continue
		}
		processed++
		if date.Before(today) {
			committed++
		}
	}

	logging.LogOperation(b.logger, "Backfill", time.Since(start), map[string]interface{}{
		"dates_seen":      len(dates),
		"dates_processed": processed,
	})
	return nil
}

func (b *Backfiller) processDate(ctx context.Context, date, today time.Time) error {
	if err := b.repo.CanonicalizeRawUsage(ctx, date); err != nil {
		return err
	}
	b.aggregator.Invalidate(date)

	// Only closed days are eligible for permanent summary commitment
	if !date.Before(today) {
		return nil
	}

	_, err := b.repo.GetDailySummary(ctx, date)
	if err == nil {
		return nil
	}
	if !repoerrors.IsNotFound(err) {
		return err
	}

	summary, err := b.aggregator.ComputeFromRaw(ctx, date)
	if err != nil {
		return err
	}
	if summary.TotalMs == 0 && len(summary.Apps) == 0 {
		return nil
	}
	summary.CommittedAt = b.clock.Now()

	// Non-forced save: a summary committed between the check above and this
	// write wins, keeping the run idempotent under races
	if err := b.repo.SaveDailySummary(ctx, summary, false); err != nil {
		return err
	}
	b.aggregator.Invalidate(date)
	return nil
}
