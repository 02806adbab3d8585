package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/repository"
)

// resetTickDelay is how long after a reset fires the reseeding tick runs.
const resetTickDelay = 5 * time.Second

// DailyResetScheduler commits the just-ended day's summary and clears daily
// state at local midnight. Cycles Scheduled -> Firing -> Scheduled for the
// life of the process; exactly one deadline is pending at a time.
type DailyResetScheduler struct {
	repo        repository.UsageRepository
	aggregator  *ScoreAggregator
	engine      *MonitoringEngine
	coordinator *Coordinator
	clock       Clock
	logger      logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDailyResetScheduler wires a scheduler. Coordinator may be nil; a nil
// clock gets the system clock.
func NewDailyResetScheduler(repo repository.UsageRepository, aggregator *ScoreAggregator, engine *MonitoringEngine, coordinator *Coordinator, clock Clock, logger logging.Logger) *DailyResetScheduler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &DailyResetScheduler{
		repo:        repo,
		aggregator:  aggregator,
		engine:      engine,
		coordinator: coordinator,
		clock:       clock,
		logger:      logger,
	}
}

// Start recovers a missed reset synchronously, then arms the midnight timer
// loop. Idempotent.
func (s *DailyResetScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	// A last-reset date strictly before today means the process slept
	// across midnight; repair before arming the next deadline
	if missedDate, missed := s.detectMissedReset(ctx); missed {
		s.logger.Info("Missed daily reset detected, recovering", "last_reset", missedDate)
		s.fire(ctx)
	}

	go s.loop(stopCh, doneCh)
}

// Stop cancels the pending deadline and waits for the loop to exit.
func (s *DailyResetScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *DailyResetScheduler) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		delay := s.untilNextMidnight()
		s.logger.Info("Daily reset scheduled", "fires_in", delay.String())

		select {
		case <-s.clock.After(delay):
			s.fire(context.Background())
		case <-stopCh:
			return
		}
	}
}

func (s *DailyResetScheduler) untilNextMidnight() time.Duration {
	now := s.clock.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}

// detectMissedReset reports whether the persisted last-reset date is
// strictly before today's local date.
func (s *DailyResetScheduler) detectMissedReset(ctx context.Context) (string, bool) {
	recorded, err := s.repo.GetMeta(ctx, repository.MetaKeyLastResetDate)
	if err != nil {
		if !repoerrors.IsNotFound(err) {
			s.logger.Warn("Could not read last reset date", "error", err)
		}
		return "", false
	}

	today := s.clock.Now().Format(dateKeyLayout)
	if recorded < today {
		return recorded, true
	}
	return "", false
}

// fire runs the reset steps in order. Each step is best-effort and
// independent: a failure is logged and the remaining steps still run.
func (s *DailyResetScheduler) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Daily reset panicked, recovered", "panic", r)
		}
	}()

	start := time.Now()
	now := s.clock.Now()
	yesterday := now.AddDate(0, 0, -1)

	// (a) commit the just-ended day's summary if absent
	if err := s.commitSummary(ctx, yesterday); err != nil {
		s.logger.Warn("Reset step failed: commit summary", "date", yesterday.Format(dateKeyLayout), "error", err)
	}

	// (b) clear tracker daily state
	if s.engine != nil {
		s.engine.ResetTrackers()
	}
	if s.coordinator != nil {
		s.coordinator.Reset()
	}

	// (c) drop cached scores
	if s.aggregator != nil {
		s.aggregator.InvalidateAll()
	}

	// (d) record the reset and bump the counter
	if err := s.recordReset(ctx, now); err != nil {
		s.logger.Warn("Reset step failed: record reset", "error", err)
	}

	// (e) is the loop re-arming itself; (f) reseed trackers with one fresh
	// tick shortly after midnight
	if s.engine != nil {
		go func() {
			select {
			case <-s.clock.After(resetTickDelay):
				s.engine.Tick(context.Background())
			case <-time.After(time.Minute):
			}
		}()
	}

	logging.LogOperation(s.logger, "DailyReset", time.Since(start), map[string]interface{}{
		"date": now.Format(dateKeyLayout),
	})
}

// commitSummary persists yesterday's summary unless one is already
// committed. The write runs transactionally with persistent retry since a
// closed day gets exactly one chance per reset.
func (s *DailyResetScheduler) commitSummary(ctx context.Context, date time.Time) error {
	_, err := s.repo.GetDailySummary(ctx, date)
	if err == nil {
		return nil
	}
	if !repoerrors.IsNotFound(err) && !repoerrors.IsCorruption(err) {
		return err
	}

	summary, err := s.aggregator.ComputeFromRaw(ctx, date)
	if err != nil {
		return err
	}
	if summary.TotalMs == 0 && len(summary.Apps) == 0 {
		// Nothing to commit for an empty day
		return nil
	}
	summary.CommittedAt = s.clock.Now()

	return repoerrors.RetryPersistent(ctx, func() error {
		return s.repo.WithTransaction(ctx, func(repo repository.UsageRepository) error {
			return repo.SaveDailySummary(ctx, summary, false)
		})
	})
}

func (s *DailyResetScheduler) recordReset(ctx context.Context, now time.Time) error {
	if err := s.repo.SetMeta(ctx, repository.MetaKeyLastResetDate, now.Format(dateKeyLayout)); err != nil {
		return err
	}

	counter := 0
	if v, err := s.repo.GetMeta(ctx, repository.MetaKeyResetCounter); err == nil {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			counter = n
		}
	}
	return s.repo.SetMeta(ctx, repository.MetaKeyResetCounter, strconv.Itoa(counter+1))
}
