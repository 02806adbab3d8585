package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/repository"
	"focuswatch/internal/types"
)

// messageVariants holds the alert bodies per intensity. One is picked at
// random per send; %s is the formatted usage duration.
var messageVariants = map[types.Intensity][]string{
	types.IntensityMild: {
		"You've been on %s for a while now. Maybe stretch a little?",
		"%s of screen time so far. Just letting you know.",
	},
	types.IntensityNormal: {
		"%s of usage today. Time for a proper break?",
		"You've passed %s today. Your eyes will thank you for a pause.",
	},
	types.IntensityHarsh: {
		"%s today. That's a lot. Step away for a bit.",
		"Seriously, %s already. Put it down for a while.",
	},
	types.IntensityCritical: {
		"%s of screen time. Stop now.",
		"You've burned %s today. This is the last warning.",
	},
}

// NotificationDispatcher wraps the external notifier with per-intensity
// cooldown throttling backed by the notification history table.
type NotificationDispatcher struct {
	repo      repository.UsageRepository
	notifier  Notifier
	cooldowns map[types.Intensity]time.Duration
	clock     Clock
	logger    logging.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewNotificationDispatcher creates a dispatcher. A nil cooldown table gets
// the built-in defaults; a nil clock gets the system clock.
func NewNotificationDispatcher(repo repository.UsageRepository, notifier Notifier, cooldowns map[types.Intensity]time.Duration, clock Clock, logger logging.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if cooldowns == nil {
		cooldowns = map[types.Intensity]time.Duration{
			types.IntensityMild:     24 * time.Hour,
			types.IntensityNormal:   12 * time.Hour,
			types.IntensityHarsh:    4 * time.Hour,
			types.IntensityCritical: 2 * time.Hour,
		}
	}
	return &NotificationDispatcher{
		repo:      repo,
		notifier:  notifier,
		cooldowns: cooldowns,
		clock:     clock,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TrySend dispatches an alert for (package, intensity) unless one was sent
// within the intensity's cooldown window. The last-sent record is written
// even when the underlying delivery fails, so back-to-back retries cannot
// bypass the cooldown. Returns whether a dispatch was attempted.
func (d *NotificationDispatcher) TrySend(ctx context.Context, packageName, appName string, intensity types.Intensity, usage time.Duration) (bool, error) {
	now := d.clock.Now()

	lastSent, err := d.repo.LastNotificationTime(ctx, packageName, intensity)
	switch {
	case err == nil:
		if cooldown, ok := d.cooldowns[intensity]; ok && now.Sub(lastSent) < cooldown {
			d.logger.Debug("Notification suppressed by cooldown",
				"package", packageName,
				"intensity", intensity.String(),
				"last_sent", lastSent)
			return false, nil
		}
	case repoerrors.IsNotFound(err):
		// First alert ever for this pair
	default:
		// A store failure means we cannot prove the cooldown has elapsed;
		// skip rather than risk a burst
		logging.LogError(d.logger, err, "TrySend.LastNotificationTime", map[string]interface{}{
			"package": packageName,
		})
		return false, err
	}

	title, body := d.composeMessage(appName, intensity, usage)

	var dispatchErr error
	if d.notifier != nil {
		dispatchErr = d.notifier.Send(title, body, intensity)
	}
	if dispatchErr != nil {
		storeErr := repoerrors.HandleDispatchError("TrySend", dispatchErr, packageName, intensity.String())
		logging.LogError(d.logger, storeErr, "TrySend", nil)
	}

	// Record the attempt regardless of delivery outcome
	rec := types.NotificationRecord{
		PackageName: packageName,
		Intensity:   intensity,
		Date:        now,
		SentAt:      now,
	}
	if err := d.repo.InsertNotification(ctx, rec); err != nil {
		logging.LogError(d.logger, err, "TrySend.InsertNotification", map[string]interface{}{
			"package": packageName,
		})
	}

	return true, nil
}

func (d *NotificationDispatcher) composeMessage(appName string, intensity types.Intensity, usage time.Duration) (string, string) {
	variants := messageVariants[intensity]
	if len(variants) == 0 {
		variants = messageVariants[types.IntensityMild]
	}

	d.mu.Lock()
	variant := variants[d.rng.Intn(len(variants))]
	d.mu.Unlock()

	title := fmt.Sprintf("Screen time: %s", appName)
	body := fmt.Sprintf(variant, formatUsage(usage))
	return title, body
}

// formatUsage renders a duration the way it reads in an alert body.
func formatUsage(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 && m > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", m)
}
