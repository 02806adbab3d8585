package services

import (
	"sync"
	"time"

	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"
)

// Coordinator turns monitoring events into a "should block" signal for an
// enforcement collaborator. It subscribes at construction and never mutates
// the components it observes.
type Coordinator struct {
	mu         sync.RWMutex
	blocked    map[string]time.Time // package -> when blocking was requested
	foreground string
	minBlock   types.Intensity
	logger     logging.Logger
}

// NewCoordinator creates a coordinator and subscribes it to the bus. Apps
// crossing a threshold at minBlock intensity or above are flagged for
// blocking until the next daily reset.
func NewCoordinator(bus *EventBus, minBlock types.Intensity, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	c := &Coordinator{
		blocked:  make(map[string]time.Time),
		minBlock: minBlock,
		logger:   logger,
	}
	bus.Subscribe(c.handle)
	return c
}

func (c *Coordinator) handle(event Event) {
	switch e := event.(type) {
	case ThresholdCrossedEvent:
		if e.Intensity < c.minBlock {
			return
		}
		c.mu.Lock()
		if _, already := c.blocked[e.PackageName]; !already {
			c.blocked[e.PackageName] = e.At
			c.logger.Info("Blocking signal raised",
				"package", e.PackageName,
				"intensity", e.Intensity.String())
		}
		c.mu.Unlock()
	case ForegroundChangedEvent:
		c.mu.Lock()
		c.foreground = e.PackageName
		c.mu.Unlock()
	}
}

// ShouldBlock reports whether the package has crossed a blocking threshold
// since the last reset.
func (c *Coordinator) ShouldBlock(packageName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocked[packageName]
	return ok
}

// CurrentForeground returns the most recently observed foreground package.
func (c *Coordinator) CurrentForeground() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.foreground
}

// Reset clears all blocking signals. Called as part of the daily reset.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = make(map[string]time.Time)
}
