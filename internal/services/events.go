package services

import (
	"sync"
	"time"

	"focuswatch/internal/infrastructure/logging"
	"focuswatch/internal/types"
)

// ThresholdCrossedEvent fires when a monitored app crosses an alert
// threshold. Fire-and-notify; producers expect no return value.
type ThresholdCrossedEvent struct {
	PackageName string
	AppName     string
	Intensity   types.Intensity
	At          time.Time
}

// ForegroundChangedEvent fires when the foreground app changes between ticks.
type ForegroundChangedEvent struct {
	PackageName string
	AppName     string
	At          time.Time
}

// Event is the union of monitoring events carried by the bus.
type Event interface{ isEvent() }

func (ThresholdCrossedEvent) isEvent()  {}
func (ForegroundChangedEvent) isEvent() {}

// EventBus delivers typed monitoring events to subscribers registered at
// construction time. Delivery is synchronous and a panicking subscriber
// never takes the publisher down with it.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []func(Event)
	logger      logging.Logger
}

// NewEventBus creates an empty event bus.
func NewEventBus(logger logging.Logger) *EventBus {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &EventBus{logger: logger}
}

// Subscribe registers a callback for all events. Intended to be called while
// wiring components, before any publisher runs.
func (b *EventBus) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish delivers an event to every subscriber.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]func(Event), len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(fn, event)
	}
}

func (b *EventBus) deliver(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event subscriber panicked", "panic", r)
		}
	}()
	fn(event)
}
