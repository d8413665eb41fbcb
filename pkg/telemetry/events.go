package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a lifecycle event emitted by the validation engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ValidationID is the associated validation run, if applicable.
	ValidationID string `json:"validation_id,omitempty"`

	// Parameter is the associated parameter name, if applicable.
	Parameter string `json:"parameter,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for the engine lifecycle.
const (
	EventTypeInitialized         = "engine.initialized"
	EventTypeShutdown            = "engine.shutdown"
	EventTypeValidationStarted   = "validation.started"
	EventTypeValidationCompleted = "validation.completed"
	EventTypeValidationError     = "validation.error"
	EventTypeCatalogLoaded       = "catalog.loaded"
	EventTypeCatalogReloaded     = "catalog.reloaded"
	EventTypeBudgetExceeded      = "validation.budget_exceeded"
	EventTypeCacheCleared        = "cache.cleared"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishInitialized publishes an engine initialized event.
func (ep *EventPublisher) PublishInitialized(catalogSource string, parameters int) error {
	return ep.Publish(Event{
		Type:    EventTypeInitialized,
		Source:  "engine",
		Message: fmt.Sprintf("Engine initialized with %d parameters from %s", parameters, catalogSource),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"catalog_source": catalogSource,
			"parameters":     parameters,
		},
	})
}

// PublishShutdown publishes an engine shutdown event.
func (ep *EventPublisher) PublishShutdown(validations uint64) error {
	return ep.Publish(Event{
		Type:    EventTypeShutdown,
		Source:  "engine",
		Message: fmt.Sprintf("Engine shut down after %d validations", validations),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"validations": validations,
		},
	})
}

// PublishValidationStarted publishes a validation started event.
func (ep *EventPublisher) PublishValidationStarted(validationID, level string, parameters int) error {
	return ep.Publish(Event{
		Type:         EventTypeValidationStarted,
		Source:       "engine",
		ValidationID: validationID,
		Message:      fmt.Sprintf("Validation %s started at level %s over %d parameters", validationID, level, parameters),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"level":      level,
			"parameters": parameters,
		},
	})
}

// PublishValidationCompleted publishes a validation completed event.
func (ep *EventPublisher) PublishValidationCompleted(validationID string, valid bool, errors, warnings int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:         EventTypeValidationCompleted,
		Source:       "engine",
		ValidationID: validationID,
		Message:      fmt.Sprintf("Validation %s completed: valid=%t errors=%d warnings=%d", validationID, valid, errors, warnings),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"valid":    valid,
			"errors":   errors,
			"warnings": warnings,
			"duration": duration.Seconds(),
		},
	})
}

// PublishValidationError publishes a validation error event. This is an
// engine-level failure, not an invalid configuration.
func (ep *EventPublisher) PublishValidationError(validationID, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypeValidationError,
		Source:       "engine",
		ValidationID: validationID,
		Message:      fmt.Sprintf("Validation %s failed: %s", validationID, reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishCatalogLoaded publishes a catalog loaded event.
func (ep *EventPublisher) PublishCatalogLoaded(source string, parameters, classes int) error {
	return ep.Publish(Event{
		Type:    EventTypeCatalogLoaded,
		Source:  "catalog",
		Message: fmt.Sprintf("Catalog loaded from %s: %d parameters, %d MO classes", source, parameters, classes),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"catalog_source": source,
			"parameters":     parameters,
			"mo_classes":     classes,
		},
	})
}

// PublishCatalogReloaded publishes a catalog reloaded event.
func (ep *EventPublisher) PublishCatalogReloaded(source string, parameters int) error {
	return ep.Publish(Event{
		Type:    EventTypeCatalogReloaded,
		Source:  "catalog",
		Message: fmt.Sprintf("Catalog reloaded from %s: %d parameters", source, parameters),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"catalog_source": source,
			"parameters":     parameters,
		},
	})
}

// PublishBudgetExceeded publishes a latency budget exceeded event.
func (ep *EventPublisher) PublishBudgetExceeded(validationID string, elapsed, budget time.Duration) error {
	return ep.Publish(Event{
		Type:         EventTypeBudgetExceeded,
		Source:       "engine",
		ValidationID: validationID,
		Message:      fmt.Sprintf("Validation %s took %s, over the %s budget", validationID, elapsed, budget),
		Level:        EventLevelWarning,
		Data: map[string]interface{}{
			"elapsed": elapsed.Seconds(),
			"budget":  budget.Seconds(),
		},
	})
}

// PublishCacheCleared publishes a cache cleared event.
func (ep *EventPublisher) PublishCacheCleared(entries int) error {
	return ep.Publish(Event{
		Type:    EventTypeCacheCleared,
		Source:  "engine",
		Message: fmt.Sprintf("Validation cache cleared (%d entries)", entries),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"entries": entries,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-time.After(ep.config.FlushInterval):
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByValidationID creates a filter that only allows events for a
// specific validation run.
func FilterByValidationID(validationID string) EventFilter {
	return func(event Event) bool {
		return event.ValidationID == validationID
	}
}
