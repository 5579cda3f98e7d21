package events

import (
	"strings"
	"sync"
	"time"
)

const (
	// EventTypeRunStarted identifies the start of a harness run.
	EventTypeRunStarted = "RunStarted"
	// EventTypeScenarioResult identifies one completed scenario.
	EventTypeScenarioResult = "ScenarioResult"
	// EventTypeRunCompleted identifies the end of a harness run.
	EventTypeRunCompleted = "RunCompleted"
)

const (
	// SeverityInfo indicates informational event severity.
	SeverityInfo = "INFO"
	// SeverityError indicates failure event severity.
	SeverityError = "ERROR"
)

// Event is the normalized message delivered through the in-process event bus.
type Event struct {
	Type      string
	Timestamp time.Time
	Scenario  string
	Payload   any
	Severity  string
}

// Handler consumes a published event.
type Handler func(Event)

// Bus defines event subscription and publish behavior.
type Bus interface {
	Subscribe(eventType string, handler Handler)
	SubscribeAll(handler Handler)
	Publish(event Event)
}

// InMemoryBus is a synchronous in-process pub/sub bus. Handlers run inline on
// the publisher's goroutine, so subscribers observe events in publish order.
// The harness is strictly sequential and streams its report line by line;
// inline delivery keeps result lines ordered without any draining protocol.
type InMemoryBus struct {
	mu           sync.RWMutex
	typedSubs    map[string][]Handler
	wildcardSubs []Handler
}

// New creates an in-memory event bus.
func New() *InMemoryBus {
	return &InMemoryBus{
		typedSubs:    make(map[string][]Handler),
		wildcardSubs: make([]Handler, 0),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	normalizedType := strings.TrimSpace(eventType)
	if normalizedType == "" || handler == nil {
		return
	}

	b.mu.Lock()
	b.typedSubs[normalizedType] = append(b.typedSubs[normalizedType], handler)
	b.mu.Unlock()
}

// SubscribeAll registers a handler that receives every published event.
func (b *InMemoryBus) SubscribeAll(handler Handler) {
	if handler == nil {
		return
	}

	b.mu.Lock()
	b.wildcardSubs = append(b.wildcardSubs, handler)
	b.mu.Unlock()
}

// Publish delivers an event to typed subscribers and wildcard subscribers.
func (b *InMemoryBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	typed, wildcard := b.snapshotSubscribers(strings.TrimSpace(event.Type))
	for _, handler := range typed {
		handler(event)
	}
	for _, handler := range wildcard {
		handler(event)
	}
}

func (b *InMemoryBus) snapshotSubscribers(eventType string) ([]Handler, []Handler) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := make([]Handler, len(b.typedSubs[eventType]))
	copy(typed, b.typedSubs[eventType])

	wildcard := make([]Handler, len(b.wildcardSubs))
	copy(wildcard, b.wildcardSubs)

	return typed, wildcard
}

var _ Bus = (*InMemoryBus)(nil)
