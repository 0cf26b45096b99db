// Package events provides event publishing and subscription for the inbox.
package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/tasker/internal/models"
)

// EventHandler is a callback function invoked when an event matches a subscription.
type EventHandler func(event *models.Event)

// Repository persists published events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// Filter selects events for a subscriber. Empty fields match everything.
type Filter struct {
	EventTypes  []models.EventType
	EntityTypes []models.EntityType
	EntityID    string
}

// Matches reports whether event passes every non-empty criterion.
func (f *Filter) Matches(event *models.Event) bool {
	switch {
	case event == nil:
		return false
	case len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type):
		return false
	case len(f.EntityTypes) > 0 && !slices.Contains(f.EntityTypes, event.EntityType):
		return false
	case f.EntityID != "" && event.EntityID != f.EntityID:
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler EventHandler
}

// Publisher defines the interface for event publishing and subscription.
type Publisher interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event *models.Event)

	// Subscribe registers a handler to receive events matching the filter.
	Subscribe(id string, filter Filter, handler EventHandler) error

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher using in-process pub/sub.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	repo          Repository
	now           func() time.Time
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithRepository configures the publisher to also persist events.
func WithRepository(repo Repository) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.repo = repo
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *InMemoryPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to all matching subscribers.
// If a repository is configured, the event is also persisted.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *models.Event) {
	if event == nil {
		return
	}
	p.stamp(event)

	if p.repo != nil {
		// Best effort: persistence never blocks delivery.
		_ = p.repo.Create(ctx, event)
	}

	p.mu.RLock()
	var handlers []EventHandler
	for _, sub := range p.subscriptions {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	// Invoke handlers outside the lock to avoid deadlocks
	for _, handler := range handlers {
		handler(event)
	}
}

func (p *InMemoryPublisher) stamp(event *models.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
}

// Subscribe registers a handler to receive events matching the filter.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler EventHandler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}

	p.subscriptions[id] = &subscription{
		id:      id,
		filter:  filter,
		handler: handler,
	}

	return nil
}

// SubscribeChannel delivers matching events to a buffered channel and returns
// it with a cancel func. Events are dropped when the buffer is full.
func (p *InMemoryPublisher) SubscribeChannel(filter Filter, buffer int) (<-chan *models.Event, func(), error) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *models.Event, buffer)
	id := "chan-" + uuid.NewString()

	var once sync.Once
	var closeMu sync.RWMutex
	closed := false
	handler := func(event *models.Event) {
		closeMu.RLock()
		defer closeMu.RUnlock()
		if closed {
			return
		}
		select {
		case ch <- event:
		default:
		}
	}
	if err := p.Subscribe(id, filter, handler); err != nil {
		return nil, nil, err
	}

	cancel := func() {
		once.Do(func() {
			_ = p.Unsubscribe(id)
			closeMu.Lock()
			closed = true
			close(ch)
			closeMu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}

	delete(p.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = make(map[string]*subscription)
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
