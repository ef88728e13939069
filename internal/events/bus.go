// Package events carries route lifecycle events from the services to
// external sinks.
//
// Services publish on a Bus. A Forwarder subscribes to the bus and hands each
// event to every configured Sink (Kafka, MQTT). Publishing never blocks the
// caller: a subscriber whose buffer is full misses the event.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened.
type Kind string

const (
	RouteCreated          Kind = "route.created"
	RouteUpdated          Kind = "route.updated"
	RouteStopsReplaced    Kind = "route.stops_replaced"
	RouteStatusChanged    Kind = "route.status_changed"
	RouteMetricsComputed  Kind = "route.metrics_computed"
	RouteDeleted          Kind = "route.deleted"
	SimulationCreated     Kind = "simulation.created"
	SimulationMeasured    Kind = "simulation.measured"
	SimulationApplied     Kind = "simulation.applied"
	SimulationDiscarded   Kind = "simulation.discarded"
	PlacementsRevalidated Kind = "placements.revalidated"
)

// Event is published after the change it describes has committed.
type Event struct {
	Kind         Kind           `json:"kind"`
	RouteID      uuid.UUID      `json:"routeId"`
	SimulationID *uuid.UUID     `json:"simulationId,omitempty"`
	Version      int            `json:"version,omitempty"`
	At           time.Time      `json:"at"`
	Data         map[string]any `json:"data,omitempty"`
}

// Publisher is what services need from the bus.
type Publisher interface {
	Publish(Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

const subscriberBuffer = 64

// Bus fans events out to subscriber channels.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus { return &Bus{} }

// Publish sends e to all subscribers. Delivery is non-blocking.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
