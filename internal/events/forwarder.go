package events

import (
	"context"
	"sync"
	"time"

	"github.com/shiva/freightroute/pkg/logger"
)

// Sink delivers events to an external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
	Close() error
}

// Forwarder drains a bus subscription into a set of sinks.
type Forwarder struct {
	bus         *Bus
	sub         <-chan Event
	sinks       []Sink
	sendTimeout time.Duration
	log         logger.Logger

	// OnError, when set, is called for every failed delivery.
	OnError func(sink string, e Event, err error)
}

// NewForwarder creates a forwarder subscribed to bus. Events published from
// here on are buffered until Run drains them. sendTimeout bounds one
// delivery to one sink.
func NewForwarder(bus *Bus, sinks []Sink, sendTimeout time.Duration, log logger.Logger) *Forwarder {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Forwarder{bus: bus, sub: bus.Subscribe(), sinks: sinks, sendTimeout: sendTimeout, log: log}
}

// Run forwards events until ctx is cancelled or the bus is closed, then
// closes every sink. It blocks; start it in its own goroutine.
func (f *Forwarder) Run(ctx context.Context) {
	sub := f.sub
	defer f.closeSinks()
	defer f.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			f.dispatch(ctx, e)
		}
	}
}

// dispatch sends e to all sinks concurrently and waits for them.
func (f *Forwarder) dispatch(ctx context.Context, e Event) {
	var wg sync.WaitGroup
	for _, s := range f.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
			defer cancel()
			if err := s.Send(sendCtx, e); err != nil {
				f.log.Warnf("forward %s for route %s to %s: %v", e.Kind, e.RouteID, s.Name(), err)
				if f.OnError != nil {
					f.OnError(s.Name(), e, err)
				}
				return
			}
			f.log.Debugf("forwarded %s for route %s to %s", e.Kind, e.RouteID, s.Name())
		}(s)
	}
	wg.Wait()
}

func (f *Forwarder) closeSinks() {
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			f.log.Warnf("close sink %s: %v", s.Name(), err)
		}
	}
}
