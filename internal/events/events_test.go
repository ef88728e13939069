package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/pkg/logger"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	id := uuid.New()

	b.Publish(Event{Kind: RouteCreated, RouteID: id})

	for _, s := range []<-chan Event{s1, s2} {
		e := <-s
		assert.Equal(t, RouteCreated, e.Kind)
		assert.Equal(t, id, e.RouteID)
		assert.False(t, e.At.IsZero())
	}
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	_ = b.Subscribe()

	done := make(chan struct{})
	go func() {
		for range subscriberBuffer * 2 {
			b.Publish(Event{Kind: RouteUpdated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBus_UnsubscribeAndClose(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	b.Unsubscribe(s)
	_, ok := <-s
	assert.False(t, ok)

	s2 := b.Subscribe()
	b.Close()
	_, ok = <-s2
	assert.False(t, ok)

	// Publishing and subscribing after close are harmless.
	b.Publish(Event{Kind: RouteDeleted})
	_, ok = <-b.Subscribe()
	assert.False(t, ok)
}

type recordingSink struct {
	mu     sync.Mutex
	name   string
	got    []Event
	err    error
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestForwarder_DeliversToEverySink(t *testing.T) {
	b := NewBus()
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("down")}

	var failures []string
	var mu sync.Mutex
	f := NewForwarder(b, []Sink{ok, bad}, time.Second, logger.Nop{})
	f.OnError = func(sink string, _ Event, _ error) {
		mu.Lock()
		failures = append(failures, sink)
		mu.Unlock()
	}

	// Published before Run starts; the subscription already exists.
	b.Publish(Event{Kind: SimulationApplied, RouteID: uuid.New()})
	b.Publish(Event{Kind: RouteDeleted, RouteID: uuid.New()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return ok.count() == 2 && bad.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
	mu.Lock()
	assert.Equal(t, []string{"bad", "bad"}, failures)
	mu.Unlock()
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_KeysByRoute(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{w: w}
	id := uuid.New()

	require.NoError(t, sink.Send(context.Background(), Event{Kind: RouteStopsReplaced, RouteID: id, Version: 3}))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, id.String(), string(msg.Key))
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, string(RouteStopsReplaced), string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 3, decoded.Version)

	w.err = errors.New("leader not available")
	assert.Error(t, sink.Send(context.Background(), Event{Kind: RouteDeleted, RouteID: id}))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

// doneToken is a paho.Token that has already completed.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakePublisher struct {
	topics []string
	qos    []byte
	err    error
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, _ interface{}) paho.Token {
	p.topics = append(p.topics, topic)
	p.qos = append(p.qos, qos)
	return doneToken{err: p.err}
}

func (p *fakePublisher) Disconnect(uint) {}

func TestMQTTSink_PublishesPerRouteTopic(t *testing.T) {
	pub := &fakePublisher{}
	sink := &MQTTSink{cli: pub, prefix: "freight/routes"}
	id := uuid.New()

	require.NoError(t, sink.Send(context.Background(), Event{Kind: SimulationMeasured, RouteID: id}))
	assert.Equal(t, []string{"freight/routes/" + id.String() + "/simulation.measured"}, pub.topics)
	assert.Equal(t, []byte{1}, pub.qos)

	pub.err = errors.New("not connected")
	assert.Error(t, sink.Send(context.Background(), Event{Kind: RouteDeleted, RouteID: id}))
}
