package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/shiva/freightroute/pkg/logger"
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

var newMQTTClient = func(opts *paho.ClientOptions) paho.Client {
	return paho.NewClient(opts)
}

// MQTTSink publishes events on <prefix>/<routeId>/<kind> with QoS 1, so a
// dashboard can subscribe to a single route.
type MQTTSink struct {
	cli    mqttPublisher
	prefix string
}

// NewMQTTSink connects to broker and returns a sink publishing under prefix.
func NewMQTTSink(broker, clientID, prefix string, log logger.Logger) (*MQTTSink, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	opts.ConnectTimeout = 5 * time.Second
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", broker, token.Error())
	}
	return &MQTTSink{cli: c, prefix: strings.TrimSuffix(prefix, "/")}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an event is published on.
func (s *MQTTSink) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, e.RouteID, e.Kind)
}

func (s *MQTTSink) Send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mqtt: encode %s: %w", e.Kind, err)
	}
	token := s.cli.Publish(s.Topic(e), 1, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish %s: %w", e.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish %s: %w", e.Kind, ctx.Err())
	}
}

func (s *MQTTSink) Close() error {
	s.cli.Disconnect(250)
	return nil
}
