package main

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-orders/pkg/kafka"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-orders/pkg/pubsub"
)

// outboundMessage is one outbox row ready for the wire.
type outboundMessage struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Transport delivers outbound messages to a broker.
type Transport interface {
	Name() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic string, msg outboundMessage) error
}

type pubsubTransport struct {
	client *pubsub.Client
}

func newPubSubTransport(client *pubsub.Client) *pubsubTransport {
	return &pubsubTransport{client: client}
}

func (t *pubsubTransport) Name() string { return "pubsub" }

func (t *pubsubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *pubsubTransport) Publish(ctx context.Context, topic string, msg outboundMessage) error {
	pub := t.client.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: msg.Attributes})
	if result == nil {
		return errors.New("publish result is nil")
	}
	_, err := result.Get(ctx)
	return err
}

type kafkaProducer interface {
	Topic() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

type kafkaTransport struct {
	producer kafkaProducer
}

var _ kafkaProducer = (*kafka.Producer)(nil)

func newKafkaTransport(producer kafkaProducer) *kafkaTransport {
	return &kafkaTransport{producer: producer}
}

func (t *kafkaTransport) Name() string { return "kafka" }

func (t *kafkaTransport) Ping(ctx context.Context) error { return t.producer.Ping(ctx) }

// Publish keys by aggregate id so every event for one order lands on the
// same partition in order.
func (t *kafkaTransport) Publish(ctx context.Context, topic string, msg outboundMessage) error {
	if topic != t.producer.Topic() {
		return registry.NewNonRetryableError(fmt.Errorf("kafka producer writes %s, event routed to %s", t.producer.Topic(), topic))
	}
	return t.producer.Publish(ctx, msg.Key, msg.Data, msg.Attributes)
}
