// Package kafka wraps segmentio/kafka-go writers with OpenTelemetry propagation.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/storefront-orders/pkg/config"
)

// MessageWriter is the single-message producer surface.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

// Producer writes keyed messages to one topic.
type Producer struct {
	writer  MessageWriter
	brokers []string
	topic   string
}

// NewProducer builds a traced writer for cfg.OrdersTopic. Messages are written one
// at a time so each carries its own span context in the headers.
func NewProducer(cfg config.KafkaConfig, serviceName string, tp trace.TracerProvider) (*Producer, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.OrdersTopic == "" {
		return nil, errors.New("kafka orders topic is required")
	}

	base := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		BatchSize:    cfg.BatchSize,
		RequiredAcks: kafkago.RequireAll,
	}

	writer, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(cfg.OrdersTopic),
			attribute.String("messaging.kafka.client_id", serviceName),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("wrap kafka writer: %w", err)
	}
	return &Producer{writer: writer, brokers: brokers, topic: cfg.OrdersTopic}, nil
}

// NewProducerWithWriter is used by tests to swap the transport.
func NewProducerWithWriter(w MessageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

// Topic reports the topic every message is written to.
func (p *Producer) Topic() string {
	return p.topic
}

// Publish writes value under key with the given headers.
func (p *Producer) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	msg := kafkago.Message{Key: []byte(key), Value: value, Time: time.Now().UTC()}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return p.writer.WriteMessage(ctx, msg)
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return nil
	}
	var dialer net.Dialer
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
