// Package audit publishes lifecycle events of keys and authorization records.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes lifecycle events as JSON to a Kafka topic. Events never
// carry token values or key material.
type KafkaPublisher struct {
	writer messageWriter
	logger logger.Logger
}

var _ service.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher for cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaPublisher(writer, log)
}

func newKafkaPublisher(writer messageWriter, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: log.WithComponent("kafka_publisher")}
}

// Publish sends event, filling in its ID and timestamp when unset. Events of one
// key or record share a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return errors.ErrInternal("failed to marshal lifecycle event").WithCause(err)
	}

	msg := kafka.Message{
		Key:   []byte(partitionKey(event)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "Failed to write lifecycle event", err,
			logger.String("event_type", string(event.Type)),
			logger.String("event_id", event.ID),
		)
		return errors.ErrUnavailable("kafka").WithCause(err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func partitionKey(event models.LifecycleEvent) string {
	switch {
	case event.KeyID != "":
		return event.KeyID
	case event.RecordID != "":
		return event.RecordID
	default:
		return string(event.Type)
	}
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

var _ service.EventPublisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, models.LifecycleEvent) error { return nil }
func (NoopPublisher) Close() error                                         { return nil }

// NewEventPublisher returns a Kafka publisher when cfg is enabled, a NoopPublisher otherwise.
func NewEventPublisher(cfg config.KafkaConfig, log logger.Logger) service.EventPublisher {
	if !cfg.Enabled {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, log)
}
