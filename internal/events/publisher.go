// Package events publishes incident lifecycle events to an external bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types
const (
	IncidentCreated      = "incident.created"
	AlertAdded           = "incident.alert_added"
	SeverityChanged      = "incident.severity_changed"
	IncidentAcknowledged = "incident.acknowledged"
	IncidentResolved     = "incident.resolved"
	Escalated            = "incident.escalated"
	EscalationExhausted  = "incident.escalation_exhausted"
)

const writeTimeout = 5 * time.Second

// Event is one incident lifecycle transition
type Event struct {
	Type       string    `json:"type"`
	IncidentID string    `json:"incident_id"`
	AlertID    string    `json:"alert_id,omitempty"`
	Service    string    `json:"service,omitempty"`
	Status     string    `json:"status,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Level      int       `json:"level,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher emits incident events. Publish never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(ctx context.Context, e Event) {}

// Close does nothing
func (NoopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by incident id so one
// incident's events stay ordered on a single partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a synchronous producer for the topic
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	zap.L().Info("Kafka publisher configured",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
		zap.String("required_acks", "RequireOne"),
	)
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

// Publish writes one event. Failures are logged and dropped.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		zap.L().Error("Events: failed to marshal event", zap.String("type", e.Type), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.IncidentID),
		Value: value,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		zap.L().Warn("Events: failed to publish event",
			zap.String("type", e.Type),
			zap.String("incident_id", e.IncidentID),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
