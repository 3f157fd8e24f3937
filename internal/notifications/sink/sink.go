// Package sink delivers notifications to the external notification service.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classguard/pkg/config"
	"classguard/pkg/kafka"
	kafka_middleware "classguard/pkg/kafka/middleware"
	"classguard/pkg/model"
)

// ErrPermanent marks a delivery failure that will not succeed on retry.
var ErrPermanent = errors.New("permanent notification delivery failure")

// Sink is the at-least-once delivery boundary. Implementations must be
// safe for concurrent use; receivers tolerate duplicates.
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
	Close() error
}

// Envelope is the wire shape of a notification on every transport.
type Envelope struct {
	EventID     string                 `json:"event_id"`
	Type        model.NotificationType `json:"type"`
	RecipientID string                 `json:"recipient_id"`
	Payload     map[string]any         `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
}

func newEnvelope(eventID string, n model.Notification) Envelope {
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return Envelope{
		EventID:     eventID,
		Type:        n.Type,
		RecipientID: n.RecipientID,
		Payload:     n.Payload,
		CreatedAt:   createdAt.UTC(),
	}
}

// correlationID ties every notification of one schedule together.
func correlationID(n model.Notification) string {
	id, _ := n.Payload["schedule_id"].(string)
	return id
}

func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// New builds the sink selected by NOTIFICATION_TRANSPORT.
func New(cfg *config.Config) (Sink, error) {
	log := cfg.Log.With("component", "notification-sink", "transport", cfg.NotificationTransport)

	switch cfg.NotificationTransport {
	case config.TransportKafka:
		producer, err := kafka.NewProducer(cfg.Kafka, cfg.NotificationTopic, cfg.NotificationDLQTopic, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		if cfg.Kafka.EnableMiddleware {
			producer.Use(kafka_middleware.LoggingProducerMiddleware(log))
		}
		return NewKafkaSink(producer, cfg.ServiceName), nil
	case config.TransportRabbitMQ:
		return NewRabbitMQSink(AMQPDialer(cfg.RabbitMQURL, cfg.NotificationExchange), cfg.NotificationExchange, log)
	case config.TransportLog:
		return NewLogSink(log), nil
	default:
		return nil, fmt.Errorf("unknown notification transport: %s", cfg.NotificationTransport)
	}
}
