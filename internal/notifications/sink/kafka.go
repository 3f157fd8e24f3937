package sink

import (
	"context"

	"classguard/pkg/kafka"
	"classguard/pkg/model"

	"github.com/google/uuid"
)

const envelopeSchemaVersion = "1"

type publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per notification, keyed by recipient so
// a recipient's notifications stay ordered within a partition.
type KafkaSink struct {
	producer publisher
	source   string
}

func NewKafkaSink(producer publisher, source string) *KafkaSink {
	return &KafkaSink{producer: producer, source: source}
}

func (s *KafkaSink) Send(ctx context.Context, n model.Notification) error {
	eventID := uuid.NewString()
	env := newEnvelope(eventID, n)
	msg, err := kafka.NewMessage().
		WithKey(n.RecipientID).
		WithValue(env).
		WithTimestamp(env.CreatedAt).
		WithEventID(eventID).
		WithEventType(string(n.Type)).
		WithCorrelationID(correlationID(n)).
		WithSchemaVersion(envelopeSchemaVersion).
		WithSource(s.source).
		Build()
	if err != nil {
		return permanent(err)
	}

	if err := s.producer.Publish(ctx, msg); err != nil {
		if kafka.IsPermanent(err) {
			return permanent(err)
		}
		return err
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
