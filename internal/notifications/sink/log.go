package sink

import (
	"context"

	"classguard/pkg/logger"
	"classguard/pkg/model"
)

// LogSink writes notifications to the structured log. Used when no broker
// is configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("Notification emitted",
		"recipient_id", n.RecipientID,
		"type", n.Type,
		"payload", n.Payload,
	)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
