package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"classguard/pkg/logger"
	"classguard/pkg/model"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the sink publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel with the exchange declared, plus the connection
// that owns it.
type Dialer func() (Channel, io.Closer, error)

// AMQPDialer dials url and declares a durable topic exchange.
func AMQPDialer(url, exchange string) Dialer {
	return func() (Channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange: %w", err)
		}
		return ch, conn, nil
	}
}

// RabbitMQSink publishes persistent JSON messages routed by
// "notification.<type>". A closed channel is redialed on the next send.
type RabbitMQSink struct {
	mu       sync.Mutex
	dial     Dialer
	ch       Channel
	conn     io.Closer
	exchange string
	closed   bool
	log      *logger.Logger
}

func NewRabbitMQSink(dial Dialer, exchange string, log *logger.Logger) (*RabbitMQSink, error) {
	s := &RabbitMQSink{dial: dial, exchange: exchange, log: log}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RabbitMQSink) connect() error {
	ch, conn, err := s.dial()
	if err != nil {
		return err
	}
	s.ch, s.conn = ch, conn
	return nil
}

func RoutingKey(t model.NotificationType) string {
	return "notification." + string(t)
}

func (s *RabbitMQSink) Send(ctx context.Context, n model.Notification) error {
	env := newEnvelope(uuid.NewString(), n)
	body, err := json.Marshal(env)
	if err != nil {
		return permanent(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return permanent(errors.New("rabbitmq sink is closed"))
	}
	if s.ch == nil {
		if err := s.connect(); err != nil {
			return err
		}
		s.log.Info("Reconnected to RabbitMQ", "exchange", s.exchange)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID,
		CorrelationId: correlationID(n),
		Type:          string(n.Type),
		Timestamp:     env.CreatedAt,
		Body:          body,
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(n.Type), false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		s.dropConnection()
	}
	return err
}

func (s *RabbitMQSink) dropConnection() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.ch, s.conn = nil, nil
}

func (s *RabbitMQSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.ch != nil {
		err = s.ch.Close()
	}
	if s.conn != nil {
		if connErr := s.conn.Close(); err == nil {
			err = connErr
		}
	}
	s.ch, s.conn = nil, nil
	return err
}
