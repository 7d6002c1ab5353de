package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPSink publishes envelopes to a durable topic exchange. Routing keys are
// "<event>.<room>", e.g. "new_message.chat_42".
type AMQPSink struct {
	conn     *amqp091.Connection
	exchange string
	logger   zerolog.Logger
}

// DialAMQP connects to url and declares the exchange.
func DialAMQP(url, exchange string, logger zerolog.Logger) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPSink{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With().Str("component", "notify.amqp").Logger(),
	}, nil
}

// RoutingKey returns the routing key for an event published to room.
func RoutingKey(room, event string) string {
	return event + "." + room
}

func (s *AMQPSink) Publish(ctx context.Context, room, event string, payload any) error {
	body, err := json.Marshal(NewEnvelope(room, event, payload))
	if err != nil {
		return err
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open amqp channel: %w", err)
	}
	defer ch.Close()

	key := RoutingKey(room, event)
	err = ch.PublishWithContext(ctx, s.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         event,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Str("exchange", s.exchange).Msg("published")
	return nil
}

// Close closes the connection.
func (s *AMQPSink) Close() error {
	return s.conn.Close()
}
