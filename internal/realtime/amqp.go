package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// AMQPPublisher is a Broadcaster that fans room events out through a RabbitMQ
// topic exchange. Routing key is "room.<id>", so external consumers (widget
// gateways, console backends) can bind per room or with a wildcard.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher dials the broker and declares the topic exchange.
func NewAMQPPublisher(log *slog.Logger, url, exchange string) (*AMQPPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		logger:   log.With(slog.String("component", "realtime-amqp")),
	}, nil
}

// Publish sends the event with at-most-once semantics; broker errors are
// logged and swallowed.
func (p *AMQPPublisher) Publish(roomID string, event Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	ch, err := p.conn.Channel()
	if err != nil {
		p.logger.Warn("open channel failed", slog.Any("error", err))
		return
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal event failed", slog.Any("error", err))
		return
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, "room."+roomID, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Warn("publish failed", slog.String("room_id", roomID), slog.Any("error", err))
	}
}

// Close tears down the broker connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}
