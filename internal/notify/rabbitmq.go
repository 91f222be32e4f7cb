package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// RabbitMQConfig describes the exchange notifications are published to.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// publisher is the subset of *amqp.Channel used for publishing.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQNotifier publishes notifications to a topic exchange with routing
// key notify.<user_id>, for delivery by external channels (push, email).
type RabbitMQNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      publisher
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRabbitMQNotifier dials RabbitMQ and declares the exchange.
func NewRabbitMQNotifier(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitMQNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "edith.notifications"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	n := newRabbitMQNotifier(ch, exchange, logger)
	n.conn = conn
	n.ch = ch
	return n, nil
}

func newRabbitMQNotifier(pub publisher, exchange string, logger *zap.Logger) *RabbitMQNotifier {
	return &RabbitMQNotifier{
		pub:      pub,
		exchange: exchange,
		timeout:  5 * time.Second,
		logger:   logging.OrNop(logger),
	}
}

// RoutingKey returns the routing key used for a user's notifications.
func RoutingKey(userID string) string {
	return "notify." + userID
}

// Send implements Notifier.
func (n *RabbitMQNotifier) Send(ctx context.Context, userID, title, body string, actions []Action) bool {
	if n == nil || n.pub == nil {
		return false
	}
	msg := Notification{
		Type:      TypeNotification,
		ID:        "nt_" + uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Actions:   actions,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		n.logger.Warn("failed to encode notification", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	err = n.pub.PublishWithContext(ctx, n.exchange, RoutingKey(userID), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Body:         data,
	})
	if err != nil {
		n.logger.Warn("failed to publish notification", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

// Close closes the channel and connection.
func (n *RabbitMQNotifier) Close() error {
	if n == nil {
		return nil
	}
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
