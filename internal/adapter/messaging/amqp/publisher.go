package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Channel is the part of *amqp091.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements ports.EventPublisher on a RabbitMQ direct exchange.
type Publisher struct {
	conn     *amqp091.Connection // nil when built from a bare channel
	channel  Channel
	exchange string
	log      zerolog.Logger
	mu       sync.Mutex
}

// Dial connects to the broker at url and declares exchange.
func Dial(url, exchange string, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := NewPublisher(channel, exchange, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn

	log.Info().Str("exchange", exchange).Msg("AMQP publisher connected")
	return p, nil
}

// NewPublisher declares exchange on channel and returns a publisher using it.
func NewPublisher(channel Channel, exchange string, log zerolog.Logger) (*Publisher, error) {
	err := channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{channel: channel, exchange: exchange, log: log}, nil
}

// PublishTransaction publishes a persistent TransactionEvent for txn.
func (p *Publisher) PublishTransaction(ctx context.Context, txn *domain.Transaction) error {
	event := NewTransactionEvent(txn)
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    txn.ID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.log.Debug().
		Str("transaction_id", txn.ID.String()).
		Str("routing_key", event.RoutingKey()).
		Msg("Transaction event published")
	return nil
}

// Close closes the channel and, when owned, the connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
