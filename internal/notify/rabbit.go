package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp091.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// RabbitPublisher publishes events as JSON to a durable topic exchange, keyed by Event.Kind.
type RabbitPublisher struct {
	exchange string
	conn     *amqp091.Connection
	open     func() (amqpChannel, error)

	mu      sync.Mutex
	channel amqpChannel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewRabbitPublisher dials the broker and opens a channel.
func NewRabbitPublisher(amqpURL, exchange string) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	p := &RabbitPublisher{
		exchange: exchange,
		conn:     conn,
		open: func() (amqpChannel, error) {
			return conn.Channel()
		},
	}
	if p.channel, err = p.open(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return p, nil
}

func newRabbitPublisherWith(exchange string, open func() (amqpChannel, error)) (*RabbitPublisher, error) {
	ch, err := open()
	if err != nil {
		return nil, err
	}
	return &RabbitPublisher{exchange: exchange, open: open, channel: ch}, nil
}

// Publish declares the exchange and sends the event. A failed channel is reopened
// once before giving up.
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, event.Kind, body)
	if err == nil {
		return nil
	}

	slog.Warn("rabbitmq publish failed; reopening channel",
		"exchange", p.exchange, "routing_key", event.Kind, "error", err)
	ch, openErr := p.open()
	if openErr != nil {
		return errors.Join(err, openErr)
	}
	_ = p.channel.Close()
	p.channel = ch
	return p.publish(ctx, event.Kind, body)
}

func (p *RabbitPublisher) publish(ctx context.Context, key string, body []byte) error {
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
