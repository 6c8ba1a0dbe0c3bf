// Package service holds the adapters that connect the settlement engine to
// outside systems.  Publisher sends payment events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cafeteria-prebooking/internal/queue"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

const publishTimeout = 3 * time.Second

// Publisher implements settlement.Events over one long-lived AMQP
// connection.  The connection is opened lazily and reopened after any
// failure.  Publishing is serialised because an AMQP channel must not be
// shared between concurrent publishers.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ settlement.Events = (*Publisher)(nil)

// NewPublisher returns a Publisher for the broker at url.  No connection
// is made until the first event.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// BookingConfirmed publishes ev on the booking.confirmed queue.
func (p *Publisher) BookingConfirmed(ctx context.Context, ev settlement.ConfirmedEvent) error {
	return p.publish(ctx, queue.QueueBookingConfirmed, queue.NewBookingConfirmed(ev))
}

// WalletContributed publishes ev on the wallet.contributed queue.
func (p *Publisher) WalletContributed(ctx context.Context, ev settlement.ContributedEvent) error {
	return p.publish(ctx, queue.QueueWalletContributed, queue.NewWalletContributed(ev))
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}
	// the request may already be finishing; the event must still go out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Warnf("rabbitmq: publish %s: %v", routingKey, err)
		p.reset()
		return err
	}
	return nil
}

// channel returns the open channel, dialling and declaring the queues when
// there is none.  p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	for _, q := range queue.Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq declare %s: %w", q, err)
		}
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the current connection.  p.mu must be held.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close closes the connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
