package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PaymentLogFile is the file, under the log directory, the consumer
// appends to.
const PaymentLogFile = "payments.log"

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

var errDeliveriesClosed = errors.New("deliveries channel closed")

// StartPaymentConsumer reads both payment queues and appends one line per
// event to <logDir>/payments.log.  Broker failures are retried with
// exponential backoff.  It returns ctx.Err() once ctx is cancelled.
func StartPaymentConsumer(ctx context.Context, url, logDir string) error {
	backoff := minBackoff
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warnf("payment-consumer: dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		err = consumeLoop(ctx, conn, logDir)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("payment-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logDir string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warnf("payment-consumer: set QoS: %v", err)
	}
	deliveries := make([]<-chan amqp.Delivery, 0, len(Queues))
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		deliveries = append(deliveries, msgs)
	}
	log.Infof("payment-consumer: consuming %v", Queues)

	confirmed, contributed := deliveries[0], deliveries[1]
	for {
		var (
			d    amqp.Delivery
			open bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, open = <-confirmed:
		case d, open = <-contributed:
		}
		if !open {
			return errDeliveriesClosed
		}
		if err := handleDelivery(logDir, d.RoutingKey, d.Body); err != nil {
			log.Errorf("payment-consumer: handle %s message: %v", d.RoutingKey, err)
			// do not requeue a message that cannot be decoded or written
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
}

func handleDelivery(logDir, queue string, body []byte) error {
	line, err := FormatLine(queue, body)
	if err != nil {
		return err
	}
	return appendLine(logDir, line)
}

// FormatLine renders one event of the given queue as a single log line.
func FormatLine(queue string, body []byte) (string, error) {
	switch queue {
	case QueueBookingConfirmed:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", queue, err)
		}
		return fmt.Sprintf("[%s] Booking confirmed | event_id=%s | booking_id=%d | reference=%s | slot_id=%d | settled_by=%d | total=%s\n",
			ev.ConfirmedAt.Format(time.RFC3339), ev.EventID, ev.BookingID, ev.BookingReference, ev.SlotID, ev.SettledBy, ev.TotalAmount), nil
	case QueueWalletContributed:
		var ev WalletContributedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", queue, err)
		}
		return fmt.Sprintf("[%s] Wallet contribution | event_id=%s | booking_id=%d | user_id=%d | amount=%s | booking_wallet=%s | personal_balance=%s\n",
			ev.ContributedAt.Format(time.RFC3339), ev.EventID, ev.BookingID, ev.UserID, ev.Amount, ev.BookingWalletBalance, ev.PersonalBalance), nil
	}
	return "", fmt.Errorf("unknown queue %q", queue)
}

func appendLine(dir, line string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, PaymentLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
