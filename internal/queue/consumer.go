package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AuditLogFile is the file the consumer appends to inside its log directory.
const AuditLogFile = "audit.log"

// Consumer drains EventsQueue and appends one line per event to
// <LogDir>/audit.log.
type Consumer struct {
	URL    string
	LogDir string
	Log    *zap.Logger

	mu sync.Mutex // serialises writes to the log file
}

// NewConsumer returns a consumer for the broker at url.
func NewConsumer(url, logDir string, log *zap.Logger) *Consumer {
	if logDir == "" {
		logDir = "logs"
	}
	return &Consumer{URL: url, LogDir: logDir, Log: log.Named("audit-consumer")}
}

// Run connects to RabbitMQ, declares the durable events queue and consumes
// it until ctx is cancelled.  Broker failures are retried with exponential
// backoff capped at 30s; a message that cannot be handled is rejected
// without requeue so it cannot block the queue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(EventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(d.Body); err != nil {
				c.Log.Error("handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event body and appends its audit line.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev DinerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.LogDir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.LogDir, AuditLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human-readable audit line.
func FormatLine(ev DinerEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | week=%s", ev.OccurredAt, describe(ev), ev.Week)
	if ev.RegistrantID != 0 {
		fmt.Fprintf(&b, " | registrant_id=%d", ev.RegistrantID)
	}
	if ev.UserID != 0 {
		fmt.Fprintf(&b, " | user_id=%d", ev.UserID)
	}
	if ev.RestaurantID != nil {
		fmt.Fprintf(&b, " | restaurant_id=%d", *ev.RestaurantID)
	}
	if ev.ActorID != 0 {
		fmt.Fprintf(&b, " | admin_id=%d", ev.ActorID)
	}
	if ev.Count != 0 {
		fmt.Fprintf(&b, " | count=%d", ev.Count)
	}
	fmt.Fprintf(&b, " | event_id=%s\n", ev.ID)
	return b.String()
}

func describe(ev DinerEvent) string {
	switch ev.Type {
	case EventRegistered:
		return "Registered"
	case EventCancelled:
		return "Cancelled"
	case EventRevealed:
		return "Revealed"
	case EventOverride:
		return "Admin override " + ev.Action
	}
	return ev.Type
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
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
