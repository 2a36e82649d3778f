package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures        = 5
	openTimeout        = 30 * time.Second
	maxBackoff         = 30 * time.Second
	publishTimeout     = 5 * time.Second
	maxPublishAttempts = 3
)

// ErrPoison marks a delivery that can never be processed; it is dropped
// instead of requeued.
var ErrPoison = errors.New("unprocessable message")

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if _, err := client.connectLocked(); err != nil {
		return nil, err
	}
	return client, nil
}

// Queue returns the queue the client publishes to and consumes from.
func (c *Client) Queue() string {
	return c.queueName
}

func (c *Client) connectLocked() (*amqp091.Channel, error) {
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp091.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("dial AMQP: %w", err)
		}
		c.conn = conn
	}

	channel, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.channel = channel
	return channel, nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name on the direct exchange.
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// PublishTransactionSync publishes a transaction sync message
func (c *Client) PublishTransactionSync(ctx context.Context, id, version int64) error {
	return c.publish(ctx, TypeTransactionSync, NewTransactionSyncMessage(id, version))
}

// PublishTransactionDelete publishes a transaction delete message
func (c *Client) PublishTransactionDelete(ctx context.Context, id int64, title string) error {
	return c.publish(ctx, TypeTransactionDelete, NewTransactionDeleteMessage(id, title))
}

// PublishOccurrenceDue publishes a reminder for an upcoming occurrence
func (c *Client) PublishOccurrenceDue(ctx context.Context, msg *OccurrenceDueMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return c.publish(ctx, TypeOccurrenceDue, msg)
}

func (c *Client) publish(ctx context.Context, msgType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, dropping %s message", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.publishOnce(ctx, msgType, body)
		if lastErr == nil {
			c.recordSuccess()
			slog.InfoContext(ctx, "Published message",
				"type", msgType,
				"exchange", c.exchangeName,
				"queue", c.queueName)
			return nil
		}
		if !isConnectionError(lastErr) {
			break
		}
		slog.WarnContext(ctx, "AMQP connection error, reconnecting",
			"type", msgType, "attempt", attempt+1, "error", lastErr)
		c.resetConnection()
	}

	c.recordFailure()
	return fmt.Errorf("publish %s: %w", msgType, lastErr)
}

func (c *Client) publishOnce(ctx context.Context, msgType string, body []byte) error {
	c.mu.Lock()
	ch, err := c.connectLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Type:         msgType,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Handlers receives decoded messages. A nil handler rejects its type.
type Handlers struct {
	TransactionSync   func(context.Context, *TransactionSyncMessage) error
	TransactionDelete func(context.Context, *TransactionDeleteMessage) error
	OccurrenceDue     func(context.Context, *OccurrenceDueMessage) error
}

// Dispatch decodes body according to msgType and calls the matching handler.
// Decoding failures and unhandled types wrap ErrPoison.
func (h Handlers) Dispatch(ctx context.Context, msgType string, body []byte) error {
	switch msgType {
	case TypeTransactionSync:
		if h.TransactionSync == nil {
			break
		}
		msg, err := TransactionSyncMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		return h.TransactionSync(ctx, msg)
	case TypeTransactionDelete:
		if h.TransactionDelete == nil {
			break
		}
		msg, err := TransactionDeleteMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		return h.TransactionDelete(ctx, msg)
	case TypeOccurrenceDue:
		if h.OccurrenceDue == nil {
			break
		}
		msg, err := OccurrenceDueMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		return h.OccurrenceDue(ctx, msg)
	}
	return fmt.Errorf("%w: no handler for type %q", ErrPoison, msgType)
}

// Consume delivers messages to handlers until ctx is cancelled, reconnecting
// with exponential backoff when the broker goes away.
func (c *Client) Consume(ctx context.Context, handlers Handlers) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, handlers)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		delay := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Consumer interrupted, reconnecting",
			"queue", c.queueName, "error", err, "retry_in", delay)
		c.resetConnection()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handlers Handlers) error {
	c.mu.Lock()
	ch, err := c.connectLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handleDelivery(ctx, handlers, delivery)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, handlers Handlers, d amqp091.Delivery) {
	err := handlers.Dispatch(ctx, d.Type, d.Body)
	switch {
	case err == nil:
		d.Ack(false)
		slog.DebugContext(ctx, "Processed message", "type", d.Type)
	case errors.Is(err, ErrPoison):
		slog.ErrorContext(ctx, "Dropping unprocessable message", "type", d.Type, "error", err)
		d.Nack(false, false)
	default:
		slog.ErrorContext(ctx, "Failed to handle message", "type", d.Type, "error", err)
		d.Nack(false, true)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// isCircuitOpen reports whether publishes should be rejected. An open
// breaker moves to half-open once openTimeout has passed since the last
// failure, letting one publish through as a probe.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
