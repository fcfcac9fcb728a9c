// Package amqp carries entry-change notifications into the insight worker and
// fans finished insight reports out to other subscribers.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/rabbitmq/amqp091-go"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

const (
	circuitClosed int32 = iota
	circuitOpen
	circuitHalfOpen
)

const (
	defaultMaxFailures    = 5
	defaultCircuitTimeout = 30 * time.Second
	maxBackoff            = 30 * time.Second
	publishTimeout        = 5 * time.Second
)

var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	errDeliveriesClosed = errors.New("delivery channel closed")
)

// Config describes the broker topology. Queue receives entries.changed.
type Config struct {
	URL          string
	Exchange     string
	Queue        string
	DialAttempts uint
	DialDelay    time.Duration
}

type Client struct {
	url          string
	exchangeName string
	queueName    string
	dialAttempts uint
	dialDelay    time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state          int32
	failureCount   int64
	lastFailure    time.Time
	maxFailures    int64
	circuitTimeout time.Duration
}

// NewClient dials the broker, retrying connection errors, and declares the
// exchange, queue and binding.
func NewClient(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	c := newClient(cfg, logger)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 5
	}
	if cfg.DialDelay == 0 {
		cfg.DialDelay = time.Second
	}
	return &Client{
		url:            cfg.URL,
		exchangeName:   cfg.Exchange,
		queueName:      cfg.Queue,
		dialAttempts:   cfg.DialAttempts,
		dialDelay:      cfg.DialDelay,
		logger:         logger.WithComponent(log.ComponentAMQP),
		maxFailures:    defaultMaxFailures,
		circuitTimeout: defaultCircuitTimeout,
	}
}

func (c *Client) connect(ctx context.Context) error {
	var conn *amqp091.Connection
	err := retry.Do(
		func() error {
			var err error
			conn, err = amqp091.Dial(c.url)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.dialAttempts),
		retry.Delay(c.dialDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isConnectionError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "AMQP dial failed, retrying", "attempt", n+1, log.FieldError, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if c.queueName == "" {
		return nil
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		c.queueName,           // queue name
		RoutingEntriesChanged, // routing key
		c.exchangeName,        // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// reconnect drops the current connection and dials again.
func (c *Client) reconnect(ctx context.Context) error {
	c.closeConn()
	return c.connect(ctx)
}

// PublishEntriesChanged announces a store change to the worker queue.
func (c *Client) PublishEntriesChanged(ctx context.Context, msg *EntriesChangedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RoutingEntriesChanged, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Published entries changed message",
		log.FieldEntryID, msg.EntryID,
		log.FieldEntryKind, string(msg.Kind),
		"exchange", c.exchangeName)
	return nil
}

// Publish sends a finished report under insights.published. It satisfies
// insights.Publisher.
func (c *Client) Publish(ctx context.Context, report core.Report) error {
	msg := NewInsightsPublishedMessage(report)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RoutingInsightsPublished, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Published insights",
		log.FieldRunID, msg.RunID,
		log.FieldParamsKey, msg.ParamsKey,
		"flagged", len(msg.Flagged))
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		if err := c.reconnect(ctx); err != nil {
			c.recordFailure()
			return fmt.Errorf("reconnect: %w", err)
		}
		c.mu.Lock()
		ch = c.channel
		c.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeEntriesChanged delivers entries.changed messages to handler until
// ctx ends. Malformed messages are dropped; handler errors requeue. A lost
// connection is re-established with exponential backoff.
func (c *Client) ConsumeEntriesChanged(ctx context.Context, handler func(context.Context, *EntriesChangedMessage) error) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) && !errors.Is(err, errDeliveriesClosed) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "Consumer lost connection, reconnecting",
			log.FieldError, err,
			"backoff", wait.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.reconnect(ctx); err != nil {
			c.logger.ErrorContext(ctx, "Reconnect failed", log.FieldError, err)
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *EntriesChangedMessage) error) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return amqp091.ErrClosed
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming entries changed messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *EntriesChangedMessage) error) {
	msg, err := EntriesChangedMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		fields := log.NewFields().WithOperation(log.OpConsume).WithError(err)
		c.logger.ErrorContext(ctx, "Failed to handle message",
			append(fields.ToSlice(), log.FieldEntryID, msg.EntryID)...)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
	c.logger.DebugContext(ctx, "Processed entries changed message", log.FieldEntryID, msg.EntryID)
}

func (c *Client) closeConn() {
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

// isCircuitOpen reports whether publishes should fail fast. After the
// timeout an open breaker moves to half-open and lets one attempt through.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != circuitOpen {
		return false
	}
	c.mu.Lock()
	since := time.Since(c.lastFailure)
	c.mu.Unlock()
	if since > c.circuitTimeout {
		atomic.CompareAndSwapInt32(&c.state, circuitOpen, circuitHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= c.maxFailures || atomic.LoadInt32(&c.state) == circuitHalfOpen {
		atomic.StoreInt32(&c.state, circuitOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, circuitClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

var connectionErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"closed network connection",
	"broken pipe",
	"eof",
	"channel/connection is not open",
	"no such host",
	"i/o timeout",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) && amqpErr.Recover {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
