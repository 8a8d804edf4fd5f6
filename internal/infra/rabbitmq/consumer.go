package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// maxBackoff caps the requeue delay regardless of how often a message has
// bounced.
const maxBackoff = 60 * time.Second

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

// Consumer drains the extraction queue with a fixed worker pool. A delivery is
// acked only after the handler returns nil; a handler error nacks with requeue
// after an exponential backoff derived from the message's redelivery history.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	cfg       ConsumerConfig
	baseDelay time.Duration
	handler   MessageHandler
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:      conn,
		channel:   ch,
		cfg:       cfg,
		baseDelay: time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:   handler,
		logger:    logger,
	}, nil
}

// declareTopology creates the exchange, the three queues and their bindings.
// All declarations are idempotent so consumer and publisher can race at boot.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	for _, q := range []string{cfg.Queue, cfg.StatusQueue, cfg.DLQ} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := map[string]string{
		cfg.Queue:       RoutingKeyExtraction,
		cfg.StatusQueue: RoutingKeyStatus,
	}
	for q, key := range bindings {
		if err := ch.QueueBind(q, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", q, key, err)
		}
	}
	return nil
}

// Start consumes until ctx is cancelled, then waits for in-flight extractions
// to finish. A job already past download is cheaper to complete than to redo.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("extraction worker pool running",
		zap.String("queue", c.cfg.Queue),
		zap.Int("workers", c.cfg.WorkerCount),
		zap.Int("prefetch", c.cfg.Prefetch),
	)

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.runWorker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("draining in-flight extractions")
	c.wg.Wait()
	return nil
}

func (c *Consumer) runWorker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed by broker")
				return
			}
			c.handle(ctx, d, log)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	if err := c.handler(ctx, d.Body); err != nil {
		attempt := deathCount(d)
		delay := c.backoff(attempt)
		log.Warn("extraction failed, requeueing",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)

		select {
		case <-time.After(delay):
			_ = d.Nack(false, true)
		case <-ctx.Done():
			// Shutting down: put the message back without delay.
			_ = d.Nack(false, true)
		}
		return
	}

	_ = d.Ack(false)
}

// deathCount reads how many times the broker has already cycled this message,
// from the x-death header. A fresh message counts as attempt 1.
func deathCount(d amqp.Delivery) int {
	if deaths, ok := d.Headers["x-death"].([]interface{}); ok && len(deaths) > 0 {
		return len(deaths) + 1
	}
	return 1
}

func (c *Consumer) backoff(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
