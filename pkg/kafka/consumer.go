package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"

	"github.com/03aar/review-sub000/pkg/logger"
)

// maxHandlerRetries bounds handler attempts per message. After the last one
// the message is dead-lettered (or dropped) and committed regardless.
const maxHandlerRetries = 3

// fetchBackoff spaces out FetchMessage calls after a broker error.
const fetchBackoff = time.Second

type Handler func(ctx context.Context, event *Event) error

type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// deadLetterPublisher is satisfied by *DLQProducer.
type deadLetterPublisher interface {
	Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error
}

// Consumer reads one topic in a consumer group and commits every message
// after it is handled, dead-lettered or found undecodable. Delivery is
// at-least-once; wrap the handler with IdempotentHandler to absorb redelivery.
type Consumer struct {
	reader    messageReader
	topic     string
	group     string
	logger    *slog.Logger
	handler   Handler
	dlq       deadLetterPublisher
	backoff   time.Duration
	closeOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("consumer_group", cfg.GroupID)),
		handler: handler,
		backoff: 100 * time.Millisecond,
	}
}

// WithDLQ dead-letters messages whose retries are exhausted instead of
// dropping them.
func (c *Consumer) WithDLQ(dlq *DLQProducer) *Consumer {
	c.dlq = dlq
	return c
}

type consumerLabelsKey struct{}

type consumerLabels struct {
	topic string
	group string
}

// labelsFromContext lets handler wrappers label their metrics with the topic
// and group of the message in flight.
func labelsFromContext(ctx context.Context) (topic, group string) {
	l, _ := ctx.Value(consumerLabelsKey{}).(consumerLabels)
	return l.topic, l.group
}

// Start blocks until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	defer c.logger.Info("kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			return c.Close()
		}
		if err != nil {
			c.logger.Error("kafka fetch failed", slog.String("error", err.Error()))
			if !sleep(ctx, fetchBackoff) {
				return c.Close()
			}
			continue
		}

		countConsumed(c.topic, c.group, outcomeReceived)
		if !c.process(ctx, msg) {
			return c.Close()
		}
	}
}

// process reports false when ctx was canceled before the message settled.
// The message is then left uncommitted for the next group member.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	log := c.logger.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		log.Error("kafka message undecodable", slog.String("error", err.Error()))
		countConsumed(c.topic, c.group, outcomeFailed)
		c.deadLetter(ctx, log, msg, err)
		c.commit(ctx, log, msg)
		return true
	}
	log = log.With(slog.String("event_type", event.EventType), slog.String("event_id", event.EventID))

	hctx, span := startConsumeSpan(ctx, &msg, c.group)
	defer span.End()
	hctx = context.WithValue(hctx, consumerLabelsKey{}, consumerLabels{topic: c.topic, group: c.group})
	if event.CorrelationID != "" {
		hctx = logger.WithCorrelationID(hctx, event.CorrelationID)
	}

	start := time.Now()
	settled, err := c.handleWithRetry(hctx, log, event)
	consumerDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())
	if !settled {
		return false
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		countConsumed(c.topic, c.group, outcomeFailed)
		log.Error("kafka handler gave up", slog.String("error", err.Error()))
		c.deadLetter(ctx, log, msg, err)
	} else {
		countConsumed(c.topic, c.group, outcomeProcessed)
	}
	c.commit(ctx, log, msg)
	return true
}

// handleWithRetry returns the last handler error. settled is false when ctx
// was canceled during a backoff.
func (c *Consumer) handleWithRetry(ctx context.Context, log *slog.Logger, event *Event) (settled bool, err error) {
	for attempt := 1; ; attempt++ {
		if err = c.handler(ctx, event); err == nil {
			return true, nil
		}
		log.Warn("kafka handler failed",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxHandlerRetries),
		)
		if attempt == maxHandlerRetries {
			return true, err
		}
		if !sleep(ctx, time.Duration(attempt)*c.backoff) {
			return false, err
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, log *slog.Logger, msg kafka.Message, cause error) {
	if c.dlq == nil {
		log.Warn("no dead-letter queue configured, dropping message")
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		log.Error("dead-letter publish failed", slog.String("error", err.Error()))
		return
	}
	countConsumed(c.topic, c.group, outcomeDeadLettered)
}

func (c *Consumer) commit(ctx context.Context, log *slog.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("kafka commit failed", slog.String("error", err.Error()))
	}
}

// Close is idempotent.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}

// sleep waits for d and reports false if ctx ended first.
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

// TopicPrefix namespaces every topic the engine produces or consumes.
const TopicPrefix = "reputation"

func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
