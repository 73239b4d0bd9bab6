package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-svc/config"
	"shop-svc/metrics"
	"shop-svc/middleware"
	"shop-svc/models"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads order events from Kafka and emails the customer.
type Consumer struct {
	reader     messageReader
	notifier   *Notifier
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewConsumer(cfg config.KafkaConfig, notifier *Notifier, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, notifier, logger, time.Second)
}

func newConsumer(reader messageReader, notifier *Notifier, logger *zap.Logger, backoff time.Duration) *Consumer {
	return &Consumer{
		reader:     reader,
		notifier:   notifier,
		logger:     logger,
		maxRetries: 3,
		backoff:    backoff,
	}
}

// Run consumes until ctx is cancelled. Messages are committed after handling,
// including ones that still fail after retries, so a poison message cannot
// stall the partition.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Notification consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			c.logger.Error("Failed to handle message after retries",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to commit message", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

var errMalformedEvent = errors.New("malformed event")

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, errMalformedEvent) {
			return err
		}
		lastErr = err
		if attempt < c.maxRetries {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	// Extract trace context from Kafka message headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, kafkaHeaderCarrier(msg.Headers))
	ctx, span := otel.Tracer("shop-service").Start(ctx, "ProcessNotification")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.EventType == "" {
		return fmt.Errorf("%w: missing event_type", errMalformedEvent)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.Int("order.id", event.OrderID),
	)

	sent, err := c.notifier.Notify(ctx, event)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !sent {
		c.logger.Debug("No notification for event", zap.String("event_type", event.EventType))
		return nil
	}

	metrics.RecordNotificationSent(event.EventType)
	c.logger.Info("Notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.EventType),
		zap.Int("order_id", event.OrderID),
	)
	return nil
}

// kafkaHeaderCarrier is a read-only TextMapCarrier over kafka-go headers.
type kafkaHeaderCarrier []kafka.Header

func (c kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c kafkaHeaderCarrier) Set(key, value string) {}

func (c kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}
