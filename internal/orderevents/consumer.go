package orderevents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/smallbiznis/storefront-ledger/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	maxHandleAttempts = 3
	retryBackoff      = 500 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads order events from a Kafka consumer group and commits each
// message after it has been handled.
type Consumer struct {
	reader  messageReader
	handler *Handler
	log     *zap.Logger
	backoff time.Duration
}

func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.OrderTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

func NewConsumer(reader messageReader, handler *Handler, log *zap.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		handler: handler,
		log:     log.Named("orderevents.consumer"),
		backoff: retryBackoff,
	}
}

// Run blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("commit failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctx, cid := correlation.Attach(ctx, correlation.Lookup(func(key string) string {
		return headerValue(msg.Headers, key)
	}))

	evt, err := DecodeEvent(msg.Value)
	if err != nil {
		c.log.Warn("dropping undecodable order event",
			zap.String("correlation_id", cid),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}

	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		_, err = c.handler.Handle(ctx, evt)
		if err == nil {
			return
		}
		if attempt == maxHandleAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	c.log.Error("giving up on order event",
		zap.String("correlation_id", cid),
		zap.String("order_id", evt.OrderID.String()),
		zap.String("type", evt.Type),
		zap.Int64("offset", msg.Offset),
		zap.Error(err),
	)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
