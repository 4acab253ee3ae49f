package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stellar-sleep/patients-api/pkg/common/logger"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
)

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const maxRetryDelay = 30 * time.Second

type Consumer struct {
	reader     messageReader
	retryDelay time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: reader, retryDelay: time.Second}
}

// Consume hands each change event to handler and commits it once handled.
// Undecodable messages are committed and skipped. A handler failure is retried
// with backoff until it succeeds or ctx ends, since committing a later offset
// would also commit the failed one.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	fetchFailures := 0
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			if err := c.wait(ctx, fetchFailures); err != nil {
				return err
			}
			fetchFailures++
			continue
		}
		fetchFailures = 0

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Log.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal event")
			c.commit(ctx, message)
			continue
		}

		for attempt := 0; ; attempt++ {
			err := handler(ctx, event)
			if err == nil {
				break
			}
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
				"attempt":    attempt + 1,
			}).Error("Failed to process event")
			if err := c.wait(ctx, attempt); err != nil {
				return err
			}
		}
		c.commit(ctx, message)
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		logger.Log.WithError(err).Error("Failed to commit message")
	}
}

// wait sleeps for the attempt's backoff, doubling from retryDelay up to
// maxRetryDelay.
func (c *Consumer) wait(ctx context.Context, attempt int) error {
	if attempt > 5 {
		attempt = 5
	}
	delay := c.retryDelay << attempt
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
