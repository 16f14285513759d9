package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/PassportDesk/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group. An offset is committed only
// after its handler returned nil.
type Consumer struct {
	r      messageReader
	logger *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	if topic == "" {
		topic = messages.TopicPassportTransitioned
	}
	// новой группе старые события не нужны: кэш статусов живёт минуты
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		StartOffset:       kafka.LastOffset,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg))
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, logger: slog.Default().With("component", "kafka_consumer")}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			return errors.Wrapf(err, "handle %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeTransitioned decodes passport.transitioned events. Undecodable
// messages are logged and committed so they do not block the partition.
func (c *Consumer) ConsumeTransitioned(ctx context.Context, handler func(ctx context.Context, msg messages.PassportTransitioned) error) error {
	return c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		var m messages.PassportTransitioned
		if err := json.Unmarshal(value, &m); err != nil {
			c.logger.Warn("skip malformed passport.transitioned", "key", string(key), "error", err.Error())
			return nil
		}
		return handler(ctx, m)
	})
}
