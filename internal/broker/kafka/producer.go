package kafka

import (
	"context"
	"encoding/json"

	"github.com/BearBump/PassportDesk/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	if topic == "" {
		topic = messages.TopicPassportTransitioned
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func newProducerWithWriter(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   key,
		Value: value,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

// PublishTransitioned пишет событие с ключом passport_id, чтобы все события
// одного паспорта шли в одну партицию.
func (p *Producer) PublishTransitioned(ctx context.Context, msg messages.PassportTransitioned) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal passport.transitioned")
	}
	return p.Publish(ctx, []byte(msg.PassportID), b)
}

func (p *Producer) Close() error {
	return p.w.Close()
}
