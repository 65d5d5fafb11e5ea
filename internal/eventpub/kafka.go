// Package eventpub publishes outbox events to Kafka.
package eventpub

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// Writer is the part of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes outbox events to Kafka, one message per event.
type Publisher struct {
	writer Writer
}

// NewPublisher returns a publisher writing to the given brokers. The topic is taken from each event.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

// NewWithWriter returns a publisher on top of w.
func NewWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// Publish writes e and waits for the broker acknowledgement.
// Events with the same key land in the same partition, so per transfer order is kept.
func (p *Publisher) Publish(ctx context.Context, e domain.OutboxEvent) error {
	msg := kafka.Message{
		Topic: e.Topic,
		Key:   []byte(e.Key),
		Value: e.Payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "outbox_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("outbox_id", e.ID).Str("topic", e.Topic).Msg("publish failed")
		return err
	}

	return nil
}

// Close flushes pending messages and closes the connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
