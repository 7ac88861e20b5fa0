package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cross/domain/book"
)

// Producer publishes completed trade batches to the public market-data
// topic. Delivery is fire-and-forget from the engine's point of view; the
// durable path is the store outbox, not this feed.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// PublishTrades sends one message per trade, keyed by taker order id so a
// partitioned topic keeps per-order ordering.
func (p *Producer) PublishTrades(ctx context.Context, trades []book.Trade) error {
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode trade: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(fmt.Sprintf("%d", t.TakerOrderID)),
			Value: payload,
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
