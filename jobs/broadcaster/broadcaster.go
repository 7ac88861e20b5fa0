package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"cross/infra/store"
)

// Broadcaster drains the store's notification outbox to Kafka. It is the
// at-least-once path: a record is marked SENT before the publish attempt
// and ACKED only after the broker accepted it, so a crash between the two
// replays the record on the next scan.
type Broadcaster struct {
	store    *store.Store
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(st *store.Store, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		store:    st,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

// Start runs the scan loop until ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("outbox broadcaster started", zap.Duration("interval", b.interval))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.replayOnce()
			}
		}
	}()
}

func (b *Broadcaster) replayOnce() {
	err := b.store.ScanPending(func(rec store.OutboxRecord) error {
		if err := b.store.MarkSent(rec.Seq); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("outbox publish failed, will retry",
				zap.Uint64("seq", rec.Seq), zap.Error(err))
			return nil // left in SENT, picked up again next scan
		}

		return b.store.MarkAcked(rec.Seq)
	})
	if err != nil {
		b.log.Error("outbox scan failed", zap.Error(err))
		return
	}
	if err := b.store.PurgeAcked(); err != nil {
		b.log.Warn("outbox purge failed", zap.Error(err))
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
