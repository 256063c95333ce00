// Package broadcaster drains the trade outbox to Kafka. It is the only
// component that talks to the broker on the durable path; the engine
// never blocks on delivery.
package broadcaster

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"tycho/infra/outbox"
)

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *slog.Logger
}

func New(ob *outbox.Outbox, brokers []string, topic string, interval time.Duration, log *slog.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

// Start runs the drain loop until ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", "topic", b.topic)

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// drainOnce publishes every pending (NEW or FAILED) entry. Entries are
// marked SENT before the send and acked (deleted) only after the broker
// confirms. ScanPending skips SENT entries, so an entry left SENT by a
// crash between send and ack is not published again by this loop.
func (b *Broadcaster) drainOnce() {
	err := b.outbox.ScanPending(func(seq uint64, rec outbox.Record) error {
		if err := b.outbox.MarkSent(seq); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(seq, 10)),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry", "seq", seq, "err", err)
			return b.outbox.MarkFailed(seq)
		}

		return b.outbox.Ack(seq)
	})
	if err != nil {
		b.log.Error("outbox drain failed", "err", err)
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
