// Package kafka publishes executions to the live trade feed. Delivery
// here is best-effort; the outbox/broadcaster pair is the durable path.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"tycho/domain/book"
)

// FeedSink is a book.TradeSink writing one JSON event per execution.
// Events are keyed by taker client so a consumer partitions a
// client's fills together.
type FeedSink struct {
	writer  *kafka.Writer
	timeout time.Duration
	log     *slog.Logger
}

type feedEvent struct {
	V           int    `json:"v"`
	TakerClient uint64 `json:"taker"`
	MakerClient uint64 `json:"maker"`
	Qty         int64  `json:"qty"`
	PriceIdx    int32  `json:"price_idx"`
	TS          uint64 `json:"ts"`
}

func NewFeedSink(brokers []string, topic string, log *slog.Logger) *FeedSink {
	return &FeedSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		timeout: 200 * time.Millisecond,
		log:     log,
	}
}

func (s *FeedSink) OnTrade(t book.Trade) {
	value, err := json.Marshal(feedEvent{
		V:           1,
		TakerClient: t.TakerClient,
		MakerClient: t.MakerClient,
		Qty:         t.Qty,
		PriceIdx:    t.PriceIdx,
		TS:          t.TS,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(t.TakerClient, 10)),
		Value: value,
	})
	if err != nil {
		s.log.Warn("trade feed publish failed", "err", err)
	}
}

func (s *FeedSink) Close() error {
	return s.writer.Close()
}
