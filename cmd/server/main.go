package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tycho/api/httpserver"
	"tycho/config"
	"tycho/domain/book"
	"tycho/domain/pricing"
	"tycho/infra/kafka"
	"tycho/infra/logging"
	"tycho/infra/outbox"
	"tycho/infra/sequence"
	"tycho/infra/storage"
	"tycho/infra/wal"
	"tycho/jobs/broadcaster"
	"tycho/service"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Dir)

	// ---------------- Pricing ----------------

	mapper, err := pricing.New(cfg.Pricing.Tick, cfg.Pricing.MinPrice, cfg.Engine.Levels)
	if err != nil {
		log.Fatalf("pricing init failed: %v", err)
	}

	// ---------------- Entry WAL ----------------

	entryWAL, err := wal.Open(wal.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
	})
	if err != nil {
		log.Fatalf("wal init failed: %v", err)
	}
	defer entryWAL.Close()

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		log.Fatalf("outbox init failed: %v", err)
	}
	defer ob.Close()

	// ---------------- Archive ----------------

	archive, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("trade archive init failed: %v", err)
	}
	defer archive.Close()

	// ---------------- Live feed ----------------

	var feed book.TradeSink
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.FeedTopic != "" {
		sink := kafka.NewFeedSink(cfg.Kafka.Brokers, cfg.Kafka.FeedTopic, logger)
		defer sink.Close()
		feed = sink
	}

	// ---------------- Service ----------------

	svc, err := service.New(book.Config{
		Levels:       cfg.Engine.Levels,
		RingCapacity: cfg.Engine.RingCapacity,
		PoolCapacity: cfg.Engine.PoolCapacity,
	}, service.Deps{
		WAL:     entryWAL,
		Seq:     sequence.New(0),
		Clock:   sequence.NewClock(),
		Outbox:  ob,
		Feed:    feed,
		Archive: archive,
		Log:     logger,
	})
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	// ---------------- WAL replay ----------------

	if err := svc.Replay(cfg.WAL.Dir); err != nil {
		log.Fatalf("wal replay failed: %v", err)
	}

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TradesTopic != "" {
		bc, err := broadcaster.New(ob, cfg.Kafka.Brokers, cfg.Kafka.TradesTopic, cfg.Outbox.DrainInterval, logger)
		if err != nil {
			log.Fatalf("broadcaster init failed: %v", err)
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	go func() {
		ticker := time.NewTicker(cfg.Storage.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := archive.Flush(); err != nil {
					logger.Error("trade archive flush failed", "err", err)
				}
			}
		}
	}()

	// ---------------- HTTP ----------------

	srv := httpserver.New(svc, mapper, logger)

	go func() {
		if err := srv.Start(cfg.HTTP.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server exited: %v", err)
		}
	}()
	logger.Info("tycho engine running", "addr", cfg.HTTP.Addr)

	// ---------------- Shutdown ----------------

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
	logger.Info("tycho engine stopped")
}
