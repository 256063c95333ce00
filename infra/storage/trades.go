// Package storage archives executions to SQLite for offline queries.
// It sits outside the hot path: trades are buffered in memory and
// flushed in batches.
package storage

import (
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tycho/domain/book"
)

// TradeRow is the archived form of a book.Trade.
type TradeRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	TakerClient uint64 `gorm:"index"`
	MakerClient uint64 `gorm:"index"`
	Qty         int64
	PriceIdx    int32
	TS          uint64
}

type Store struct {
	db *gorm.DB

	mu  sync.Mutex
	buf []TradeRow
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OnTrade buffers one execution. Safe to call from the command path;
// no I/O happens here.
func (s *Store) OnTrade(t book.Trade) {
	s.mu.Lock()
	s.buf = append(s.buf, TradeRow{
		TakerClient: t.TakerClient,
		MakerClient: t.MakerClient,
		Qty:         t.Qty,
		PriceIdx:    t.PriceIdx,
		TS:          t.TS,
	})
	s.mu.Unlock()
}

// Flush writes buffered trades in one batch.
func (s *Store) Flush() error {
	s.mu.Lock()
	pending := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return s.db.CreateInBatches(pending, 512).Error
}

// Recent returns the latest n archived trades, newest first.
func (s *Store) Recent(n int) ([]TradeRow, error) {
	var rows []TradeRow
	err := s.db.Order("id desc").Limit(n).Find(&rows).Error
	return rows, err
}

func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
