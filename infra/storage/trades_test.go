package storage

import (
	"path/filepath"
	"testing"

	"tycho/domain/book"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreFlushAndRecent(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 5; i++ {
		s.OnTrade(book.Trade{
			TakerClient: uint64(i),
			MakerClient: uint64(100 + i),
			Qty:         int64(i),
			PriceIdx:    5000,
			TS:          uint64(i),
		})
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rows, err := s.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// Newest first.
	if rows[0].TakerClient != 5 || rows[2].TakerClient != 3 {
		t.Errorf("unexpected ordering: %+v", rows)
	}
}

func TestStoreFlushEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.Flush(); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	rows, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
