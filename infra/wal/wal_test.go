package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestWAL(t *testing.T, dir string) *WAL {
	t.Helper()
	w, err := Open(Config{
		Dir:             dir,
		SegmentSize:     1 << 20,
		SegmentDuration: time.Hour,
	})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	return w
}

func TestWALAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)

	const n = 100
	for i := 1; i <= n; i++ {
		rec := NewRecord(RecordPlace, uint64(i), []byte(fmt.Sprintf("order-%d", i)))
		if err := w.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
		if i%20 == 0 {
			_ = w.Sync()
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var count int
	lastSeq, err := Replay(dir, func(rec *Record) error {
		if rec.Type != RecordPlace {
			t.Fatalf("unexpected record type %d", rec.Type)
		}
		count++
		if string(rec.Data) != fmt.Sprintf("order-%d", count) {
			t.Fatalf("payload mismatch at record %d: %q", count, rec.Data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != n || lastSeq != n {
		t.Fatalf("expected %d records ending at seq %d, got %d / %d", n, n, count, lastSeq)
	}
}

func TestWALRotationBySize(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 64, SegmentDuration: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 20; i++ {
		if err := w.Append(NewRecord(RecordCancel, uint64(i), []byte("rotate-me"))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = w.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if len(files) < 2 {
		t.Fatalf("expected rotated segments, found %d", len(files))
	}

	// Replay still sees everything, in order, across segments.
	var count int
	if _, err := Replay(dir, func(*Record) error { count++; return nil }); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 20 {
		t.Fatalf("expected 20 records, got %d", count)
	}
}

func TestWALResumesLastSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 64, SegmentDuration: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 10; i++ {
		_ = w.Append(NewRecord(RecordPlace, uint64(i), []byte("payload")))
	}
	_ = w.Close()

	// Reopen and keep appending; sequences continue across the restart.
	w = openTestWAL(t, dir)
	if err := w.Append(NewRecord(RecordPlace, 11, []byte("after-restart"))); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	_ = w.Close()

	lastSeq, err := Replay(dir, func(*Record) error { return nil })
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if lastSeq != 11 {
		t.Fatalf("expected last seq 11, got %d", lastSeq)
	}
}

func TestWALCRCIntegrity(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	_ = w.Append(NewRecord(RecordPlace, 1, []byte("valid-record")))
	_ = w.Sync()
	_ = w.Close()

	path := filepath.Join(dir, "segment-000000.wal")
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	// corrupt the sequence field to break the CRC
	_, _ = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, 4)
	_ = f.Close()

	_, err = Replay(dir, func(*Record) error {
		t.Fatal("expected corruption detection, but got a record")
		return nil
	})
	if err == nil {
		t.Fatal("expected replay to fail on corrupted segment")
	}
}

func TestWALRejectsNonMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	_ = w.Append(NewRecord(RecordPlace, 5, []byte("a")))
	_ = w.Append(NewRecord(RecordPlace, 5, []byte("b")))
	_ = w.Close()

	if _, err := Replay(dir, func(*Record) error { return nil }); err == nil {
		t.Fatal("expected replay to reject duplicate sequence")
	}
}

func TestWALTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 64, SegmentDuration: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 20; i++ {
		_ = w.Append(NewRecord(RecordPlace, uint64(i), []byte("snapshot-covered")))
	}

	before, _ := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err := w.TruncateBefore(10); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	after, _ := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if len(after) >= len(before) {
		t.Fatalf("expected segments removed, before=%d after=%d", len(before), len(after))
	}

	// Whatever remains must still replay cleanly from some later seq.
	if _, err := Replay(dir, func(*Record) error { return nil }); err != nil {
		t.Fatalf("replay after truncate: %v", err)
	}
	_ = w.Close()
}
