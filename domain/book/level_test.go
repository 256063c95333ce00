package book

import "testing"

func newLevel(capacity uint64) *Level {
	l := &Level{}
	l.init(capacity)
	return l
}

func TestLevelFIFO(t *testing.T) {
	l := newLevel(8)

	for i, qty := range []int64{5, 3, 2} {
		if err := l.Push(uint64(i+1), qty); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if l.TotalQty != 10 {
		t.Errorf("expected total 10, got %d", l.TotalQty)
	}
	if l.Len() != 3 {
		t.Errorf("expected len 3, got %d", l.Len())
	}

	if l.Front() != 1 {
		t.Errorf("expected head 1, got %d", l.Front())
	}
	l.PopFront(5)
	if l.Front() != 2 {
		t.Errorf("expected head 2 after pop, got %d", l.Front())
	}
	if l.TotalQty != 5 {
		t.Errorf("expected total 5 after pop, got %d", l.TotalQty)
	}
}

func TestLevelOverflow(t *testing.T) {
	l := newLevel(2)

	_ = l.Push(1, 1)
	_ = l.Push(2, 1)
	if err := l.Push(3, 1); err != ErrLevelOverflow {
		t.Fatalf("expected ErrLevelOverflow, got %v", err)
	}
	if l.TotalQty != 2 {
		t.Errorf("failed push must not change the total, got %d", l.TotalQty)
	}
}

func TestLevelRemoveClosesGap(t *testing.T) {
	l := newLevel(8)
	for i := uint64(1); i <= 4; i++ {
		_ = l.Push(i, 1)
	}

	if !l.Remove(2) {
		t.Fatal("expected removal of id 2")
	}
	if l.Len() != 3 {
		t.Errorf("expected len 3 after remove, got %d", l.Len())
	}

	var got []uint64
	for !l.Empty() {
		got = append(got, l.Front())
		l.PopFront(1)
	}
	want := []uint64{1, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected FIFO order %v, got %v", want, got)
		}
	}
}

func TestLevelRemoveMissing(t *testing.T) {
	l := newLevel(4)
	_ = l.Push(1, 1)

	if l.Remove(99) {
		t.Error("expected miss for unknown id")
	}
	if l.Len() != 1 {
		t.Error("miss must leave the ring unchanged")
	}
}

func TestLevelWrapsAround(t *testing.T) {
	l := newLevel(4)

	// Drive head/tail past the capacity boundary.
	for round := 0; round < 10; round++ {
		for i := uint64(0); i < 3; i++ {
			if err := l.Push(uint64(round)*3+i, 1); err != nil {
				t.Fatalf("push round %d: %v", round, err)
			}
		}
		for i := 0; i < 3; i++ {
			l.PopFront(1)
		}
	}
	if !l.Empty() || l.TotalQty != 0 {
		t.Errorf("expected empty level, len=%d total=%d", l.Len(), l.TotalQty)
	}
}
