package book

// Book is the tick-indexed price ladder: one Level per tick per side,
// plus cached best indices. For bids a higher index is more aggressive,
// for asks a lower one. -1 means the side is empty.
//
// Best tracking is amortized O(1): an add only improves the cache, a
// remove rescans toward the less-aggressive direction and stops at the
// first non-empty level, which under realistic flow is the next tick.
type Book struct {
	nlevels int32
	bids    []Level
	asks    []Level
	bestBid int32
	bestAsk int32
}

func NewBook(levels int, ringCapacity uint64) *Book {
	if levels <= 0 || levels%2 == 0 {
		panic("book: levels must be a positive odd number")
	}
	b := &Book{
		nlevels: int32(levels),
		bids:    make([]Level, levels),
		asks:    make([]Level, levels),
		bestBid: -1,
		bestAsk: -1,
	}
	for i := range b.bids {
		b.bids[i].init(ringCapacity)
		b.asks[i].init(ringCapacity)
	}
	return b
}

func (b *Book) Levels() int {
	return int(b.nlevels)
}

func (b *Book) validIdx(idx int32) bool {
	return idx >= 0 && idx < b.nlevels
}

func (b *Book) level(s Side, idx int32) *Level {
	if s == Buy {
		return &b.bids[idx]
	}
	return &b.asks[idx]
}

func (b *Book) updateBestAfterAdd(s Side, idx int32) {
	if s == Buy {
		if idx > b.bestBid {
			b.bestBid = idx
		}
	} else {
		if b.bestAsk == -1 || idx < b.bestAsk {
			b.bestAsk = idx
		}
	}
}

func (b *Book) updateBestAfterRemove(s Side, idx int32) {
	if s == Buy {
		if b.bestBid != idx {
			return
		}
		for i := idx; i >= 0; i-- {
			if !b.bids[i].Empty() {
				b.bestBid = i
				return
			}
		}
		b.bestBid = -1
	} else {
		if b.bestAsk != idx {
			return
		}
		for i := idx; i < b.nlevels; i++ {
			if !b.asks[i].Empty() {
				b.bestAsk = i
				return
			}
		}
		b.bestAsk = -1
	}
}

// BestBid returns the most aggressive bid tick, if any.
func (b *Book) BestBid() (int32, bool) {
	return b.bestBid, b.bestBid >= 0
}

// BestAsk returns the most aggressive ask tick, if any.
func (b *Book) BestAsk() (int32, bool) {
	return b.bestAsk, b.bestAsk >= 0
}

// LevelQty returns the total resting quantity at a tick. Out-of-range
// indices report zero.
func (b *Book) LevelQty(s Side, idx int32) int64 {
	if !b.validIdx(idx) {
		return 0
	}
	return b.level(s, idx).TotalQty
}
