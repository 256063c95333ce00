package book

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPrice    = errors.New("book: price index out of range")
	ErrInvalidQuantity = errors.New("book: quantity must be positive")
	ErrKilledByFOK     = errors.New("book: fill-or-kill not fully fillable")
)

// Clock produces monotonic nanoseconds for trade timestamps.
type Clock interface {
	Now() uint64
}

type wallClock struct {
	base time.Time
}

func (c wallClock) Now() uint64 {
	return uint64(time.Since(c.base))
}

// Config fixes the engine's preallocated sizes for its lifetime.
type Config struct {
	Levels       int    // ladder width in ticks, odd so a middle exists
	RingCapacity uint64 // per-level FIFO capacity, power of two
	PoolCapacity int    // maximum concurrently resting orders
}

func (c Config) validate() error {
	if c.Levels <= 0 || c.Levels%2 == 0 {
		return fmt.Errorf("book: levels must be a positive odd number, got %d", c.Levels)
	}
	if c.RingCapacity == 0 || c.RingCapacity&(c.RingCapacity-1) != 0 {
		return fmt.Errorf("book: ring capacity must be a power of two, got %d", c.RingCapacity)
	}
	if c.PoolCapacity <= 0 {
		return fmt.Errorf("book: pool capacity must be positive, got %d", c.PoolCapacity)
	}
	return nil
}

// Result reports an accepted placement: how many trades it produced
// and whether a residual rested on the book.
type Result struct {
	Trades int
	Rested bool
}

// Engine is the price-time-priority matching kernel. It owns the pool,
// the ladder, the client index and the trade sink exclusively, and is
// single-writer: all mutations run to completion on one goroutine.
//
// The pool, ladder and rings are allocated at construction; placement,
// match, cancel and replace reuse them. The default trade log grows
// with every execution.
type Engine struct {
	pool     *Pool
	book     *Book
	byClient map[uint64]uint64 // client ID -> engine ID of the resting order
	clock    Clock
	sink     TradeSink
	log      *TradeLog // set only when the default sink is used
}

// New builds an engine. A nil sink installs the internal trade log; a
// nil clock installs a process-monotonic one.
func New(cfg Config, clock Clock, sink TradeSink) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		pool:     NewPool(cfg.PoolCapacity),
		book:     NewBook(cfg.Levels, cfg.RingCapacity),
		byClient: make(map[uint64]uint64, cfg.PoolCapacity),
		clock:    clock,
		sink:     sink,
	}
	if e.clock == nil {
		e.clock = wallClock{base: time.Now()}
	}
	if e.sink == nil {
		e.log = &TradeLog{}
		e.sink = e.log
	}
	return e, nil
}

// PlaceLimit matches an incoming limit order against the opposite side
// and rests any residual according to tif. Trades already emitted stand
// even when resting fails.
func (e *Engine) PlaceLimit(clientID uint64, side Side, priceIdx int32, qty int64, ts uint64, tif TimeInForce) (Result, error) {
	if !e.book.validIdx(priceIdx) {
		return Result{}, ErrInvalidPrice
	}
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if tif == FOK && e.available(side, priceIdx, qty) < qty {
		return Result{}, ErrKilledByFOK
	}

	taker := Order{
		ClientID: clientID,
		Side:     side,
		Type:     Limit,
		TIF:      tif,
		PriceIdx: priceIdx,
		Qty:      qty,
		TS:       ts,
	}

	var res Result
	if side == Buy {
		e.matchBuy(&taker, &res)
	} else {
		e.matchSell(&taker, &res)
	}

	if taker.Qty > 0 && tif == GFD {
		if err := e.rest(&taker); err != nil {
			return res, err
		}
		res.Rested = true
	}
	return res, nil
}

// PlaceMarket matches without a price constraint. Any remainder is
// discarded; a market order never rests.
func (e *Engine) PlaceMarket(clientID uint64, side Side, qty int64, ts uint64) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}

	taker := Order{
		ClientID: clientID,
		Side:     side,
		Type:     Market,
		TIF:      IOC,
		PriceIdx: -1,
		Qty:      qty,
		TS:       ts,
	}

	var res Result
	if side == Buy {
		e.matchBuy(&taker, &res)
	} else {
		e.matchSell(&taker, &res)
	}
	return res, nil
}

// Cancel removes the client's resting order. A stale index entry whose
// slot was already reaped by matching is erased and reported as absent.
func (e *Engine) Cancel(clientID uint64) bool {
	id, ok := e.byClient[clientID]
	if !ok {
		return false
	}
	o := e.pool.Get(id)
	if !o.Active || o.ClientID != clientID {
		delete(e.byClient, clientID)
		return false
	}

	lvl := e.book.level(o.Side, o.PriceIdx)
	if !lvl.Remove(id) {
		delete(e.byClient, clientID)
		return false
	}
	lvl.TotalQty -= o.Qty

	side, idx := o.Side, o.PriceIdx
	e.pool.Free(id)
	delete(e.byClient, clientID)

	if lvl.Empty() {
		e.book.updateBestAfterRemove(side, idx)
	}
	return true
}

// Replace cancels the client's resting order and resubmits it at the
// new price and quantity with the same side and time-in-force. The
// order goes to the tail of its destination level; a replace does not
// keep time priority.
func (e *Engine) Replace(clientID uint64, newPriceIdx int32, newQty int64, ts uint64) bool {
	id, ok := e.byClient[clientID]
	if !ok {
		return false
	}
	o := e.pool.Get(id)
	if !o.Active || o.ClientID != clientID {
		delete(e.byClient, clientID)
		return false
	}
	// Reject bad parameters before touching the old order.
	if !e.book.validIdx(newPriceIdx) || newQty <= 0 {
		return false
	}

	side, tif := o.Side, o.TIF
	if !e.Cancel(clientID) {
		return false
	}
	_, err := e.PlaceLimit(clientID, side, newPriceIdx, newQty, ts, tif)
	return err == nil
}

// ---- accessors ----

func (e *Engine) BestBid() (int32, bool) {
	return e.book.BestBid()
}

func (e *Engine) BestAsk() (int32, bool) {
	return e.book.BestAsk()
}

func (e *Engine) LevelQty(s Side, idx int32) int64 {
	return e.book.LevelQty(s, idx)
}

// Trades returns the internal log, or nil when an external sink was
// installed.
func (e *Engine) Trades() []Trade {
	if e.log == nil {
		return nil
	}
	return e.log.Trades()
}

func (e *Engine) Levels() int {
	return e.book.Levels()
}

// PoolInUse reports currently resting orders.
func (e *Engine) PoolInUse() int {
	return e.pool.InUse()
}

// ---- matching ----

func (e *Engine) matchBuy(taker *Order, res *Result) {
	for taker.Qty > 0 {
		best := e.book.bestAsk
		if best < 0 {
			return
		}
		if taker.Type != Market && best > taker.PriceIdx {
			return
		}

		lvl := &e.book.asks[best]
		makerID := lvl.Front()
		maker := e.pool.Get(makerID)

		fill := min(maker.Qty, taker.Qty)
		e.emit(taker, maker, fill)
		maker.Qty -= fill
		taker.Qty -= fill
		lvl.TotalQty -= fill
		res.Trades++

		if maker.Qty == 0 {
			lvl.PopFront(0)
			e.pool.Free(makerID)
			delete(e.byClient, maker.ClientID)
		}
		if lvl.Empty() {
			e.book.updateBestAfterRemove(Sell, best)
		}
	}
}

func (e *Engine) matchSell(taker *Order, res *Result) {
	for taker.Qty > 0 {
		best := e.book.bestBid
		if best < 0 {
			return
		}
		if taker.Type != Market && best < taker.PriceIdx {
			return
		}

		lvl := &e.book.bids[best]
		makerID := lvl.Front()
		maker := e.pool.Get(makerID)

		fill := min(maker.Qty, taker.Qty)
		e.emit(taker, maker, fill)
		maker.Qty -= fill
		taker.Qty -= fill
		lvl.TotalQty -= fill
		res.Trades++

		if maker.Qty == 0 {
			lvl.PopFront(0)
			e.pool.Free(makerID)
			delete(e.byClient, maker.ClientID)
		}
		if lvl.Empty() {
			e.book.updateBestAfterRemove(Buy, best)
		}
	}
}

func (e *Engine) emit(taker, maker *Order, qty int64) {
	e.sink.OnTrade(Trade{
		TakerClient: taker.ClientID,
		MakerClient: maker.ClientID,
		Qty:         qty,
		PriceIdx:    maker.PriceIdx,
		TS:          e.clock.Now(),
	})
}

// rest enqueues the residual as a maker at the tail of its level.
func (e *Engine) rest(o *Order) error {
	lvl := e.book.level(o.Side, o.PriceIdx)
	id, err := e.pool.Allocate(*o)
	if err != nil {
		return err
	}
	if err := lvl.Push(id, o.Qty); err != nil {
		e.pool.Free(id)
		return err
	}
	e.book.updateBestAfterAdd(o.Side, o.PriceIdx)
	e.byClient[o.ClientID] = id
	return nil
}

// available sums opposite-side resting quantity at prices that satisfy
// the taker's limit, stopping once need is covered. Used by the FOK
// pre-check.
func (e *Engine) available(side Side, limit int32, need int64) int64 {
	var sum int64
	if side == Buy {
		if e.book.bestAsk < 0 {
			return 0
		}
		for i := e.book.bestAsk; i <= limit; i++ {
			sum += e.book.asks[i].TotalQty
			if sum >= need {
				return sum
			}
		}
	} else {
		if e.book.bestBid < 0 {
			return 0
		}
		for i := e.book.bestBid; i >= limit; i-- {
			sum += e.book.bids[i].TotalQty
			if sum >= need {
				return sum
			}
		}
	}
	return sum
}
