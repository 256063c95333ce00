package service

import (
	"fmt"
	"log/slog"
	"sync"

	"tycho/domain/book"
	"tycho/infra/outbox"
	"tycho/infra/sequence"
	"tycho/infra/storage"
	"tycho/infra/wal"
)

// Deps wires OrderService. WAL, sequencer and clock are required;
// outbox, feed and archive are optional sinks. New builds the engine.
type Deps struct {
	WAL     *wal.WAL
	Seq     *sequence.Sequencer
	Clock   *sequence.Clock
	Outbox  *outbox.Outbox
	Feed    book.TradeSink
	Archive *storage.Store
	Log     *slog.Logger
}

type OrderService struct {
	mu sync.Mutex

	engine *book.Engine
	trades *book.TradeLog

	wal      *wal.WAL
	seq      *sequence.Sequencer
	tradeSeq *sequence.Sequencer
	clock    *sequence.Clock

	outbox  *outbox.Outbox
	feed    book.TradeSink
	archive *storage.Store
	log     *slog.Logger

	replaying bool
}

// New builds the service and its engine. The service installs itself
// as the engine's trade sink.
func New(cfg book.Config, d Deps) (*OrderService, error) {
	if d.WAL == nil || d.Seq == nil || d.Clock == nil {
		return nil, fmt.Errorf("service: wal, sequencer and clock are required")
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	s := &OrderService{
		trades:   &book.TradeLog{},
		wal:      d.WAL,
		seq:      d.Seq,
		tradeSeq: sequence.New(0),
		clock:    d.Clock,
		outbox:   d.Outbox,
		feed:     d.Feed,
		archive:  d.Archive,
		log:      d.Log,
	}

	eng, err := book.New(cfg, d.Clock, s)
	if err != nil {
		return nil, err
	}
	s.engine = eng
	return s, nil
}

//
// ---------------- Commands ----------------
//

// PlaceLimit logs and applies a limit order. The WAL write comes
// first: a command that cannot be made durable is not applied.
func (s *OrderService) PlaceLimit(clientID uint64, side book.Side, priceIdx int32, qty int64, tif book.TimeInForce) (book.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := fmt.Sprintf("%d|%d|%d|%d|%d", clientID, side, priceIdx, qty, tif)
	if err := s.append(wal.RecordPlace, payload); err != nil {
		return book.Result{}, err
	}

	res, err := s.engine.PlaceLimit(clientID, side, priceIdx, qty, s.clock.Now(), tif)
	if err != nil {
		s.log.Debug("limit rejected", "client", clientID, "err", err)
		return res, err
	}
	s.log.Debug("limit placed", "client", clientID, "side", side.String(), "price_idx", priceIdx, "qty", qty, "trades", res.Trades, "rested", res.Rested)
	return res, nil
}

// PlaceMarket logs and applies a market order.
func (s *OrderService) PlaceMarket(clientID uint64, side book.Side, qty int64) (book.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := fmt.Sprintf("%d|%d|%d", clientID, side, qty)
	if err := s.append(wal.RecordMarket, payload); err != nil {
		return book.Result{}, err
	}
	return s.engine.PlaceMarket(clientID, side, qty, s.clock.Now())
}

// Cancel logs and applies a cancel.
func (s *OrderService) Cancel(clientID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(wal.RecordCancel, fmt.Sprintf("%d", clientID)); err != nil {
		return false, err
	}
	return s.engine.Cancel(clientID), nil
}

// Replace logs and applies a cancel-and-repost.
func (s *OrderService) Replace(clientID uint64, newPriceIdx int32, newQty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := fmt.Sprintf("%d|%d|%d", clientID, newPriceIdx, newQty)
	if err := s.append(wal.RecordReplace, payload); err != nil {
		return false, err
	}
	return s.engine.Replace(clientID, newPriceIdx, newQty, s.clock.Now()), nil
}

func (s *OrderService) append(t wal.RecordType, payload string) error {
	rec := wal.NewRecord(t, s.seq.Next(), []byte(payload))
	if err := s.wal.Append(rec); err != nil {
		return fmt.Errorf("service: wal append: %w", err)
	}
	return nil
}

//
// ---------------- Trade fan-out ----------------
//

// OnTrade receives every execution synchronously from the kernel. It
// runs under the command lock and must not take it again.
func (s *OrderService) OnTrade(t book.Trade) {
	s.trades.OnTrade(t)
	if s.replaying {
		return // already delivered before the restart
	}

	seq := s.tradeSeq.Next()
	if s.outbox != nil {
		payload, err := outbox.TradeEvent{
			Seq:         seq,
			TakerClient: t.TakerClient,
			MakerClient: t.MakerClient,
			Qty:         t.Qty,
			PriceIdx:    t.PriceIdx,
			TS:          t.TS,
		}.Encode()
		if err == nil {
			if err := s.outbox.PutNew(seq, payload); err != nil {
				s.log.Error("outbox write failed", "seq", seq, "err", err)
			}
		}
	}
	if s.feed != nil {
		s.feed.OnTrade(t)
	}
	if s.archive != nil {
		s.archive.OnTrade(t)
	}
}

//
// ---------------- Queries ----------------
//

type BookTop struct {
	BidIdx int32 `json:"bid_idx"`
	BidQty int64 `json:"bid_qty"`
	HasBid bool  `json:"has_bid"`
	AskIdx int32 `json:"ask_idx"`
	AskQty int64 `json:"ask_qty"`
	HasAsk bool  `json:"has_ask"`
}

func (s *OrderService) Top() BookTop {
	s.mu.Lock()
	defer s.mu.Unlock()

	var top BookTop
	if idx, ok := s.engine.BestBid(); ok {
		top.BidIdx, top.BidQty, top.HasBid = idx, s.engine.LevelQty(book.Buy, idx), true
	}
	if idx, ok := s.engine.BestAsk(); ok {
		top.AskIdx, top.AskQty, top.HasAsk = idx, s.engine.LevelQty(book.Sell, idx), true
	}
	return top
}

func (s *OrderService) LevelQty(side book.Side, idx int32) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.LevelQty(side, idx)
}

// Trades returns the most recent n executions, oldest first. n <= 0
// returns everything.
func (s *OrderService) Trades(n int) []book.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.trades.Trades()
	if n <= 0 || n >= len(all) {
		out := make([]book.Trade, len(all))
		copy(out, all)
		return out
	}
	out := make([]book.Trade, n)
	copy(out, all[len(all)-n:])
	return out
}
