// Package sim generates synthetic order flow for driving the engine.
package sim

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"tycho/domain/book"
	"tycho/domain/pricing"
)

// Request is one generated order.
type Request struct {
	Type     book.OrderType
	Side     book.Side
	PriceIdx int32 // -1 for market
	Qty      int64
	TIF      book.TimeInForce
}

// Config tunes the generated flow. Probabilities are in [0, 1].
type Config struct {
	Seed       int64
	PriceLow   float64
	PriceHigh  float64
	MaxQty     int64
	MarketProb float64
	IOCEvery   int // every Nth request is IOC when it is a limit order; 0 disables
}

// Generator produces a deterministic stream of requests for a seed.
type Generator struct {
	rng    *rand.Rand
	mapper pricing.Mapper
	cfg    Config
	count  int
}

func NewGenerator(cfg Config, mapper pricing.Mapper) *Generator {
	if cfg.MaxQty <= 0 {
		cfg.MaxQty = 100
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		mapper: mapper,
		cfg:    cfg,
	}
}

// Next returns the next request in the stream.
func (g *Generator) Next() Request {
	g.count++

	side := book.Buy
	if g.rng.Intn(2) == 1 {
		side = book.Sell
	}
	qty := 1 + g.rng.Int63n(g.cfg.MaxQty)

	if g.rng.Float64() < g.cfg.MarketProb {
		return Request{Type: book.Market, Side: side, PriceIdx: -1, Qty: qty}
	}

	p := g.cfg.PriceLow + g.rng.Float64()*(g.cfg.PriceHigh-g.cfg.PriceLow)
	idx := g.mapper.ToIndex(decimal.NewFromFloat(p))

	tif := book.GFD
	if g.cfg.IOCEvery > 0 && g.count%g.cfg.IOCEvery == 0 {
		tif = book.IOC
	}
	return Request{Type: book.Limit, Side: side, PriceIdx: idx, Qty: qty, TIF: tif}
}

// Uint64 exposes the stream's RNG for driver-side decisions such as
// picking a random client to cancel.
func (g *Generator) Uint64() uint64 {
	return g.rng.Uint64()
}
