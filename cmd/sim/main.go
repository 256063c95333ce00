// The sim binary drives the bare kernel with a synthetic workload and
// prints summary statistics. No WAL, no network: it measures the
// matching core alone.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"tycho/domain/book"
	"tycho/domain/pricing"
	"tycho/infra/sequence"
	"tycho/sim"
)

func main() {
	var (
		levels  = flag.Int("levels", 20001, "ladder width in ticks (odd)")
		ringCap = flag.Uint64("ring", 4096, "per-level ring capacity (power of two)")
		poolCap = flag.Int("pool", 3_000_000, "order pool capacity")
		preload = flag.Int("preload", 100_000, "orders to preload")
		total   = flag.Int("total", 500_000, "workload orders to run")
		seed    = flag.Int64("seed", 123, "workload seed")
	)
	flag.Parse()

	mapper, err := pricing.New(
		decimal.RequireFromString("0.01"),
		decimal.Zero,
		*levels,
	)
	if err != nil {
		log.Fatalf("pricing init failed: %v", err)
	}

	clock := sequence.NewClock()
	engine, err := book.New(book.Config{
		Levels:       *levels,
		RingCapacity: *ringCap,
		PoolCapacity: *poolCap,
	}, clock, nil)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	// ---------------- Preload ----------------

	fmt.Println("preloading book...")
	nextClient := uint64(1)
	prng := rand.New(rand.NewSource(42))
	for i := 0; i < *preload; i++ {
		off := float64(prng.Intn(2001)) * 0.01
		base := 50.0
		p := base - off
		side := book.Sell
		if i&1 == 1 {
			p = base + off
			side = book.Buy
		}
		idx := mapper.ToIndex(decimal.NewFromFloat(p))
		qty := int64(i&7) + 1
		_, _ = engine.PlaceLimit(nextClient, side, idx, qty, clock.Now(), book.GFD)
		nextClient++
	}
	fmt.Println("preload done, starting workload...")

	// ---------------- Workload ----------------

	gen := sim.NewGenerator(sim.Config{
		Seed:       *seed,
		PriceLow:   49.0,
		PriceHigh:  51.0,
		MaxQty:     100,
		MarketProb: 0.03,
		IOCEvery:   200,
	}, mapper)

	start := time.Now()
	for i := 0; i < *total; i++ {
		req := gen.Next()
		if req.Type == book.Market {
			_, _ = engine.PlaceMarket(nextClient, req.Side, req.Qty, clock.Now())
		} else {
			_, _ = engine.PlaceLimit(nextClient, req.Side, req.PriceIdx, req.Qty, clock.Now(), req.TIF)
		}
		nextClient++

		if i > 0 && i%10_000 == 0 {
			cid := gen.Uint64()%nextClient + 1
			engine.Cancel(cid)
		}
	}
	elapsed := time.Since(start)

	// ---------------- Stats ----------------

	trades := engine.Trades()
	fmt.Printf("done. orders=%d time=%s throughput=%.0f orders/s\n",
		*total, elapsed, float64(*total)/elapsed.Seconds())
	fmt.Printf("trades=%d resting=%d\n", len(trades), engine.PoolInUse())

	for i := 0; i < len(trades) && i < 10; i++ {
		tr := trades[i]
		fmt.Printf("%d: taker=%d maker=%d qty=%d price=%s\n",
			i, tr.TakerClient, tr.MakerClient, tr.Qty, mapper.ToPrice(tr.PriceIdx))
	}
}
