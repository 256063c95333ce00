package book

// Trade is one execution. PriceIdx is always the maker's resting tick.
type Trade struct {
	TakerClient uint64
	MakerClient uint64
	Qty         int64
	PriceIdx    int32
	TS          uint64
}

// TradeSink consumes executions as they happen.
type TradeSink interface {
	OnTrade(Trade)
}

// TradeLog is the default sink: an append-only in-memory record.
type TradeLog struct {
	trades []Trade
}

func (l *TradeLog) OnTrade(t Trade) {
	l.trades = append(l.trades, t)
}

// Trades returns the log in execution order. Callers must treat the
// slice as read-only.
func (l *TradeLog) Trades() []Trade {
	return l.trades
}

func (l *TradeLog) Len() int {
	return len(l.trades)
}

type fanoutSink []TradeSink

func (f fanoutSink) OnTrade(t Trade) {
	for _, s := range f {
		s.OnTrade(t)
	}
}

// FanOut delivers every trade to each sink in order.
func FanOut(sinks ...TradeSink) TradeSink {
	return fanoutSink(sinks)
}
