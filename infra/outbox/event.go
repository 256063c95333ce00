package outbox

import (
	"encoding/json"
	"fmt"
)

// TradeEvent is the payload stored with each outbox entry and
// published by the broadcaster: a versioned JSON execution record.
// PriceIdx is a tick index; consumers map it to a real price.
type TradeEvent struct {
	V           int    `json:"v"`
	Seq         uint64 `json:"seq"`
	TakerClient uint64 `json:"taker"`
	MakerClient uint64 `json:"maker"`
	Qty         int64  `json:"qty"`
	PriceIdx    int32  `json:"price_idx"`
	TS          uint64 `json:"ts"`
}

const eventVersion = 1

func (e TradeEvent) Encode() ([]byte, error) {
	e.V = eventVersion
	return json.Marshal(e)
}

// DecodeTradeEvent parses an outbox payload, rejecting versions this
// build does not know.
func DecodeTradeEvent(b []byte) (TradeEvent, error) {
	var e TradeEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return TradeEvent{}, err
	}
	if e.V != eventVersion {
		return TradeEvent{}, fmt.Errorf("outbox: unsupported event version %d", e.V)
	}
	return e, nil
}
