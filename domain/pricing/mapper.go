// Package pricing converts between real prices and ladder tick indices.
// Decimal arithmetic lives here so the matching kernel stays integral.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mapper maps price = min + index * tick, clamping to [0, levels).
type Mapper struct {
	tick   decimal.Decimal
	min    decimal.Decimal
	levels int32
}

func New(tick, min decimal.Decimal, levels int) (Mapper, error) {
	if !tick.IsPositive() {
		return Mapper{}, fmt.Errorf("pricing: tick must be positive, got %s", tick)
	}
	if levels <= 0 {
		return Mapper{}, fmt.Errorf("pricing: levels must be positive, got %d", levels)
	}
	return Mapper{tick: tick, min: min, levels: int32(levels)}, nil
}

// ToIndex rounds price to the nearest tick and clamps into the ladder.
func (m Mapper) ToIndex(price decimal.Decimal) int32 {
	idx := int32(price.Sub(m.min).Div(m.tick).Round(0).IntPart())
	if idx < 0 {
		idx = 0
	}
	if idx >= m.levels {
		idx = m.levels - 1
	}
	return idx
}

// ToPrice returns the real price of a tick index.
func (m Mapper) ToPrice(idx int32) decimal.Decimal {
	return m.min.Add(m.tick.Mul(decimal.NewFromInt(int64(idx))))
}

// Mid is the middle tick of the ladder.
func (m Mapper) Mid() int32 {
	return m.levels / 2
}

func (m Mapper) Levels() int {
	return int(m.levels)
}
