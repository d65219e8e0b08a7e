// Package gridsymbol describes the single perpetual-futures symbol a process trades.
package gridsymbol

import "github.com/shopspring/decimal"

// Symbol is the venue identifier plus the tick/step granularity the exchange
// enforces for that market. It is constant for the lifetime of a process:
// each symbol runs as its own process sharing no state with any other (§1).
type Symbol struct {
	Venue string // e.g. "binance-futures"
	Name  string // e.g. "BTCUSDT"

	PriceTick decimal.Decimal // minimum price increment
	QtyStep   decimal.Decimal // minimum quantity increment
}

// RoundPriceDown snaps a price to the nearest tick at or below it.
func (s Symbol) RoundPriceDown(px decimal.Decimal) decimal.Decimal {
	if s.PriceTick.IsZero() {
		return px
	}
	return px.Div(s.PriceTick).Floor().Mul(s.PriceTick)
}

// RoundPriceUp snaps a price to the nearest tick at or above it.
func (s Symbol) RoundPriceUp(px decimal.Decimal) decimal.Decimal {
	if s.PriceTick.IsZero() {
		return px
	}
	return px.Div(s.PriceTick).Ceil().Mul(s.PriceTick)
}

// RoundQtyDown truncates a quantity toward the venue step, never rounding up,
// so a reduce-only close never asks for more than is actually held (§4.5.4).
func (s Symbol) RoundQtyDown(qty decimal.Decimal) decimal.Decimal {
	if s.QtyStep.IsZero() {
		return qty
	}
	return qty.Div(s.QtyStep).Floor().Mul(s.QtyStep)
}
