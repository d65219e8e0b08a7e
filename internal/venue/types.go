package venue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side mirrors the teacher's OrderSide (broker.go) but is named Side here
// since this package also deals in position sides.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType enumerates the venue order types this spec's components place.
type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeMarket     OrderType = "MARKET"
)

// PlacedOrder is the venue's confirmation for a placed order — the shape
// intentionally mirrors the teacher's PlacedOrder (broker.go) so JSON
// responses from a resty call can unmarshal directly into it.
type PlacedOrder struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	Qty           decimal.Decimal `json:"qty"`
	ReduceOnly    bool      `json:"reduce_only"`
	ClosePosition bool      `json:"close_position"`
	CreatedAt     time.Time `json:"created_at"`
}

// OpenOrder is one resting order as reported by get_open_orders (§4.3).
type OpenOrder struct {
	OrderID    string
	Side       Side
	Type       OrderType
	Price      decimal.Decimal
	StopPrice  decimal.Decimal
	Qty        decimal.Decimal
	ReduceOnly bool
}

// Position is the venue's authoritative position snapshot (§4.3's
// get_position). Side is "" when flat.
type Position struct {
	Side           Side
	Qty            decimal.Decimal
	AvgPrice       decimal.Decimal
	UnrealizedPnL  decimal.Decimal
}

// Kline is one closed-bar OHLCV event from the 1-minute kline stream
// (§4.3's subscribe operation), mirroring the teacher's Candle (strategy.go)
// but with decimal fields for exact ladder arithmetic.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Closed   bool
}

// MarginMode mirrors the venue's ISOLATED/CROSSED setting (§4.3's
// set_margin_mode). Only ISOLATED is used by this spec.
type MarginMode string

const MarginModeIsolated MarginMode = "ISOLATED"
