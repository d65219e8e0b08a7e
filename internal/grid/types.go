// Package grid implements the grid-martingale decision core (C5): a pure
// function from (previous StrategyState, GridConfig snapshot, event) to
// (next StrategyState, desired-orders diff). It performs no I/O; all venue
// and persistence side effects are driven by the reconciler (package
// reconciler) that consumes this package's output.
package grid

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeDirection governs which side(s) of the ladder are armed.
type TradeDirection int

const (
	DirectionLong TradeDirection = iota
	DirectionShort
	DirectionBoth
)

func (d TradeDirection) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	case DirectionBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses the TRADE_DIRECTION config value.
func ParseDirection(s string) (TradeDirection, error) {
	switch s {
	case "LONG":
		return DirectionLong, nil
	case "SHORT":
		return DirectionShort, nil
	case "BOTH":
		return DirectionBoth, nil
	default:
		return 0, fmt.Errorf("grid: unknown trade_direction %q", s)
	}
}

// PositionSide is the side of an open position, or NONE while flat.
type PositionSide int

const (
	SideNone PositionSide = iota
	SideLong
	SideShort
)

func (s PositionSide) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Config is the hot-reloadable GridConfig snapshot (§3). It is produced by
// package config and handed to the machine and reconciler read-only, once
// per tick — the core never reads global state (§9).
type Config struct {
	LeverageLong  int
	LeverageShort int
	Direction     TradeDirection

	GridRangePct decimal.Decimal // half-width is GridRangePct/2

	MaxEntryLevel int               // N
	EntryRatios   []decimal.Decimal // len N, fractions of capital per level, sum <= 1
	LevelDistances []decimal.Decimal // len N, strictly positive & increasing

	SLDistance decimal.Decimal // must exceed LevelDistances[N-1]
	TPPct      decimal.Decimal
	BEPct      decimal.Decimal // must be < TPPct

	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
}

// Validate enforces the config-load invariants named in §4.1 and I2.
func (c Config) Validate() error {
	n := c.MaxEntryLevel
	if n <= 0 {
		return fmt.Errorf("grid: max_entry_level must be positive, got %d", n)
	}
	if len(c.EntryRatios) != n {
		return fmt.Errorf("grid: entry_ratios has %d entries, want %d", len(c.EntryRatios), n)
	}
	if len(c.LevelDistances) != n {
		return fmt.Errorf("grid: level_distances has %d entries, want %d", len(c.LevelDistances), n)
	}
	sum := decimal.Zero
	for i, r := range c.EntryRatios {
		if r.IsNegative() {
			return fmt.Errorf("grid: entry_ratios[%d] is negative", i)
		}
		sum = sum.Add(r)
	}
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("grid: entry_ratios sum %s exceeds 1", sum)
	}
	prev := decimal.Zero
	for i, d := range c.LevelDistances {
		if !d.IsPositive() {
			return fmt.Errorf("grid: level_distances[%d] must be strictly positive", i)
		}
		if !d.GreaterThan(prev) {
			return fmt.Errorf("grid: level_distances must be strictly increasing (index %d)", i)
		}
		prev = d
	}
	if !c.SLDistance.GreaterThan(c.LevelDistances[n-1]) {
		return fmt.Errorf("grid: sl_distance must exceed the last level_distances entry")
	}
	if !c.TPPct.IsPositive() || !c.BEPct.IsPositive() {
		return fmt.Errorf("grid: tp_pct and be_pct must be positive")
	}
	if !c.BEPct.LessThan(c.TPPct) {
		return fmt.Errorf("grid: be_pct must be less than tp_pct")
	}
	if c.LeverageLong <= 0 || c.LeverageShort <= 0 {
		return fmt.Errorf("grid: leverages must be positive")
	}
	if c.GridRangePct.IsNegative() || c.MakerFee.IsNegative() || c.TakerFee.IsNegative() {
		return fmt.Errorf("grid: grid_range_pct, maker_fee and taker_fee must not be negative")
	}
	return nil
}

// OrderKind names the desired-order role (never the venue order type alone,
// since BE/TP/entries are all LIMIT at the venue but distinct for the
// purposes of invariants I3/I4).
type OrderKind int

const (
	KindEntry OrderKind = iota
	KindTP
	KindBE
	KindSL
)

func (k OrderKind) String() string {
	switch k {
	case KindEntry:
		return "ENTRY"
	case KindTP:
		return "TP"
	case KindBE:
		return "BE"
	case KindSL:
		return "SL"
	default:
		return "UNKNOWN"
	}
}

// DesiredOrder is one element of the desired-orders set the reconciler
// diffs against the venue's actual open orders (§4.5.2, §4.6).
type DesiredOrder struct {
	Kind  OrderKind
	Level int // entry level this order belongs to; 0 for TP/BE/SL

	Side PositionSide // LONG means "closes/enters a LONG position"; venue side is derived by the reconciler

	Price         decimal.Decimal // limit price; zero for stop-market
	StopPrice     decimal.Decimal // stop trigger price; zero for limit orders
	Qty           decimal.Decimal // zero when ClosePosition is true
	ReduceOnly    bool
	ClosePosition bool // STOP_MARKET closePosition=true semantics (§6)
}

// Entry is one filled ladder level contributing to the open position.
type Entry struct {
	Level     int
	FillPrice decimal.Decimal
	BaseQty   decimal.Decimal
	Notional  decimal.Decimal
}

// StrategyState is the snapshot persisted by the state store (C2) (§3). The
// position transitions are this package's pure functions; the reconciler
// also sets DesiredOrders and LastSyncedAt on each tick and overwrites
// TotalSize/AvgPrice with the venue's values after synthesized entry fills.
type StrategyState struct {
	SchemaVersion int `json:"schema_version"`

	GridCenter      *decimal.Decimal `json:"grid_center"` // nullable until first bar closes
	StartGridCenter decimal.Decimal  `json:"start_grid_center"`

	PositionSide PositionSide `json:"position_side"`
	CurrentLevel int          `json:"current_level"`

	Entries []Entry         `json:"entries"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	TotalSize decimal.Decimal `json:"total_size"`
	Level1Qty decimal.Decimal `json:"level1_qty"`

	EntryFees decimal.Decimal `json:"entry_fees"`
	Capital   decimal.Decimal `json:"capital"`

	DesiredOrders []DesiredOrder `json:"desired_orders"`

	LastSyncedAt time.Time `json:"last_synced_at"`
}

// CurrentSchemaVersion is bumped whenever StrategyState's wire shape changes
// in a way that requires migration (§6).
const CurrentSchemaVersion = 1

// New returns the initial flat state with the given starting capital.
func New(initialCapital decimal.Decimal) StrategyState {
	return StrategyState{
		SchemaVersion: CurrentSchemaVersion,
		PositionSide:  SideNone,
		CurrentLevel:  0,
		Entries:       nil,
		AvgPrice:      decimal.Zero,
		TotalSize:     decimal.Zero,
		Level1Qty:     decimal.Zero,
		EntryFees:     decimal.Zero,
		Capital:       initialCapital,
	}
}

// IsFlat reports whether position_side is NONE. It checks only the side, not
// the rest of invariant 1 (level, entries, total size).
func (s StrategyState) IsFlat() bool {
	return s.PositionSide == SideNone
}
