package grid

import "github.com/shopspring/decimal"

// TickRounder snaps prices to the venue tick and quantities to the venue
// step. Ladder prices are rounded toward the worse side of the trade for
// the given side: down for LONG entries/levels, up for SHORT ones, so a
// printed level is always reachable (§4.5.1).
//
// The implementation (gridsymbol.Symbol) is supplied by the caller rather
// than imported here, keeping this package free of venue-specific types.
type TickRounder interface {
	RoundPriceDown(decimal.Decimal) decimal.Decimal
	RoundPriceUp(decimal.Decimal) decimal.Decimal
	RoundQtyDown(decimal.Decimal) decimal.Decimal
}

func roundWorseSide(px decimal.Decimal, side PositionSide, tr TickRounder) decimal.Decimal {
	if side == SideLong {
		return tr.RoundPriceDown(px)
	}
	return tr.RoundPriceUp(px)
}

// LevelPrice computes level_price(i, d) for 1-indexed level i.
func LevelPrice(gridCenter decimal.Decimal, level int, side PositionSide, cfg Config, tr TickRounder) decimal.Decimal {
	d := cfg.LevelDistances[level-1]
	var raw decimal.Decimal
	if side == SideLong {
		raw = gridCenter.Mul(decimal.NewFromInt(1).Sub(d))
	} else {
		raw = gridCenter.Mul(decimal.NewFromInt(1).Add(d))
	}
	return roundWorseSide(raw, side, tr)
}

// SLPrice computes sl_price(d).
func SLPrice(gridCenter decimal.Decimal, side PositionSide, cfg Config, tr TickRounder) decimal.Decimal {
	var raw decimal.Decimal
	if side == SideLong {
		raw = gridCenter.Mul(decimal.NewFromInt(1).Sub(cfg.SLDistance))
	} else {
		raw = gridCenter.Mul(decimal.NewFromInt(1).Add(cfg.SLDistance))
	}
	return roundWorseSide(raw, side, tr)
}

// TPPrice computes the take-profit price from an average fill price. Exit
// limits round the same direction as entries (down for LONG, up for SHORT):
// that rounds a sell limit to a price that is at least as easy to reach.
func TPPrice(avgPrice decimal.Decimal, side PositionSide, cfg Config, tr TickRounder) decimal.Decimal {
	var raw decimal.Decimal
	if side == SideLong {
		raw = avgPrice.Mul(decimal.NewFromInt(1).Add(cfg.TPPct))
	} else {
		raw = avgPrice.Mul(decimal.NewFromInt(1).Sub(cfg.TPPct))
	}
	return roundWorseSide(raw, side, tr)
}

// BEPrice computes the break-even price from an average fill price.
func BEPrice(avgPrice decimal.Decimal, side PositionSide, cfg Config, tr TickRounder) decimal.Decimal {
	var raw decimal.Decimal
	if side == SideLong {
		raw = avgPrice.Mul(decimal.NewFromInt(1).Add(cfg.BEPct))
	} else {
		raw = avgPrice.Mul(decimal.NewFromInt(1).Sub(cfg.BEPct))
	}
	return roundWorseSide(raw, side, tr)
}

// EntryQty computes the quantity for a ladder level per §4.5.2's formula:
// capital * entry_ratios[i] * leverage / level_price(i).
func EntryQty(capital decimal.Decimal, level int, price decimal.Decimal, cfg Config, side PositionSide, tr TickRounder) decimal.Decimal {
	ratio := cfg.EntryRatios[level-1]
	leverage := cfg.LeverageLong
	if side == SideShort {
		leverage = cfg.LeverageShort
	}
	notional := capital.Mul(ratio).Mul(decimal.NewFromInt(int64(leverage)))
	qty := notional.Div(price)
	return tr.RoundQtyDown(qty)
}

// DesiredOrders computes the full desired-order set for the current state,
// per the table in §4.5.2. gridCenter must be non-nil; callers check
// state.GridCenter before calling.
func DesiredOrders(state StrategyState, cfg Config, tr TickRounder) []DesiredOrder {
	gc := *state.GridCenter
	n := cfg.MaxEntryLevel

	if state.PositionSide == SideNone {
		return entryLadder(gc, 1, n, state.Capital, cfg, tr)
	}

	side := state.PositionSide
	var orders []DesiredOrder

	if state.CurrentLevel == 1 {
		orders = append(orders, DesiredOrder{
			Kind:       KindTP,
			Side:       side,
			Price:      TPPrice(state.AvgPrice, side, cfg, tr),
			Qty:        state.TotalSize,
			ReduceOnly: true,
		})
	} else {
		orders = append(orders, DesiredOrder{
			Kind:       KindBE,
			Side:       side,
			Price:      BEPrice(state.AvgPrice, side, cfg, tr),
			Qty:        state.TotalSize.Sub(state.Level1Qty),
			ReduceOnly: true,
		})
	}

	if state.CurrentLevel < n {
		// Only the open position's own side keeps its remaining entries.
		sideCfg := cfg
		sideCfg.Direction = DirectionLong
		if side == SideShort {
			sideCfg.Direction = DirectionShort
		}
		orders = append(orders, entryLadder(gc, state.CurrentLevel+1, n, state.Capital, sideCfg, tr)...)
	}

	if state.CurrentLevel == n {
		orders = append(orders, DesiredOrder{
			Kind:          KindSL,
			Side:          side,
			StopPrice:     SLPrice(gc, side, cfg, tr),
			ClosePosition: true,
		})
	}

	return orders
}

func entryLadder(gridCenter decimal.Decimal, from, to int, capital decimal.Decimal, cfg Config, tr TickRounder) []DesiredOrder {
	var orders []DesiredOrder
	sides := armedSides(cfg.Direction)
	for _, side := range sides {
		for lvl := from; lvl <= to; lvl++ {
			price := LevelPrice(gridCenter, lvl, side, cfg, tr)
			qty := EntryQty(capital, lvl, price, cfg, side, tr)
			orders = append(orders, DesiredOrder{
				Kind:  KindEntry,
				Level: lvl,
				Side:  side,
				Price: price,
				Qty:   qty,
			})
		}
	}
	return orders
}

func armedSides(d TradeDirection) []PositionSide {
	switch d {
	case DirectionLong:
		return []PositionSide{SideLong}
	case DirectionShort:
		return []PositionSide{SideShort}
	default:
		return []PositionSide{SideLong, SideShort}
	}
}
