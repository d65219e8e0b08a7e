package grid

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// JournalEvent is what the machine asks the caller (reconciler) to append to
// the trade journal (C4) after a transition. It carries everything C4's
// columns need (§4.4) without this package importing the journal package.
type JournalEvent struct {
	Kind              string // ENTRY_L1..L4, TP, PARTIAL_BE, SL, CANCEL_ALL, RECONCILE_MISMATCH
	Price             decimal.Decimal
	Qty               decimal.Decimal
	RealizedPnL       decimal.Decimal
	RunningCapital    decimal.Decimal
	GridCenterAtEvent decimal.Decimal
	StartGridCenter   decimal.Decimal
}

// Result bundles a transition's output: the next state (whose DesiredOrders
// holds the full desired-order set for the reconciler to diff against the
// venue) and any journal lines to append.
type Result struct {
	State    StrategyState
	Journal  []JournalEvent
}

func withDesired(s StrategyState, cfg Config, tr TickRounder) StrategyState {
	if s.GridCenter != nil {
		s.DesiredOrders = DesiredOrders(s, cfg, tr)
	} else {
		s.DesiredOrders = nil
	}
	return s
}

// OnFirstBarClose implements the B1 boundary: the first closed bar after
// start sets grid_center and emits the initial entry ladder.
func OnFirstBarClose(state StrategyState, cfg Config, closePrice decimal.Decimal, tr TickRounder) Result {
	state.GridCenter = &closePrice
	state.StartGridCenter = closePrice
	return Result{State: withDesired(state, cfg, tr)}
}

// RangeBreached implements the flat-state range-breach predicate (§4.5.3).
// It only ever fires while flat (B2).
func RangeBreached(state StrategyState, cfg Config, lastClose decimal.Decimal) bool {
	if state.PositionSide != SideNone || state.GridCenter == nil {
		return false
	}
	gc := *state.GridCenter
	halfWidth := cfg.GridRangePct.Div(decimal.NewFromInt(2))
	dev := lastClose.Sub(gc).Div(gc)

	switch cfg.Direction {
	case DirectionLong:
		return dev.GreaterThan(halfWidth) // upward breach only
	case DirectionShort:
		return dev.LessThan(halfWidth.Neg()) // downward breach only
	default: // BOTH
		return dev.Abs().GreaterThan(halfWidth)
	}
}

// OnRangeBreach re-centers the ladder on the current close and re-emits it.
func OnRangeBreach(state StrategyState, cfg Config, lastClose decimal.Decimal, tr TickRounder) Result {
	state.GridCenter = &lastClose
	return Result{
		State:   withDesired(state, cfg, tr),
		Journal: []JournalEvent{{Kind: "CANCEL_ALL", GridCenterAtEvent: lastClose, RunningCapital: state.Capital}},
	}
}

func entryJournalKind(level int) string {
	return fmt.Sprintf("ENTRY_L%d", level)
}

// OnEntryFill implements the ENTRY transition (§4.5.3). side is the side the
// position takes on the first fill from flat; on subsequent fills it must
// equal state.PositionSide.
func OnEntryFill(state StrategyState, cfg Config, side PositionSide, level int, fillPrice, fillQty decimal.Decimal, tr TickRounder) Result {
	notional := fillPrice.Mul(fillQty)
	fee := notional.Mul(cfg.MakerFee)

	if state.PositionSide == SideNone {
		state.PositionSide = side
	}

	state.Entries = append(state.Entries, Entry{
		Level:     level,
		FillPrice: fillPrice,
		BaseQty:   fillQty,
		Notional:  notional,
	})
	state.CurrentLevel = len(state.Entries)
	if level == 1 {
		state.Level1Qty = fillQty
	}

	state.TotalSize = state.TotalSize.Add(fillQty)
	state.EntryFees = state.EntryFees.Add(fee)
	state.AvgPrice = weightedAvg(state.Entries)

	gc := *state.GridCenter
	return Result{
		State: withDesired(state, cfg, tr),
		Journal: []JournalEvent{{
			Kind:              entryJournalKind(level),
			Price:             fillPrice,
			Qty:               fillQty,
			RunningCapital:    state.Capital,
			GridCenterAtEvent: gc,
			StartGridCenter:   state.StartGridCenter,
		}},
	}
}

func weightedAvg(entries []Entry) decimal.Decimal {
	totalQty := decimal.Zero
	totalQuote := decimal.Zero
	for _, e := range entries {
		totalQty = totalQty.Add(e.BaseQty)
		totalQuote = totalQuote.Add(e.FillPrice.Mul(e.BaseQty))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalQuote.Div(totalQty)
}

// OnTPFill implements the TP transition: full exit at level 1, capital
// compounds by net PnL, and the ladder re-arms from the TP price (§4.5.3).
func OnTPFill(state StrategyState, cfg Config, fillPrice decimal.Decimal, tr TickRounder) Result {
	side := state.PositionSide
	qty := state.TotalSize
	fee := fillPrice.Mul(qty).Mul(cfg.MakerFee)

	pnl := grossPnL(side, state.AvgPrice, fillPrice, qty)
	netPnL := pnl.Sub(state.EntryFees).Sub(fee)

	gcBefore := *state.GridCenter
	startGC := state.StartGridCenter

	state.Capital = state.Capital.Add(netPnL)
	state.Entries = nil
	state.TotalSize = decimal.Zero
	state.Level1Qty = decimal.Zero
	state.CurrentLevel = 0
	state.PositionSide = SideNone
	state.EntryFees = decimal.Zero
	state.AvgPrice = decimal.Zero
	state.GridCenter = &fillPrice

	return Result{
		State: withDesired(state, cfg, tr),
		Journal: []JournalEvent{{
			Kind:              "TP",
			Price:             fillPrice,
			Qty:               qty,
			RealizedPnL:       netPnL,
			RunningCapital:    state.Capital,
			GridCenterAtEvent: gcBefore,
			StartGridCenter:   startGC,
		}},
	}
}

// OnSLFill implements the SL transition: full exit at level N via
// STOP_MARKET closePosition, capital compounds by net PnL (§4.5.3).
func OnSLFill(state StrategyState, cfg Config, fillPrice decimal.Decimal, tr TickRounder) Result {
	side := state.PositionSide
	qty := state.TotalSize
	fee := fillPrice.Mul(qty).Mul(cfg.TakerFee) // stop-market is a taker fill

	pnl := grossPnL(side, state.AvgPrice, fillPrice, qty)
	netPnL := pnl.Sub(state.EntryFees).Sub(fee)

	gcBefore := *state.GridCenter
	startGC := state.StartGridCenter

	state.Capital = state.Capital.Add(netPnL)
	state.Entries = nil
	state.TotalSize = decimal.Zero
	state.Level1Qty = decimal.Zero
	state.CurrentLevel = 0
	state.PositionSide = SideNone
	state.EntryFees = decimal.Zero
	state.AvgPrice = decimal.Zero
	state.GridCenter = &fillPrice

	return Result{
		State: withDesired(state, cfg, tr),
		Journal: []JournalEvent{{
			Kind:              "SL",
			Price:             fillPrice,
			Qty:               qty,
			RealizedPnL:       netPnL,
			RunningCapital:    state.Capital,
			GridCenterAtEvent: gcBefore,
			StartGridCenter:   startGC,
		}},
	}
}

// BEMismatchTolerance bounds how far the venue's post-fill position qty may
// differ from level1_qty before a reconciliation warning is raised (Q1).
var BEMismatchTolerance = decimal.NewFromFloat(0.0001)

// OnBEFill implements the BE transition (§4.5.3). venuePositionQty is the
// authoritative post-fill quantity the reconciler polled from the venue at
// the start of the tick (the reconciler cancels all resting orders once this
// transition has run); it may differ from level1_qty, in which case
// Q1 is resolved as "warn and audit": the caller gets a RECONCILE_MISMATCH
// journal line in addition to PARTIAL_BE. Realized PnL is net of the BE
// fill's own fee and the entry fees for every level being closed (L2..Lk);
// level 1's entry fee is not realized yet since level 1 stays open, so it
// carries forward in state.EntryFees for whatever TP/SL eventually closes it
// (I5).
func OnBEFill(state StrategyState, cfg Config, beFillPrice, venuePositionQty, venueAvgPrice decimal.Decimal, now time.Time, tr TickRounder) Result {
	side := state.PositionSide
	closedQty := state.TotalSize.Sub(state.Level1Qty)
	fee := beFillPrice.Mul(closedQty).Mul(cfg.MakerFee)

	// Only the entry fees for the levels actually closing here (L2..Lk) are
	// realized now; the level-1 entry fee is carried forward uncharged until
	// level 1 itself closes via TP or SL, matching OnTPFill/OnSLFill's
	// "fees are charged on the fill that realizes them" accounting (I5).
	closedEntryFees, level1Fee := splitEntryFees(state.Entries, cfg)

	pnl := grossPnL(side, state.AvgPrice, beFillPrice, closedQty)
	netPnL := pnl.Sub(closedEntryFees).Sub(fee)

	gcBefore := *state.GridCenter
	startGC := state.StartGridCenter

	journal := []JournalEvent{{
		Kind:              "PARTIAL_BE",
		Price:             beFillPrice,
		Qty:               closedQty,
		RealizedPnL:       netPnL,
		RunningCapital:    state.Capital.Add(netPnL),
		GridCenterAtEvent: gcBefore,
		StartGridCenter:   startGC,
	}}

	mismatch := venuePositionQty.Sub(state.Level1Qty).Abs().GreaterThan(BEMismatchTolerance)
	if mismatch {
		journal = append(journal, JournalEvent{
			Kind:              "RECONCILE_MISMATCH",
			Price:             venueAvgPrice,
			Qty:               venuePositionQty,
			RunningCapital:    state.Capital.Add(netPnL),
			GridCenterAtEvent: gcBefore,
			StartGridCenter:   startGC,
		})
	}

	// The remaining level-1 lot keeps the pre-BE average price; only its
	// quantity is taken from the venue.
	resyncedQty := venuePositionQty
	resyncedAvg := state.AvgPrice

	state.Capital = state.Capital.Add(netPnL)
	state.Entries = []Entry{{Level: 1, FillPrice: resyncedAvg, BaseQty: resyncedQty, Notional: resyncedAvg.Mul(resyncedQty)}}
	state.CurrentLevel = 1
	state.TotalSize = resyncedQty
	state.Level1Qty = resyncedQty
	state.AvgPrice = resyncedAvg
	state.EntryFees = level1Fee // L2..Lk fees were just debited above; L1's carries forward to its own close

	var newGC decimal.Decimal
	d1 := cfg.LevelDistances[0]
	if side == SideLong {
		newGC = resyncedAvg.Div(decimal.NewFromInt(1).Sub(d1))
	} else {
		newGC = resyncedAvg.Div(decimal.NewFromInt(1).Add(d1))
	}
	state.GridCenter = &newGC
	state.LastSyncedAt = now

	return Result{State: withDesired(state, cfg, tr), Journal: journal}
}

// splitEntryFees recomputes the maker fee charged on each fill recorded in
// entries and splits it into the portion belonging to level 1 (still open
// after a BE) and the portion belonging to every other level (closed by the
// BE fill). It recomputes from Entry.Notional rather than trusting a single
// running total so the closed and carry-forward portions can be attributed
// separately.
func splitEntryFees(entries []Entry, cfg Config) (closed, level1 decimal.Decimal) {
	closed = decimal.Zero
	level1 = decimal.Zero
	for _, e := range entries {
		fee := e.Notional.Mul(cfg.MakerFee)
		if e.Level == 1 {
			level1 = level1.Add(fee)
		} else {
			closed = closed.Add(fee)
		}
	}
	return closed, level1
}

func grossPnL(side PositionSide, avgPrice, exitPrice, qty decimal.Decimal) decimal.Decimal {
	if side == SideLong {
		return exitPrice.Sub(avgPrice).Mul(qty)
	}
	return avgPrice.Sub(exitPrice).Mul(qty)
}
