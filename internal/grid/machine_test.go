package grid

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// noopRounder performs no tick/step snapping, matching the exact arithmetic
// used by the end-to-end scenarios in the specification (§8).
type noopRounder struct{}

func (noopRounder) RoundPriceDown(d decimal.Decimal) decimal.Decimal { return d }
func (noopRounder) RoundPriceUp(d decimal.Decimal) decimal.Decimal   { return d }
func (noopRounder) RoundQtyDown(d decimal.Decimal) decimal.Decimal   { return d }

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func scenarioConfig() Config {
	return Config{
		LeverageLong:   15,
		LeverageShort:  15,
		Direction:      DirectionLong,
		GridRangePct:   d("0.04"),
		MaxEntryLevel:  4,
		EntryRatios:    []decimal.Decimal{d("0.05"), d("0.20"), d("0.25"), d("0.50")},
		LevelDistances: []decimal.Decimal{d("0.005"), d("0.010"), d("0.040"), d("0.045")},
		SLDistance:     d("0.05"),
		TPPct:          d("0.005"),
		BEPct:          d("0.001"),
		MakerFee:       decimal.Zero,
		TakerFee:       decimal.Zero,
	}
}

func closeTo(t *testing.T, got, want decimal.Decimal, tolerance string, what string) {
	t.Helper()
	if got.Sub(want).Abs().GreaterThan(d(tolerance)) {
		t.Errorf("%s: got %s, want ~%s", what, got, want)
	}
}

// B1 / S1 — first bar close arms the ladder; Level 1 fills and TPs.
func TestS1_L1TakeProfit(t *testing.T) {
	cfg := scenarioConfig()
	tr := noopRounder{}

	state := New(d("1000"))
	res := OnFirstBarClose(state, cfg, d("100000"), tr)
	state = res.State

	if state.GridCenter == nil || !state.GridCenter.Equal(d("100000")) {
		t.Fatalf("grid_center not set to bar close")
	}
	if len(state.DesiredOrders) != cfg.MaxEntryLevel {
		t.Fatalf("B1: want %d entry orders, got %d", cfg.MaxEntryLevel, len(state.DesiredOrders))
	}
	for _, o := range state.DesiredOrders {
		if o.Kind == KindTP || o.Kind == KindBE || o.Kind == KindSL {
			t.Fatalf("B1: unexpected %s order while flat", o.Kind)
		}
	}

	level1Price := LevelPrice(d("100000"), 1, SideLong, cfg, tr)
	closeTo(t, level1Price, d("99500"), "0.01", "level 1 price")

	fillQty := EntryQty(d("1000"), 1, level1Price, cfg, SideLong, tr)
	closeTo(t, fillQty, d("0.00754"), "0.00001", "level 1 qty")

	res = OnEntryFill(state, cfg, SideLong, 1, level1Price, fillQty, tr)
	state = res.State

	if state.CurrentLevel != 1 || len(state.Entries) != 1 {
		t.Fatalf("I1: current_level=%d len(entries)=%d", state.CurrentLevel, len(state.Entries))
	}
	hasTP := false
	for _, o := range state.DesiredOrders {
		if o.Kind == KindTP {
			hasTP = true
			closeTo(t, o.Price, d("99997.5"), "0.01", "TP price")
		}
		if o.Kind == KindBE {
			t.Fatalf("I3: BE present at level 1")
		}
	}
	if !hasTP {
		t.Fatalf("I4 precursor: expected TP order at level 1")
	}

	tpPrice := TPPrice(state.AvgPrice, SideLong, cfg, tr)
	res = OnTPFill(state, cfg, tpPrice, tr)
	state = res.State

	if state.PositionSide != SideNone || state.CurrentLevel != 0 {
		t.Fatalf("expected flat state after TP")
	}
	closeTo(t, state.Capital, d("1003.75"), "0.05", "capital after TP")
	if !state.GridCenter.Equal(tpPrice) {
		t.Fatalf("grid_center should re-center to tp_price")
	}
}

// S2 — Level 3 partial BE exit, re-centering grid_center.
func TestS2_L3BreakEven(t *testing.T) {
	cfg := scenarioConfig()
	tr := noopRounder{}

	state := New(d("1000"))
	state = OnFirstBarClose(state, cfg, d("100000"), tr).State

	for lvl := 1; lvl <= 3; lvl++ {
		price := LevelPrice(d("100000"), lvl, SideLong, cfg, tr)
		qty := EntryQty(d("1000"), lvl, price, cfg, SideLong, tr)
		state = OnEntryFill(state, cfg, SideLong, lvl, price, qty, tr).State
	}

	closeTo(t, state.AvgPrice, d("97529"), "5", "avg price after L3")
	closeTo(t, state.TotalSize, d("0.07690"), "0.0005", "total size after L3")

	if state.CurrentLevel != 3 {
		t.Fatalf("I1: current_level=%d, want 3", state.CurrentLevel)
	}

	bePrice := BEPrice(state.AvgPrice, SideLong, cfg, tr)
	closeTo(t, bePrice, d("97626.6"), "5", "BE price")

	res := OnBEFill(state, cfg, bePrice, state.Level1Qty, state.Entries[0].FillPrice, time.Time{}, tr)
	state = res.State

	if state.CurrentLevel != 1 || len(state.Entries) != 1 {
		t.Fatalf("after BE: current_level=%d entries=%d, want 1,1", state.CurrentLevel, len(state.Entries))
	}
	closeTo(t, *state.GridCenter, d("98019"), "5", "grid_center after BE")

	hasTP, hasEntries := false, 0
	for _, o := range state.DesiredOrders {
		switch o.Kind {
		case KindTP:
			hasTP = true
		case KindEntry:
			hasEntries++
		case KindBE:
			t.Fatalf("I3: BE should not persist after reset to level 1")
		}
	}
	if !hasTP {
		t.Fatalf("expected a fresh TP order after BE regrid")
	}
	if hasEntries != cfg.MaxEntryLevel-1 {
		t.Fatalf("expected %d remaining entry orders, got %d", cfg.MaxEntryLevel-1, hasEntries)
	}
}

// S2 with non-zero maker fee — a BE close must charge the entry fees for the
// levels it actually closes (L2, L3) and must NOT silently forgive them, and
// must carry the still-open level 1's entry fee forward rather than wiping
// it (I5: capital_after = capital_before + realized_pnl - fees).
func TestS2_L3BreakEven_ChargesClosedLevelEntryFees(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MakerFee = d("0.001")
	tr := noopRounder{}

	state := New(d("1000"))
	state = OnFirstBarClose(state, cfg, d("100000"), tr).State

	for lvl := 1; lvl <= 3; lvl++ {
		price := LevelPrice(d("100000"), lvl, SideLong, cfg, tr)
		qty := EntryQty(d("1000"), lvl, price, cfg, SideLong, tr)
		state = OnEntryFill(state, cfg, SideLong, lvl, price, qty, tr).State
	}

	// Derive expectations from the same per-entry fee formula OnEntryFill
	// used to accumulate state.EntryFees, rather than hardcoding magic
	// numbers, so this test tracks the accounting rule, not one data point.
	level1Entry := state.Entries[0]
	closedFeesWant := decimal.Zero
	for _, e := range state.Entries[1:] {
		closedFeesWant = closedFeesWant.Add(e.Notional.Mul(cfg.MakerFee))
	}
	level1FeeWant := level1Entry.Notional.Mul(cfg.MakerFee)

	bePrice := BEPrice(state.AvgPrice, SideLong, cfg, tr)
	closedQty := state.TotalSize.Sub(state.Level1Qty)
	beFee := bePrice.Mul(closedQty).Mul(cfg.MakerFee)
	pnl := grossPnL(SideLong, state.AvgPrice, bePrice, closedQty)
	netPnLWant := pnl.Sub(closedFeesWant).Sub(beFee)
	capitalWant := state.Capital.Add(netPnLWant)

	capitalBeforeBE := state.Capital
	res := OnBEFill(state, cfg, bePrice, state.Level1Qty, state.Entries[0].FillPrice, time.Time{}, tr)
	state = res.State

	if !state.Capital.Equal(capitalWant) {
		t.Fatalf("capital after BE with non-zero maker_fee: got %s, want %s (closed-level entry fees must be charged, not forgiven)", state.Capital, capitalWant)
	}
	if state.Capital.Equal(capitalBeforeBE.Add(pnl).Sub(beFee)) {
		t.Fatalf("capital after BE matches the no-entry-fee-charged formula; closed-level entry fees were forgiven")
	}
	if !state.EntryFees.Equal(level1FeeWant) {
		t.Fatalf("EntryFees after BE: got %s, want %s (level 1's fee must carry forward, not reset to zero)", state.EntryFees, level1FeeWant)
	}
}

// S3 — Level 4 (N) fill arms SL; SL fires.
func TestS3_L4StopLoss(t *testing.T) {
	cfg := scenarioConfig()
	tr := noopRounder{}

	state := New(d("1000"))
	state = OnFirstBarClose(state, cfg, d("100000"), tr).State

	for lvl := 1; lvl <= 4; lvl++ {
		price := LevelPrice(d("100000"), lvl, SideLong, cfg, tr)
		qty := EntryQty(d("1000"), lvl, price, cfg, SideLong, tr)
		state = OnEntryFill(state, cfg, SideLong, lvl, price, qty, tr).State
	}

	if state.CurrentLevel != cfg.MaxEntryLevel {
		t.Fatalf("I4 precondition: current_level=%d, want N", state.CurrentLevel)
	}
	hasSL := false
	for _, o := range state.DesiredOrders {
		if o.Kind == KindSL {
			hasSL = true
			if !o.ClosePosition {
				t.Fatalf("SL must use closePosition=true semantics")
			}
		}
	}
	if !hasSL {
		t.Fatalf("I4: SL must exist when current_level == N")
	}

	slPrice := SLPrice(*state.GridCenter, SideLong, cfg, tr)
	closeTo(t, slPrice, d("95000"), "1", "SL price")

	res := OnSLFill(state, cfg, slPrice, tr)
	state = res.State

	if state.PositionSide != SideNone {
		t.Fatalf("expected flat after SL")
	}
	closeTo(t, state.Capital, d("763"), "5", "capital after SL")
}

// S4 — range breach only while flat.
func TestS4_RangeBreach(t *testing.T) {
	cfg := scenarioConfig()
	tr := noopRounder{}

	state := New(d("1000"))
	state = OnFirstBarClose(state, cfg, d("100000"), tr).State

	if RangeBreached(state, cfg, d("101000")) {
		t.Fatalf("B2: breach must not fire inside range")
	}
	if !RangeBreached(state, cfg, d("102100")) {
		t.Fatalf("B2: expected upward breach past half-width")
	}

	res := OnRangeBreach(state, cfg, d("102100"), tr)
	state = res.State
	if !state.GridCenter.Equal(d("102100")) {
		t.Fatalf("grid_center should re-center to last close on breach")
	}

	// B2: breach predicate never fires once a position is open.
	state.PositionSide = SideLong
	state.CurrentLevel = 1
	if RangeBreached(state, cfg, d("999999")) {
		t.Fatalf("B2: breach must not fire while a position is open")
	}
}

// I2 — ladder levels are strictly monotonic.
func TestI2_LevelPricesMonotonic(t *testing.T) {
	cfg := scenarioConfig()
	tr := noopRounder{}
	gc := d("100000")

	prev := gc
	for lvl := 1; lvl <= cfg.MaxEntryLevel; lvl++ {
		px := LevelPrice(gc, lvl, SideLong, cfg, tr)
		if !px.LessThan(prev) {
			t.Fatalf("I2: level %d price %s not strictly below previous %s", lvl, px, prev)
		}
		prev = px
	}
}

func TestConfig_ValidateRejectsBadSLDistance(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SLDistance = cfg.LevelDistances[len(cfg.LevelDistances)-1] // not strictly greater: invalid
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when sl_distance does not exceed last level_distances entry")
	}
}

func TestConfig_ValidateRejectsOverAllocatedRatios(t *testing.T) {
	cfg := scenarioConfig()
	cfg.EntryRatios = []decimal.Decimal{d("0.5"), d("0.5"), d("0.5"), d("0.5")}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when entry_ratios sum exceeds 1")
	}
}
