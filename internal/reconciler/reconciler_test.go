package reconciler

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/gridbot/internal/grid"
	"github.com/chidi150c/gridbot/internal/gridsymbol"
	"github.com/chidi150c/gridbot/internal/journal"
	"github.com/chidi150c/gridbot/internal/state"
	"github.com/chidi150c/gridbot/internal/venue"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testConfig() grid.Config {
	return grid.Config{
		LeverageLong:   1,
		LeverageShort:  1,
		Direction:      grid.DirectionLong,
		GridRangePct:   d("0.20"),
		MaxEntryLevel:  2,
		EntryRatios:    []decimal.Decimal{d("0.5"), d("0.5")},
		LevelDistances: []decimal.Decimal{d("0.01"), d("0.02")},
		SLDistance:     d("0.03"),
		TPPct:          d("0.01"),
		BEPct:          d("0.005"),
		MakerFee:       decimal.Zero,
		TakerFee:       decimal.Zero,
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *venue.PaperClient, *journal.Journal) {
	t.Helper()
	dir := t.TempDir()
	client := venue.NewPaperClient("BTCUSDT")
	store := state.NewStore(dir, "BTCUSDT")
	j, err := journal.Open(dir, "BTCUSDT")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	sym := gridsymbol.Symbol{Venue: "test", Name: "BTCUSDT"} // zero tick/step: exact arithmetic
	r, err := New("BTCUSDT", sym, client, store, j, d("1000"))
	if err != nil {
		t.Fatalf("reconciler.New: %v", err)
	}
	return r, client, j
}

func TestReconciler_FirstTickArmsFullLadder(t *testing.T) {
	r, client, _ := newTestReconciler(t)
	cfg := testConfig()
	ctx := context.Background()

	err := r.Tick(ctx, cfg, Event{Kind: EventKlineClose, Kline: venue.Kline{Close: d("100000"), Closed: true}})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	st := r.State()
	if st.GridCenter == nil {
		t.Fatalf("expected grid_center to be set after first bar close")
	}
	if !st.GridCenter.Equal(d("100000")) {
		t.Fatalf("grid_center = %s, want 100000", st.GridCenter)
	}

	orders, err := client.GetOpenOrders(ctx)
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(orders) != cfg.MaxEntryLevel {
		t.Fatalf("open orders = %d, want %d", len(orders), cfg.MaxEntryLevel)
	}
}

func TestReconciler_HeartbeatWithNoVenueChangeIsIdempotent(t *testing.T) {
	r, client, _ := newTestReconciler(t)
	cfg := testConfig()
	ctx := context.Background()

	if err := r.Tick(ctx, cfg, Event{Kind: EventKlineClose, Kline: venue.Kline{Close: d("100000"), Closed: true}}); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	before, _ := client.GetOpenOrders(ctx)

	if err := r.Tick(ctx, cfg, Event{Kind: EventHeartbeat}); err != nil {
		t.Fatalf("heartbeat tick: %v", err)
	}
	after, _ := client.GetOpenOrders(ctx)

	if len(after) != len(before) {
		t.Fatalf("heartbeat mutated open order count: before=%d after=%d", len(before), len(after))
	}
}

func TestReconciler_SynthesizesEntryFillAndRearmsTP(t *testing.T) {
	r, client, _ := newTestReconciler(t)
	cfg := testConfig()
	ctx := context.Background()

	if err := r.Tick(ctx, cfg, Event{Kind: EventKlineClose, Kline: venue.Kline{Close: d("100000"), Closed: true}}); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	level1Price := grid.LevelPrice(d("100000"), 1, grid.SideLong, cfg, gridsymbol.Symbol{})
	level1Qty := grid.EntryQty(d("1000"), 1, level1Price, cfg, grid.SideLong, gridsymbol.Symbol{})
	filledIDs := client.OrderIDsByPrice(level1Price)
	if len(filledIDs) != 1 {
		t.Fatalf("expected exactly one resting order at level-1 price, got %d", len(filledIDs))
	}
	client.SimulateFill(venue.Position{Side: venue.SideBuy, Qty: level1Qty, AvgPrice: level1Price}, filledIDs...)

	if err := r.Tick(ctx, cfg, Event{Kind: EventHeartbeat}); err != nil {
		t.Fatalf("reconcile after fill: %v", err)
	}

	st := r.State()
	if st.CurrentLevel != 1 {
		t.Fatalf("current_level = %d, want 1", st.CurrentLevel)
	}
	if st.PositionSide != grid.SideLong {
		t.Fatalf("position_side = %s, want LONG", st.PositionSide)
	}

	orders, _ := client.GetOpenOrders(ctx)
	var sawReduceOnly bool
	for _, o := range orders {
		if o.ReduceOnly {
			sawReduceOnly = true
		}
	}
	if !sawReduceOnly {
		t.Fatalf("expected a reduce-only TP order to be resting after level-1 fill")
	}
}

func TestReconciler_RestartRebuildsFromPersistedState(t *testing.T) {
	dir := t.TempDir()
	client := venue.NewPaperClient("BTCUSDT")
	store := state.NewStore(dir, "BTCUSDT")
	j, err := journal.Open(dir, "BTCUSDT")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()
	sym := gridsymbol.Symbol{Venue: "test", Name: "BTCUSDT"}
	cfg := testConfig()
	ctx := context.Background()

	r1, err := New("BTCUSDT", sym, client, store, j, d("1000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r1.Tick(ctx, cfg, Event{Kind: EventKlineClose, Kline: venue.Kline{Close: d("100000"), Closed: true}}); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	level1Price := grid.LevelPrice(d("100000"), 1, grid.SideLong, cfg, sym)
	level1Qty := grid.EntryQty(d("1000"), 1, level1Price, cfg, grid.SideLong, sym)
	filledIDs := client.OrderIDsByPrice(level1Price)
	client.SimulateFill(venue.Position{Side: venue.SideBuy, Qty: level1Qty, AvgPrice: level1Price}, filledIDs...)
	if err := r1.Tick(ctx, cfg, Event{Kind: EventHeartbeat}); err != nil {
		t.Fatalf("reconcile after fill: %v", err)
	}

	// Simulate a process restart: a fresh Reconciler is constructed against
	// the same store and the same (already-consistent) venue state.
	r2, err := New("BTCUSDT", sym, client, store, j, d("1000"))
	if err != nil {
		t.Fatalf("New on restart: %v", err)
	}
	if r2.State().CurrentLevel != 1 {
		t.Fatalf("restarted reconciler did not load persisted state: current_level = %d", r2.State().CurrentLevel)
	}

	before, _ := client.GetOpenOrders(ctx)
	if err := r2.Tick(ctx, cfg, Event{Kind: EventHeartbeat}); err != nil {
		t.Fatalf("post-restart heartbeat: %v", err)
	}
	after, _ := client.GetOpenOrders(ctx)
	if len(after) != len(before) {
		t.Fatalf("post-restart reconciliation mutated venue orders without a fill: before=%d after=%d", len(before), len(after))
	}
}

func TestReconciler_RangeBreachRecentersWhileFlat(t *testing.T) {
	r, client, _ := newTestReconciler(t)
	cfg := testConfig()
	ctx := context.Background()

	if err := r.Tick(ctx, cfg, Event{Kind: EventKlineClose, Kline: venue.Kline{Close: d("100000"), Closed: true}}); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// GridRangePct 0.20 => half-width 0.10; a close 15% above center breaches.
	breachPrice := d("115000")
	if err := r.Tick(ctx, cfg, Event{Kind: EventKlineClose, Kline: venue.Kline{Close: breachPrice, Closed: true}}); err != nil {
		t.Fatalf("breach tick: %v", err)
	}

	st := r.State()
	if !st.GridCenter.Equal(breachPrice) {
		t.Fatalf("grid_center after breach = %s, want %s", st.GridCenter, breachPrice)
	}

	orders, _ := client.GetOpenOrders(ctx)
	if len(orders) != cfg.MaxEntryLevel {
		t.Fatalf("open orders after re-centering = %d, want %d", len(orders), cfg.MaxEntryLevel)
	}
}
