// Package reconciler implements C6: it drives the grid state machine's
// (package grid) intent into the venue (package venue), diffing desired
// orders against actual ones, handling venue rejections, and persisting
// state (package state) and the trade journal (package journal) after every
// successful tick (§4.6).
package reconciler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/gridbot/internal/gridsymbol"
	"github.com/chidi150c/gridbot/internal/grid"
	"github.com/chidi150c/gridbot/internal/journal"
	"github.com/chidi150c/gridbot/internal/metrics"
	"github.com/chidi150c/gridbot/internal/state"
	"github.com/chidi150c/gridbot/internal/venue"
)

// defaultPriceTolerance bounds how close an actual venue order's price must
// be to a desired order's price to be considered "the same slot" rather than
// a stale order to cancel plus a missing one to place. applyDesiredOrders
// uses the symbol's PriceTick as the tolerance and falls back to this value
// only when PriceTick is zero.
var defaultPriceTolerance = decimal.NewFromFloat(0.5)

// EventKind distinguishes the two triggers the event loop feeds in: a closed
// kline and the heartbeat. There is no separate fill-notification event;
// fills are detected by polling the venue position on either trigger.
type EventKind int

const (
	EventKlineClose EventKind = iota
	EventHeartbeat
)

// Event is what the event loop (C7) feeds into a reconciliation tick.
type Event struct {
	Kind  EventKind
	Kline venue.Kline // valid when Kind == EventKlineClose
}

// Reconciler is C6. One instance exists per symbol process; it owns the
// in-memory StrategyState between ticks, matching the single-threaded
// cooperative model of §5 — the mutex exists only so the metrics/health
// HTTP handlers can read a consistent snapshot concurrently with the event
// loop goroutine, not to serialize reconciliation ticks (those already run
// on one goroutine by construction).
type Reconciler struct {
	symbol  string
	tick    gridsymbol.Symbol
	client  venue.Client
	store   *state.Store
	journal *journal.Journal

	mu    sync.Mutex
	state grid.StrategyState
}

// New constructs a Reconciler, loading (or defaulting) persisted state.
func New(symbolName string, tickSpec gridsymbol.Symbol, client venue.Client, store *state.Store, j *journal.Journal, initialCapital decimal.Decimal) (*Reconciler, error) {
	st, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("reconciler: fatal state load: %w", err)
	}
	if !ok {
		st = grid.New(initialCapital)
	}
	return &Reconciler{symbol: symbolName, tick: tickSpec, client: client, store: store, journal: j, state: st}, nil
}

// State returns a copy of the current in-memory state, for the /healthz or
// metrics surface to inspect.
func (r *Reconciler) State() grid.StrategyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Tick runs one reconciliation pass (§4.6). cfg is the current read-only
// GridConfig snapshot (§9: "the core never reads global state").
func (r *Reconciler) Tick(ctx context.Context, cfg grid.Config, ev Event) error {
	start := time.Now()
	defer metrics.ObserveReconcile(r.symbol, start)

	// §5: the lock is held only around in-memory reads/writes; it is
	// released before any network call and reacquired on return, mirroring
	// the teacher's trader.go/step.go discipline of manual lock/unlock
	// pairs around I/O rather than holding a lock across blocking calls.
	r.mu.Lock()
	localState := r.state
	r.mu.Unlock()

	venuePos, err := r.client.GetPosition(ctx)
	if err != nil {
		return r.abort("get_position", err)
	}
	openOrders, err := r.client.GetOpenOrders(ctx)
	if err != nil {
		return r.abort("get_open_orders", err)
	}

	var journalLines []grid.JournalEvent

	next, lines, err := r.reconcilePositionView(ctx, cfg, localState, venuePos)
	if err != nil {
		return r.abort("reconcile_position_view", err)
	}
	journalLines = append(journalLines, lines...)
	localState = next

	for _, jl := range lines {
		if jl.Kind == "PARTIAL_BE" {
			// A BE fill cancels every resting order before the re-centred
			// ladder and TP are placed (§4.5.3).
			if err := r.client.CancelAllOpenOrders(ctx); err != nil {
				return r.abort("cancel_all_open_orders", err)
			}
			openOrders = nil
			break
		}
	}

	if ev.Kind == EventKlineClose {
		if localState.GridCenter == nil {
			localState = grid.OnFirstBarClose(localState, cfg, ev.Kline.Close, r.tick).State
		} else if localState.IsFlat() && grid.RangeBreached(localState, cfg, ev.Kline.Close) {
			res := grid.OnRangeBreach(localState, cfg, ev.Kline.Close, r.tick)
			localState = res.State
			journalLines = append(journalLines, res.Journal...)
			if err := r.client.CancelAllOpenOrders(ctx); err != nil {
				return r.abort("cancel_all_open_orders", err)
			}
			openOrders = nil // the snapshot taken above is now stale: everything was just cancelled
		}
	}

	if localState.GridCenter != nil {
		localState.DesiredOrders = grid.DesiredOrders(localState, cfg, r.tick)
		if err := r.applyDesiredOrders(ctx, cfg, localState, openOrders); err != nil {
			return r.abort("apply_desired_orders", err)
		}
	}

	localState.LastSyncedAt = time.Now()

	for _, jl := range journalLines {
		if err := r.journal.Append(journal.Entry{
			Timestamp:         time.Now(),
			Symbol:            r.symbol,
			Event:             jl.Kind,
			Price:             jl.Price,
			Qty:               jl.Qty,
			RealizedPnL:       jl.RealizedPnL,
			RunningCapital:    jl.RunningCapital,
			GridCenterAtEvent: jl.GridCenterAtEvent,
			StartGridCenter:   jl.StartGridCenter,
		}); err != nil {
			log.Printf("reconciler: journal append failed (continuing, state not yet persisted): %v", err)
		}
		switch jl.Kind {
		case "RECONCILE_MISMATCH":
			log.Printf("reconciler: WARNING venue position after BE (qty %s, avg %s) differs from level1_qty; adopting venue qty", jl.Qty, jl.Price)
			metrics.ReconcileMismatchTotal.WithLabelValues(r.symbol).Inc()
		case "CANCEL_ALL":
		default:
			metrics.FillsTotal.WithLabelValues(r.symbol, jl.Kind).Inc()
		}
	}

	if err := r.store.Save(localState); err != nil {
		// A persistence failure after venue mutations is the one case
		// where state and venue may now disagree; it is logged loudly but
		// not treated as fatal to the process — the next tick's position
		// reconciliation (reconcilePositionView) will resynchronize from
		// venue-authoritative values regardless.
		log.Printf("reconciler: FAILED to persist state after tick: %v", err)
		return err
	}

	r.mu.Lock()
	r.state = localState
	r.mu.Unlock()

	metrics.CurrentLevel.WithLabelValues(r.symbol).Set(float64(localState.CurrentLevel))
	f, _ := localState.Capital.Float64()
	metrics.Capital.WithLabelValues(r.symbol).Set(f)

	return nil
}

// abort implements §4.6's failure semantics: on any fatal operation
// failure, the tick is aborted before state is persisted — C5's state does
// not advance on a failed reconciliation.
func (r *Reconciler) abort(op string, err error) error {
	var verr *venue.Error
	code := "UNKNOWN"
	if ok := asVenueErr(err, &verr); ok {
		code = verr.Code.String()
	}
	metrics.VenueErrorsTotal.WithLabelValues(r.symbol, code).Inc()
	log.Printf("reconciler: tick aborted at %s: %v", op, err)
	return fmt.Errorf("reconciler: %s: %w", op, err)
}

func asVenueErr(err error, out **venue.Error) bool {
	verr, ok := err.(*venue.Error)
	if ok {
		*out = verr
	}
	return ok
}

// reconcilePositionView implements §4.6 steps 2-3: infer exits the venue
// reports that local state doesn't know about yet, and synthesize missing
// entry fills in ascending level order. It never mutates the venue.
func (r *Reconciler) reconcilePositionView(ctx context.Context, cfg grid.Config, localState grid.StrategyState, venuePos venue.Position) (grid.StrategyState, []grid.JournalEvent, error) {
	wasOpen := localState.PositionSide != grid.SideNone
	venueFlat := venuePos.Side == "" || venuePos.Qty.IsZero()

	switch {
	case wasOpen && venueFlat:
		return r.inferExit(cfg, localState, venuePos)

	case !venueFlat && venuePos.Qty.GreaterThan(localState.TotalSize):
		// Covers both the first-ever entry fill (wasOpen==false, local side is
		// still NONE) and a deeper level filling between polls while already
		// open; synthesizeEntryFills resolves the side for either case.
		return r.synthesizeEntryFills(cfg, localState, venuePos)

	default:
		return localState, nil, nil
	}
}

func venueSideToPositionSide(s venue.Side) grid.PositionSide {
	if s == venue.SideSell {
		return grid.SideShort
	}
	return grid.SideLong
}

// inferExit implements §4.6 step 2 and resolves Q2: if the venue shows flat
// but the level was 1 (TP candidate) or >=2 (BE/SL candidate), the exit kind
// is inferred by price proximity. Ambiguity between a TP full-exit and a
// later lower-level entry filling in the same poll is resolved per Q2: the
// TP takes precedence (full exit to NONE) and any residual venue state is
// cancelled by the following desired-orders diff, discarding the later
// entry as ambiguous.
func (r *Reconciler) inferExit(cfg grid.Config, s grid.StrategyState, venuePos venue.Position) (grid.StrategyState, []grid.JournalEvent, error) {
	side := s.PositionSide
	gc := *s.GridCenter

	if s.CurrentLevel == 1 {
		tpPrice := grid.TPPrice(s.AvgPrice, side, cfg, r.tick)
		res := grid.OnTPFill(s, cfg, tpPrice, r.tick)
		return res.State, res.Journal, nil
	}

	slPrice := grid.SLPrice(gc, side, cfg, r.tick)
	bePrice := grid.BEPrice(s.AvgPrice, side, cfg, r.tick)
	// Closer to SL than BE => stop-loss fired; otherwise treat as the
	// partial break-even exit (§4.6 "infer which exit happened by price
	// proximity").
	if s.CurrentLevel == cfg.MaxEntryLevel && proximity(venuePos.AvgPrice, slPrice).LessThanOrEqual(proximity(venuePos.AvgPrice, bePrice)) {
		res := grid.OnSLFill(s, cfg, slPrice, r.tick)
		return res.State, res.Journal, nil
	}

	res := grid.OnBEFill(s, cfg, bePrice, venuePos.Qty, venuePos.AvgPrice, time.Now(), r.tick)
	return res.State, res.Journal, nil
}

func proximity(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() {
		return decimal.NewFromInt(1 << 30) // unknown venue price: treat as maximally far
	}
	return a.Sub(b).Abs()
}

// synthesizeEntryFills implements §4.6 step 3: the venue reports a larger
// filled quantity than local state; levels filled between polls are
// synthesized in ascending order.
func (r *Reconciler) synthesizeEntryFills(cfg grid.Config, s grid.StrategyState, venuePos venue.Position) (grid.StrategyState, []grid.JournalEvent, error) {
	var allLines []grid.JournalEvent
	nextLevel := s.CurrentLevel + 1

	side := s.PositionSide
	if side == grid.SideNone {
		side = venueSideToPositionSide(venuePos.Side)
	}

	for nextLevel <= cfg.MaxEntryLevel {
		gc := *s.GridCenter
		price := grid.LevelPrice(gc, nextLevel, side, cfg, r.tick)
		qty := grid.EntryQty(s.Capital, nextLevel, price, cfg, side, r.tick)

		projectedTotal := s.TotalSize.Add(qty)
		if projectedTotal.GreaterThan(venuePos.Qty.Mul(decimal.NewFromFloat(1.0001))) {
			break // the venue doesn't (yet) show this level filled
		}

		res := grid.OnEntryFill(s, cfg, side, nextLevel, price, qty, r.tick)
		s = res.State
		allLines = append(allLines, res.Journal...)
		nextLevel++
	}

	// Venue-authoritative resync: trust venue qty/avg over the
	// locally-reconstructed ladder maths once all synthesized fills are
	// applied (§4.6's "treat venue values as authoritative").
	if !venuePos.Qty.IsZero() {
		s.TotalSize = venuePos.Qty
		if !venuePos.AvgPrice.IsZero() {
			s.AvgPrice = venuePos.AvgPrice
		}
	}

	return s, allLines, nil
}
