package reconciler

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/gridbot/internal/grid"
	"github.com/chidi150c/gridbot/internal/venue"
)

// applyDesiredOrders implements §4.6 steps 4-5: diff the desired-orders set
// against the venue's actual open orders and apply the difference, observing
// the ordering guarantees named there — cancellations before placements (so
// a TP<->BE swap never holds both at once), entry placements ascending by
// level (so a margin shortfall strands the deepest levels, never level 1),
// and SL placed only after the TP/BE placement step. An entry whose margin
// shrink reached its floor, or an exit whose reduce-only shrink reached its
// floor, is skipped and logged; the rest of the tick goes on (B3).
func (r *Reconciler) applyDesiredOrders(ctx context.Context, cfg grid.Config, s grid.StrategyState, actual []venue.OpenOrder) error {
	tolerance := r.tick.PriceTick
	if tolerance.IsZero() {
		tolerance = defaultPriceTolerance
	}

	desiredByKey := make(map[string]grid.DesiredOrder, len(s.DesiredOrders))
	for _, d := range s.DesiredOrders {
		desiredByKey[desiredKey(d)] = d
	}

	actualByKey := make(map[string]venue.OpenOrder, len(actual))
	var toCancel []venue.OpenOrder
	for _, o := range actual {
		key, ok := classifyActual(o, s, tolerance)
		if !ok {
			toCancel = append(toCancel, o)
			continue
		}
		if _, dup := actualByKey[key]; dup {
			toCancel = append(toCancel, o) // a stray duplicate of an already-matched slot
			continue
		}
		if _, wanted := desiredByKey[key]; !wanted {
			toCancel = append(toCancel, o)
			continue
		}
		actualByKey[key] = o
	}

	for _, o := range toCancel {
		if err := r.client.CancelOrder(ctx, o.OrderID); err != nil {
			return fmt.Errorf("cancel %s: %w", o.OrderID, err)
		}
	}

	var missingEntries []grid.DesiredOrder
	var missingExit *grid.DesiredOrder
	var missingSL *grid.DesiredOrder

	for key, d := range desiredByKey {
		if _, have := actualByKey[key]; have {
			continue
		}
		switch d.Kind {
		case grid.KindEntry:
			missingEntries = append(missingEntries, d)
		case grid.KindTP, grid.KindBE:
			dCopy := d
			missingExit = &dCopy
		case grid.KindSL:
			dCopy := d
			missingSL = &dCopy
		}
	}

	sort.Slice(missingEntries, func(i, j int) bool { return missingEntries[i].Level < missingEntries[j].Level })

	for _, d := range missingEntries {
		side := entrySide(d.Side)
		if _, err := r.client.PlaceLimitEntry(ctx, side, d.Price, d.Qty); err != nil {
			var verr *venue.Error
			if asVenueErr(err, &verr) && verr.Code == venue.ErrMarginInsufficient {
				log.Printf("reconciler: skipping entry L%d: %v", d.Level, err)
				continue
			}
			return fmt.Errorf("place entry L%d: %w", d.Level, err)
		}
	}

	if missingExit != nil {
		side := closeSide(missingExit.Side)
		if _, err := r.client.PlaceLimitClose(ctx, side, missingExit.Price, missingExit.Qty); err != nil {
			var verr *venue.Error
			if !asVenueErr(err, &verr) || verr.Code != venue.ErrReduceOnlyRejected {
				return fmt.Errorf("place %s: %w", missingExit.Kind, err)
			}
			log.Printf("reconciler: skipping %s: %v", missingExit.Kind, err)
		}
	}

	if missingSL != nil {
		side := closeSide(missingSL.Side)
		if _, err := r.client.PlaceStopMarketClose(ctx, side, missingSL.StopPrice); err != nil {
			return fmt.Errorf("place SL: %w", err)
		}
	}

	return nil
}

func entrySide(positionSide grid.PositionSide) venue.Side {
	if positionSide == grid.SideLong {
		return venue.SideBuy
	}
	return venue.SideSell
}

func closeSide(positionSide grid.PositionSide) venue.Side {
	if positionSide == grid.SideLong {
		return venue.SideSell
	}
	return venue.SideBuy
}

func desiredKey(d grid.DesiredOrder) string {
	switch d.Kind {
	case grid.KindEntry:
		return fmt.Sprintf("ENTRY_%s_%d", d.Side, d.Level)
	case grid.KindTP, grid.KindBE:
		return "EXIT"
	default:
		return "SL"
	}
}

// classifyActual maps one venue open order back to the desired-orders slot
// vocabulary. Venue orders carry no notion of "entry level" or "TP vs BE" —
// only price/type/reduce_only — so the slot is inferred structurally:
// STOP_MARKET is always SL, any other reduce-only LIMIT is the single
// TP-or-BE exit slot (I3 makes these mutually exclusive), and a plain LIMIT
// is an entry matched to the nearest desired entry price on the same side
// within tolerance.
func classifyActual(o venue.OpenOrder, s grid.StrategyState, tolerance decimal.Decimal) (string, bool) {
	if o.Type == venue.OrderTypeStopMarket {
		return "SL", true
	}
	if o.ReduceOnly {
		return "EXIT", true
	}
	bestKey := ""
	bestDist := decimal.Zero
	found := false
	for _, d := range s.DesiredOrders {
		if d.Kind != grid.KindEntry || entrySide(d.Side) != o.Side {
			continue
		}
		dist := o.Price.Sub(d.Price).Abs()
		if dist.GreaterThan(tolerance) {
			continue
		}
		if !found || dist.LessThan(bestDist) {
			bestKey = desiredKey(d)
			bestDist = dist
			found = true
		}
	}
	return bestKey, found
}
