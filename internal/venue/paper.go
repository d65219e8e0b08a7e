package venue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperClient is a dry-run Client: it records placed orders as resting and
// never fills them on its own (SimulateFill stands in for a matching
// engine), and it never talks to a real venue, mirroring the
// teacher's PaperBroker (broker_paper.go) — same role (DRY_RUN=true, and
// tests), generalized from spot market/limit orders to this spec's
// entry/close/stop-market vocabulary, and from int order ids to
// uuid.NewString() client-supplied identifiers (§4.3).
type PaperClient struct {
	mu       sync.Mutex
	symbol   string
	position Position
	orders   map[string]OpenOrder
	klineCh  chan Kline
}

// NewPaperClient constructs a flat paper client for symbol.
func NewPaperClient(symbol string) *PaperClient {
	return &PaperClient{
		symbol: symbol,
		orders: make(map[string]OpenOrder),
	}
}

func (p *PaperClient) PlaceLimitEntry(ctx context.Context, side Side, price, qty decimal.Decimal) (PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.orders[id] = OpenOrder{OrderID: id, Side: side, Type: OrderTypeLimit, Price: price, Qty: qty}
	return PlacedOrder{OrderID: id, ClientOrderID: id, Side: side, Type: OrderTypeLimit, Price: price, Qty: qty, CreatedAt: time.Now()}, nil
}

func (p *PaperClient) PlaceLimitClose(ctx context.Context, side Side, price, qty decimal.Decimal) (PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.orders[id] = OpenOrder{OrderID: id, Side: side, Type: OrderTypeLimit, Price: price, Qty: qty, ReduceOnly: true}
	return PlacedOrder{OrderID: id, ClientOrderID: id, Side: side, Type: OrderTypeLimit, Price: price, Qty: qty, ReduceOnly: true, CreatedAt: time.Now()}, nil
}

func (p *PaperClient) PlaceStopMarketClose(ctx context.Context, side Side, stopPrice decimal.Decimal) (PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.orders[id] = OpenOrder{OrderID: id, Side: side, Type: OrderTypeStopMarket, StopPrice: stopPrice}
	return PlacedOrder{OrderID: id, ClientOrderID: id, Side: side, Type: OrderTypeStopMarket, StopPrice: stopPrice, ClosePosition: true, CreatedAt: time.Now()}, nil
}

func (p *PaperClient) CancelAllOpenOrders(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = make(map[string]OpenOrder)
	return nil
}

func (p *PaperClient) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, orderID)
	return nil
}

func (p *PaperClient) GetPosition(ctx context.Context) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *PaperClient) GetOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OpenOrder, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o)
	}
	return out, nil
}

func (p *PaperClient) SetMarginMode(ctx context.Context, mode MarginMode) error { return nil }
func (p *PaperClient) SetLeverage(ctx context.Context, leverage int) error      { return nil }

// SubscribeKlines on the paper client returns a channel that receives only
// the bars pushed through Feed. Under DRY_RUN main.go hands PaperClient to
// the engine as its kline source as well, so no venue price data arrives in
// that mode unless something calls Feed.
func (p *PaperClient) SubscribeKlines(ctx context.Context) (<-chan Kline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.klineCh == nil {
		p.klineCh = make(chan Kline, wsKlineBufferSize)
	}
	return p.klineCh, nil
}

// Feed pushes a synthetic closed bar into the paper client's kline channel;
// exported for tests that exercise the full reconciler against PaperClient.
func (p *PaperClient) Feed(k Kline) {
	p.mu.Lock()
	ch := p.klineCh
	p.mu.Unlock()
	if ch != nil {
		ch <- k
	}
}

// SimulateFill directly sets the paper position and removes filled resting
// orders by id, standing in for a real venue matching engine; exported only
// for tests driving a full reconciler tick against PaperClient.
func (p *PaperClient) SimulateFill(pos Position, filledOrderIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
	for _, id := range filledOrderIDs {
		delete(p.orders, id)
	}
}

// OrderIDsByPrice returns the order ids of currently-resting orders whose
// price matches px exactly; a test convenience for locating the order
// PlaceLimitEntry/PlaceLimitClose just created without threading ids
// through the reconciler's desired-orders diff.
func (p *PaperClient) OrderIDsByPrice(px decimal.Decimal) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for id, o := range p.orders {
		if o.Price.Equal(px) {
			ids = append(ids, id)
		}
	}
	return ids
}
