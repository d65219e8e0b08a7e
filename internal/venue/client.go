package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client is the C3 Venue Client contract (§4.3). Implementations encapsulate
// retries; callers (the reconciler) see only the closed ErrorCode taxonomy.
// Two implementations exist: RESTClient (the real venue, over REST+WS) and
// PaperClient (dry-run, for DRY_RUN=true and for tests).
type Client interface {
	PlaceLimitEntry(ctx context.Context, side Side, price, qty decimal.Decimal) (PlacedOrder, error)
	PlaceLimitClose(ctx context.Context, side Side, price, qty decimal.Decimal) (PlacedOrder, error)
	PlaceStopMarketClose(ctx context.Context, side Side, stopPrice decimal.Decimal) (PlacedOrder, error)

	CancelAllOpenOrders(ctx context.Context) error
	CancelOrder(ctx context.Context, orderID string) error

	GetPosition(ctx context.Context) (Position, error)
	GetOpenOrders(ctx context.Context) ([]OpenOrder, error)

	SetMarginMode(ctx context.Context, mode MarginMode) error
	SetLeverage(ctx context.Context, leverage int) error

	// SubscribeKlines starts the 1-minute kline stream; closed bars are sent
	// on the returned channel until ctx is cancelled. The implementation
	// owns reconnect (§5's 90s silence timeout).
	SubscribeKlines(ctx context.Context) (<-chan Kline, error)
}
