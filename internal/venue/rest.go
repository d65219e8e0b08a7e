package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// marginShrinkStep/Floor and reduceOnlyShrinkStep/Floor implement the exact
// retry-with-shrink policy of §4.3/B3: margin-insufficient entries shrink
// notional by 0.1% down to a 30% floor; reduce-only closes shrink quantity
// by 0.1% down to a 50% floor.
var (
	marginShrinkStep  = decimal.NewFromFloat(0.001)
	marginFloorFrac   = decimal.NewFromFloat(0.30)
	reduceOnlyShrinkStep = decimal.NewFromFloat(0.001)
	reduceOnlyFloorFrac  = decimal.NewFromFloat(0.50)
)

// RESTClient is the real venue client: a resty-based REST leg plus a
// gorilla/websocket kline subscription (ws.go). Construction mirrors
// 0xtitan6-polymarket-mm/internal/exchange/client.go's NewClient: base URL,
// fixed timeout, retry-on-5xx.
type RESTClient struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
	symbol    string
	wsBaseURL string
}

// RESTConfig bundles the venue connection settings this client needs.
type RESTConfig struct {
	RESTBaseURL string
	WSBaseURL   string
	APIKey      string
	APISecret   string
	Symbol      string
	Timeout     time.Duration
}

// NewRESTClient builds the REST leg with the same retry policy shape as the
// pack's resty-based client: SetRetryCount/SetRetryWaitTime/SetRetryMaxWaitTime
// plus a 5xx/err retry condition implementing the TRANSIENT class at the
// transport layer (§4.3).
func NewRESTClient(cfg RESTConfig) *RESTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := resty.New().
		SetBaseURL(cfg.RESTBaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})

	return &RESTClient{
		http:      hc,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		symbol:    cfg.Symbol,
		wsBaseURL: cfg.WSBaseURL,
	}
}

// sign HMAC-SHA256-signs a query string, matching the teacher's
// binance_broker.go sign()/get() pattern (generalized here to also cover
// signed POST/DELETE order-management calls, not just signed GETs).
func (c *RESTClient) sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(q.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTClient) signedRequest(ctx context.Context, q url.Values) *resty.Request {
	if q == nil {
		q = url.Values{}
	}
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("signature", c.sign(q))
	return c.http.R().SetContext(ctx).SetQueryParamsFromValues(q).SetHeader("X-API-KEY", c.apiKey)
}

// classify maps a non-2xx REST response to the closed ErrorCode taxonomy.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Code: ErrTransient, Op: op, Err: err}
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	case resp.StatusCode() >= 500:
		return &Error{Code: ErrTransient, Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	case isMarginInsufficient(resp):
		return &Error{Code: ErrMarginInsufficient, Op: op, Err: fmt.Errorf("%s", resp.String())}
	case isReduceOnlyRejected(resp):
		return &Error{Code: ErrReduceOnlyRejected, Op: op, Err: fmt.Errorf("%s", resp.String())}
	case resp.StatusCode() >= 400:
		return &Error{Code: ErrFatal, Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	return nil
}

// isMarginInsufficient/isReduceOnlyRejected inspect the venue's error body.
// The exact field is venue-specific; this checks the conventional
// {"code":..., "msg":...} envelope most futures REST APIs use.
func isMarginInsufficient(resp *resty.Response) bool {
	return resp.StatusCode() == http.StatusBadRequest && containsAny(resp.String(), "margin is insufficient", "MARGIN_INSUFFICIENT")
}

func isReduceOnlyRejected(resp *resty.Response) bool {
	return resp.StatusCode() == http.StatusBadRequest && containsAny(resp.String(), "ReduceOnly Order is rejected", "REDUCE_ONLY_REJECTED")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// PlaceLimitEntry places a LIMIT order with retry-with-shrink on
// MARGIN_INSUFFICIENT down to a 30% notional floor (§4.3, B3).
func (c *RESTClient) PlaceLimitEntry(ctx context.Context, side Side, price, qty decimal.Decimal) (PlacedOrder, error) {
	notional := price.Mul(qty)
	floor := notional.Mul(marginFloorFrac)
	cur := notional

	for {
		curQty := cur.Div(price)
		order, err := c.placeOrder(ctx, "place_limit_entry", side, OrderTypeLimit, price, curQty, false, false, decimal.Zero)
		if err == nil {
			return order, nil
		}
		var verr *Error
		if !asVenueError(err, &verr) || verr.Code != ErrMarginInsufficient {
			return PlacedOrder{}, err
		}
		cur = cur.Mul(decimal.NewFromInt(1).Sub(marginShrinkStep))
		if cur.LessThan(floor) {
			return PlacedOrder{}, &Error{Code: ErrMarginInsufficient, Op: "place_limit_entry", Err: fmt.Errorf("shrunk past 30%% floor, skipping level")}
		}
		select {
		case <-ctx.Done():
			return PlacedOrder{}, ctx.Err()
		default:
		}
	}
}

// PlaceLimitClose places a reduce-only LIMIT order with retry-with-shrink on
// REDUCE_ONLY_REJECTED down to a 50% quantity floor (§4.3, B3).
func (c *RESTClient) PlaceLimitClose(ctx context.Context, side Side, price, qty decimal.Decimal) (PlacedOrder, error) {
	floor := qty.Mul(reduceOnlyFloorFrac)
	cur := qty

	for {
		order, err := c.placeOrder(ctx, "place_limit_close", side, OrderTypeLimit, price, cur, true, false, decimal.Zero)
		if err == nil {
			return order, nil
		}
		var verr *Error
		if !asVenueError(err, &verr) || verr.Code != ErrReduceOnlyRejected {
			return PlacedOrder{}, err
		}
		cur = cur.Mul(decimal.NewFromInt(1).Sub(reduceOnlyShrinkStep))
		if cur.LessThan(floor) {
			return PlacedOrder{}, &Error{Code: ErrReduceOnlyRejected, Op: "place_limit_close", Err: fmt.Errorf("shrunk past 50%% floor, skipping order")}
		}
		select {
		case <-ctx.Done():
			return PlacedOrder{}, ctx.Err()
		default:
		}
	}
}

// PlaceStopMarketClose places a STOP_MARKET order with closePosition=true:
// no quantity, no reduceOnly field (§6's binding contract point).
func (c *RESTClient) PlaceStopMarketClose(ctx context.Context, side Side, stopPrice decimal.Decimal) (PlacedOrder, error) {
	return c.placeOrder(ctx, "place_stop_market", side, OrderTypeStopMarket, decimal.Zero, decimal.Zero, false, true, stopPrice)
}

func (c *RESTClient) placeOrder(ctx context.Context, op string, side Side, typ OrderType, price, qty decimal.Decimal, reduceOnly, closePosition bool, stopPrice decimal.Decimal) (PlacedOrder, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("side", string(side))
	q.Set("type", string(typ))
	if closePosition {
		q.Set("closePosition", "true")
		q.Set("stopPrice", stopPrice.String())
	} else {
		q.Set("price", price.String())
		q.Set("quantity", qty.String())
		if reduceOnly {
			q.Set("reduceOnly", "true")
		}
	}

	var result PlacedOrder
	resp, err := c.signedRequest(ctx, q).SetResult(&result).Post("/order")
	if cerr := classify(op, resp, err); cerr != nil {
		return PlacedOrder{}, cerr
	}
	return result, nil
}

// CancelAllOpenOrders implements cancel_all_open_orders(symbol) (§4.3).
func (c *RESTClient) CancelAllOpenOrders(ctx context.Context) error {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	resp, err := c.signedRequest(ctx, q).Delete("/allOpenOrders")
	return classify("cancel_all_open_orders", resp, err)
}

// CancelOrder cancels a single resting order by id.
func (c *RESTClient) CancelOrder(ctx context.Context, orderID string) error {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("orderId", orderID)
	resp, err := c.signedRequest(ctx, q).Delete("/order")
	return classify("cancel_order", resp, err)
}

// GetPosition implements get_position(symbol), retrying up to 10 times with
// a small backoff; persistent failure is fatal for order mutation (§4.3).
func (c *RESTClient) GetPosition(ctx context.Context) (Position, error) {
	const maxAttempts = 10
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		q := url.Values{}
		q.Set("symbol", c.symbol)
		var result Position
		resp, err := c.signedRequest(ctx, q).SetResult(&result).Get("/positionRisk")
		if cerr := classify("get_position", resp, err); cerr == nil {
			return result, nil
		} else {
			lastErr = cerr
		}
		select {
		case <-ctx.Done():
			return Position{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return Position{}, &Error{Code: ErrFatal, Op: "get_position", Err: lastErr}
}

// GetOpenOrders implements get_open_orders(symbol) (§4.3).
func (c *RESTClient) GetOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	var result []OpenOrder
	resp, err := c.signedRequest(ctx, q).SetResult(&result).Get("/openOrders")
	if cerr := classify("get_open_orders", resp, err); cerr != nil {
		return nil, cerr
	}
	return result, nil
}

// SetMarginMode implements set_margin_mode(ISOLATED) (§4.3).
func (c *RESTClient) SetMarginMode(ctx context.Context, mode MarginMode) error {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("marginType", string(mode))
	resp, err := c.signedRequest(ctx, q).Post("/marginType")
	return classify("set_margin_mode", resp, err)
}

// SetLeverage implements set_leverage(n) (§4.3).
func (c *RESTClient) SetLeverage(ctx context.Context, leverage int) error {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("leverage", strconv.Itoa(leverage))
	resp, err := c.signedRequest(ctx, q).Post("/leverage")
	return classify("set_leverage", resp, err)
}

func asVenueError(err error, out **Error) bool {
	verr, ok := err.(*Error)
	if ok {
		*out = verr
	}
	return ok
}
