package venue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Kline subscription tuning, mirroring
// 0xtitan6-polymarket-mm/internal/exchange/ws.go's WSFeed constants exactly
// — including the 90s read deadline that matches §5's silence timeout.
const (
	wsPingInterval     = 50 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsMaxReconnectWait = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsKlineBufferSize  = 16
)

// SubscribeKlines dials the venue's kline WS stream and emits closed bars on
// the returned channel. It auto-reconnects with exponential backoff (1s
// doubling to a 30s cap) and re-subscribes on every reconnect; a 90s read
// deadline is refreshed on every message so a silently dead connection is
// detected within roughly two missed pings (§5).
func (c *RESTClient) SubscribeKlines(ctx context.Context) (<-chan Kline, error) {
	out := make(chan Kline, wsKlineBufferSize)
	go c.runKlineFeed(ctx, out)
	return out, nil
}

func (c *RESTClient) runKlineFeed(ctx context.Context, out chan<- Kline) {
	defer close(out)
	backoff := time.Second

	for {
		err := c.connectAndReadKlines(ctx, out)
		if ctx.Err() != nil {
			return
		}
		log.Printf("venue: kline websocket disconnected, reconnecting in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

func (c *RESTClient) connectAndReadKlines(ctx context.Context, out chan<- Kline) error {
	url := c.wsBaseURL + "/ws/" + c.symbol + "@kline_1m"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("venue: kline websocket connected: %s", url)

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		k, ok, err := parseKlineMessage(msg)
		if err != nil {
			log.Printf("venue: malformed kline message, ignoring: %v", err)
			continue
		}
		if !ok || !k.Closed {
			continue // only closed bars drive reconciliation (§4.7)
		}
		select {
		case out <- k:
		default:
			log.Printf("venue: kline channel full, dropping closed bar at %s", k.OpenTime)
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wireKline is the on-the-wire kline envelope; field names follow the
// conventional futures WS kline payload shape (a "k" sub-object with OHLCV
// strings and an "x" closed flag).
type wireKline struct {
	K struct {
		OpenTimeMs int64  `json:"t"`
		Open       string `json:"o"`
		High       string `json:"h"`
		Low        string `json:"l"`
		Close      string `json:"c"`
		Volume     string `json:"v"`
		Closed     bool   `json:"x"`
	} `json:"k"`
}

func parseKlineMessage(msg []byte) (Kline, bool, error) {
	var w wireKline
	if err := json.Unmarshal(msg, &w); err != nil {
		return Kline{}, false, err
	}
	if w.K.OpenTimeMs == 0 {
		return Kline{}, false, nil // not a kline frame (e.g. a pong)
	}
	open, _ := decimal.NewFromString(w.K.Open)
	high, _ := decimal.NewFromString(w.K.High)
	low, _ := decimal.NewFromString(w.K.Low)
	closePx, _ := decimal.NewFromString(w.K.Close)
	vol, _ := decimal.NewFromString(w.K.Volume)
	return Kline{
		OpenTime: time.UnixMilli(w.K.OpenTimeMs).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   vol,
		Closed:   w.K.Closed,
	}, true, nil
}
