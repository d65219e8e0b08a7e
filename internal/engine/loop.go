// Package engine implements C7: the single event loop that owns process
// lifetime, multiplexing the three logical tasks named in §5 (market tick,
// heartbeat, config reload) onto one goroutine and exposing /healthz and
// /metrics, mirroring the teacher's live.go ticker-driven run loop and
// main.go's HTTP mux (promhttp.Handler for metrics, a plain handler for
// liveness).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/gridbot/internal/config"
	"github.com/chidi150c/gridbot/internal/reconciler"
	"github.com/chidi150c/gridbot/internal/venue"
)

// Engine wires a Reconciler to a venue kline feed and a config watcher and
// drives the three logical tasks described in §5.
type Engine struct {
	Symbol  string
	Recon   *reconciler.Reconciler
	Client  venue.Client
	Watcher *config.Watcher

	HeartbeatInterval time.Duration // default 30s
	ReloadInterval    time.Duration // informational only: the watcher owns its own interval
	HTTPAddr          string        // e.g. ":9300"

	// ShutdownGrace bounds how long Run waits for the HTTP server to shut
	// down after ctx is cancelled. Ticks run on Run's own goroutine, so a
	// tick in progress always finishes before ctx.Done() is observed.
	ShutdownGrace time.Duration
}

// Run blocks until ctx is cancelled (typically by a signal.NotifyContext in
// cmd/gridbot/main.go) or an unrecoverable subscription error occurs. It
// never cancels resting venue orders on exit (Q3: "keep resting orders on
// shutdown" so the ladder survives a deploy/restart).
func (e *Engine) Run(ctx context.Context) error {
	heartbeat := e.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	grace := e.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	klineCh, err := e.Client.SubscribeKlines(ctx)
	if err != nil {
		return fmt.Errorf("engine: subscribe klines: %w", err)
	}

	srv := e.newHTTPServer()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("engine: http server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("engine: http server shutdown: %v", err)
		}
	}()

	heartbeatTicker := time.NewTicker(heartbeat)
	defer heartbeatTicker.Stop()
	reloadTicker := time.NewTicker(e.Watcher.Interval())
	defer reloadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("engine: shutdown signal received, resting orders are left in place (Q3)")
			return ctx.Err()

		case k, ok := <-klineCh:
			if !ok {
				return fmt.Errorf("engine: kline stream closed unexpectedly")
			}
			if !k.Closed {
				continue
			}
			e.tick(ctx, reconciler.Event{Kind: reconciler.EventKlineClose, Kline: k})

		case <-heartbeatTicker.C:
			e.tick(ctx, reconciler.Event{Kind: reconciler.EventHeartbeat})

		case <-reloadTicker.C:
			e.Watcher.Reload()

		case err := <-e.Watcher.Errors():
			log.Printf("engine: config reload failed, keeping last-good snapshot: %v", err)
		}
	}
}

// tick runs one reconciliation pass against the latest config snapshot. A
// tick error is logged, never fatal to the process — the next trigger tries
// again against freshly-polled venue state (§4.6).
func (e *Engine) tick(ctx context.Context, ev reconciler.Event) {
	snap := e.Watcher.Snapshot()
	if err := e.Recon.Tick(ctx, snap.Grid, ev); err != nil {
		log.Printf("engine: reconciliation tick failed: %v", err)
	}
}

func (e *Engine) newHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", e.handleHealthz)
	return &http.Server{Addr: e.HTTPAddr, Handler: mux}
}

func (e *Engine) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := e.Recon.State()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"symbol":         e.Symbol,
		"position_side":  st.PositionSide.String(),
		"current_level":  st.CurrentLevel,
		"capital":        st.Capital.String(),
		"last_synced_at": st.LastSyncedAt,
	})
}
