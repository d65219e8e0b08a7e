// Command gridbot runs one unattended grid-martingale strategy process
// against one perpetual-futures symbol on one venue (§1: "each symbol runs
// as its own process sharing no state with any other").
//
// Boot sequence:
//  1. config.LoadBootstrapFromEnv() – process-level settings (venue, symbol,
//     credentials, directories), read once.
//  2. config.NewWatcher()           – synchronous first load of the
//     hot-reloadable grid config file; a bad file here is fatal (exit 1).
//  3. wire the venue client (REST+WS, or the paper client under DRY_RUN).
//  4. wire state.Store + journal.Journal + reconciler.Reconciler, loading
//     any persisted StrategyState (a corrupt file is fatal: exit 3).
//  5. engine.Engine.Run() until SIGINT/SIGTERM.
//
// Exit codes follow §6: 0 clean shutdown, 1 config error, 2 venue
// connectivity failure at boot, 3 state file corruption.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chidi150c/gridbot/internal/config"
	"github.com/chidi150c/gridbot/internal/engine"
	"github.com/chidi150c/gridbot/internal/gridsymbol"
	"github.com/chidi150c/gridbot/internal/journal"
	"github.com/chidi150c/gridbot/internal/logutil"
	"github.com/chidi150c/gridbot/internal/reconciler"
	"github.com/chidi150c/gridbot/internal/state"
	"github.com/chidi150c/gridbot/internal/venue"
)

func main() {
	boot := config.LoadBootstrapFromEnv()

	logFile, err := logutil.OpenDailyFile(boot.LogDir, boot.Symbol)
	if err != nil {
		log.Fatalf("gridbot: log setup: %v", err)
	}
	defer logFile.Close()

	watcher, err := config.NewWatcher(boot.GridConfigPath, time.Duration(boot.ReloadIntervalSec)*time.Second)
	if err != nil {
		log.Printf("gridbot: fatal config error: %v", err)
		os.Exit(1)
	}

	symbol := gridsymbol.Symbol{
		Venue:     boot.Venue,
		Name:      boot.Symbol,
		PriceTick: boot.PriceTick,
		QtyStep:   boot.QtyStep,
	}

	var client venue.Client
	if boot.DryRun {
		client = venue.NewPaperClient(boot.Symbol)
		log.Printf("gridbot: running in DRY_RUN mode, orders are simulated")
	} else {
		rest := venue.NewRESTClient(venue.RESTConfig{
			RESTBaseURL: boot.RESTBaseURL,
			WSBaseURL:   boot.WSBaseURL,
			APIKey:      boot.APIKey,
			APISecret:   boot.APISecret,
			Symbol:      boot.Symbol,
			Timeout:     time.Duration(boot.RESTTimeoutSec) * time.Second,
		})
		bootCtx, cancel := context.WithTimeout(context.Background(), time.Duration(boot.RESTTimeoutSec)*time.Second)
		if err := rest.SetMarginMode(bootCtx, venue.MarginModeIsolated); err != nil {
			cancel()
			log.Printf("gridbot: fatal venue connectivity error: %v", err)
			os.Exit(2)
		}
		cancel()
		client = rest
	}

	store := state.NewStore(boot.StateDir, boot.Symbol)
	j, err := journal.Open(boot.JournalDir, boot.Symbol)
	if err != nil {
		log.Printf("gridbot: fatal journal error: %v", err)
		os.Exit(1)
	}
	defer j.Close()

	snap := watcher.Snapshot()
	recon, err := reconciler.New(boot.Symbol, symbol, client, store, j, snap.InitialCapital)
	if err != nil {
		log.Printf("gridbot: fatal state error: %v", err)
		os.Exit(3)
	}

	e := &engine.Engine{
		Symbol:            boot.Symbol,
		Recon:             recon,
		Client:            client,
		Watcher:           watcher,
		HeartbeatInterval: time.Duration(boot.HeartbeatIntervalSec) * time.Second,
		HTTPAddr:          fmt.Sprintf(":%d", boot.MetricsPort),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("gridbot: starting %s on %s (dry_run=%v)", boot.Symbol, boot.Venue, boot.DryRun)
	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("gridbot: engine stopped with error: %v", err)
		os.Exit(2)
	}
	log.Printf("gridbot: clean shutdown")
}
