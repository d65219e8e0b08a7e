// Package config provides the two config layers the engine needs: a
// process-bootstrap layer read once from the OS environment (venue
// credentials, base URLs, symbol, directories), and the hot-reloadable
// GridConfig file watcher (C1, §4.1) layered on top of it.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// getEnv, getEnvFloat, getEnvInt mirror the teacher's env helper pattern
// (env.go's getEnv/getEnvFloat/getEnvInt): read with a default, never panic
// on a malformed value.
func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Bootstrap holds process-level settings read once at startup from the OS
// environment. Unlike GridConfig it is never hot-reloaded.
type Bootstrap struct {
	Venue  string // e.g. "binance-futures"
	Symbol string // e.g. "BTCUSDT"

	APIKey    string
	APISecret string

	RESTBaseURL string
	WSBaseURL   string

	PriceTick decimal.Decimal // venue tick size for Symbol, e.g. "0.1"
	QtyStep   decimal.Decimal // venue step size for Symbol, e.g. "0.001"

	StateDir   string // directory holding <symbol>.state.json
	JournalDir string // directory holding <symbol>.journal.csv
	LogDir     string

	GridConfigPath string // path to the KEY=VALUE grid config file (§6)

	ReloadIntervalSec   int // C1 cadence, default 60
	HeartbeatIntervalSec int // C6 cadence, default 30
	RESTTimeoutSec      int // per-call deadline, default 5
	WSSilenceTimeoutSec int // default 90

	DryRun bool

	MetricsPort int
}

// LoadBootstrapFromEnv builds a Bootstrap from the process environment,
// following the teacher's getEnv*/default pattern rather than a generic
// config library: this layer is small, fixed-shape, and read exactly once.
func LoadBootstrapFromEnv() Bootstrap {
	priceTick, err := decimal.NewFromString(getEnv("PRICE_TICK", "0.1"))
	if err != nil {
		priceTick = decimal.NewFromFloat(0.1)
	}
	qtyStep, err := decimal.NewFromString(getEnv("QTY_STEP", "0.001"))
	if err != nil {
		qtyStep = decimal.NewFromFloat(0.001)
	}

	return Bootstrap{
		Venue:      getEnv("VENUE", "binance-futures"),
		Symbol:     getEnv("SYMBOL", "BTCUSDT"),
		APIKey:     getEnv("VENUE_API_KEY", ""),
		APISecret:  getEnv("VENUE_API_SECRET", ""),

		RESTBaseURL: getEnv("VENUE_REST_BASE_URL", "https://fapi.example.com"),
		WSBaseURL:   getEnv("VENUE_WS_BASE_URL", "wss://fstream.example.com"),

		PriceTick: priceTick,
		QtyStep:   qtyStep,

		StateDir:   getEnv("STATE_DIR", "./state"),
		JournalDir: getEnv("JOURNAL_DIR", "./journal"),
		LogDir:     getEnv("LOG_DIR", "./logs"),

		GridConfigPath: getEnv("GRID_CONFIG_PATH", "./grid.conf"),

		ReloadIntervalSec:    getEnvInt("RELOAD_INTERVAL_SEC", 60),
		HeartbeatIntervalSec: getEnvInt("HEARTBEAT_INTERVAL_SEC", 30),
		RESTTimeoutSec:       getEnvInt("REST_TIMEOUT_SEC", 5),
		WSSilenceTimeoutSec:  getEnvInt("WS_SILENCE_TIMEOUT_SEC", 90),

		DryRun: getEnv("DRY_RUN", "true") == "true",

		MetricsPort: getEnvInt("METRICS_PORT", 9300),
	}
}
