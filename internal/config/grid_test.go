package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeGridFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write grid file: %v", err)
	}
	return path
}

const validGridFile = `
# grid config
export INITIAL_CAPITAL=1000
LEVERAGE_LONG=15
LEVERAGE_SHORT=15
TRADE_DIRECTION=LONG
GRID_RANGE_PCT=0.20
MAX_ENTRY_LEVEL=4
ENTRY_RATIOS=0.05,0.20,0.25,0.50
LEVEL_DISTANCES=0.005,0.010,0.040,0.045
SL_DISTANCE=0.05
TP_PCT=0.005
BE_PCT=0.001
MAKER_FEE=0.0002
TAKER_FEE=0.0004
`

func TestParseGridFile_Valid(t *testing.T) {
	path := writeGridFile(t, validGridFile)
	snap, err := ParseGridFile(path)
	if err != nil {
		t.Fatalf("ParseGridFile: %v", err)
	}
	if !snap.InitialCapital.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("initial_capital = %s, want 1000", snap.InitialCapital)
	}
	if snap.Grid.MaxEntryLevel != 4 {
		t.Fatalf("max_entry_level = %d, want 4", snap.Grid.MaxEntryLevel)
	}
	if len(snap.Grid.EntryRatios) != 4 || len(snap.Grid.LevelDistances) != 4 {
		t.Fatalf("expected 4 entry ratios and level distances")
	}
}

func TestParseGridFile_MissingKeyFails(t *testing.T) {
	body := `
INITIAL_CAPITAL=1000
LEVERAGE_LONG=15
`
	path := writeGridFile(t, body)
	if _, err := ParseGridFile(path); err == nil {
		t.Fatalf("expected error for missing required keys")
	}
}

func TestParseGridFile_InvalidConfigRejected(t *testing.T) {
	body := `
INITIAL_CAPITAL=1000
LEVERAGE_LONG=15
LEVERAGE_SHORT=15
TRADE_DIRECTION=LONG
GRID_RANGE_PCT=0.20
MAX_ENTRY_LEVEL=2
ENTRY_RATIOS=0.6,0.6
LEVEL_DISTANCES=0.01,0.02
SL_DISTANCE=0.03
TP_PCT=0.005
BE_PCT=0.001
MAKER_FEE=0.0002
TAKER_FEE=0.0004
`
	path := writeGridFile(t, body)
	if _, err := ParseGridFile(path); err == nil {
		t.Fatalf("expected validation error for entry_ratios summing above 1")
	}
}
