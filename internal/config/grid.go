package config

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/gridbot/internal/grid"
)

// requiredGridKeys are the keys that, if missing, cause the snapshot to be
// rejected outright (§6). Unknown keys are ignored with a warning.
var requiredGridKeys = []string{
	"INITIAL_CAPITAL", "LEVERAGE_LONG", "LEVERAGE_SHORT", "TRADE_DIRECTION",
	"GRID_RANGE_PCT", "MAX_ENTRY_LEVEL", "ENTRY_RATIOS", "LEVEL_DISTANCES",
	"SL_DISTANCE", "TP_PCT", "BE_PCT", "MAKER_FEE", "TAKER_FEE",
}

// GridSnapshot is a parsed, validated GridConfig plus the initial capital
// seed used only the first time a symbol ever starts (subsequent capital
// values live in the persisted StrategyState, not the config file).
type GridSnapshot struct {
	InitialCapital decimal.Decimal
	Grid           grid.Config
}

// parseKV reads KEY=VALUE lines from the file at path, honoring "#" comments and an
// optional "export " prefix, following the teacher's loadBotEnv lexical
// rules (env.go) generalized from a process-env loader into a plain file
// parser: this never touches os.Environ.
func parseKV(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(line[len("export "):])
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		out[key] = val
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseGridFile parses and validates the grid config file at path. On any
// error the caller must retain the previous good GridSnapshot (§4.1) — this
// function itself is pure and stateless.
func ParseGridFile(path string) (GridSnapshot, error) {
	kv, err := parseKV(path)
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	known := make(map[string]bool, len(requiredGridKeys))
	for _, key := range requiredGridKeys {
		known[key] = true
		if _, ok := kv[key]; !ok {
			return GridSnapshot{}, fmt.Errorf("config: missing required key %s", key)
		}
	}
	for key := range kv {
		if !known[key] {
			log.Printf("config: ignoring unknown key %s in %s", key, path)
		}
	}

	capital, err := decimal.NewFromString(kv["INITIAL_CAPITAL"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: INITIAL_CAPITAL: %w", err)
	}

	leverageLong, err := strconv.Atoi(kv["LEVERAGE_LONG"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: LEVERAGE_LONG: %w", err)
	}
	leverageShort, err := strconv.Atoi(kv["LEVERAGE_SHORT"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: LEVERAGE_SHORT: %w", err)
	}

	direction, err := grid.ParseDirection(kv["TRADE_DIRECTION"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: %w", err)
	}

	gridRangePct, err := decimal.NewFromString(kv["GRID_RANGE_PCT"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: GRID_RANGE_PCT: %w", err)
	}

	maxLevel, err := strconv.Atoi(kv["MAX_ENTRY_LEVEL"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: MAX_ENTRY_LEVEL: %w", err)
	}

	entryRatios, err := parseDecimalList(kv["ENTRY_RATIOS"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: ENTRY_RATIOS: %w", err)
	}
	levelDistances, err := parseDecimalList(kv["LEVEL_DISTANCES"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: LEVEL_DISTANCES: %w", err)
	}

	slDistance, err := decimal.NewFromString(kv["SL_DISTANCE"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: SL_DISTANCE: %w", err)
	}
	tpPct, err := decimal.NewFromString(kv["TP_PCT"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: TP_PCT: %w", err)
	}
	bePct, err := decimal.NewFromString(kv["BE_PCT"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: BE_PCT: %w", err)
	}
	makerFee, err := decimal.NewFromString(kv["MAKER_FEE"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: MAKER_FEE: %w", err)
	}
	takerFee, err := decimal.NewFromString(kv["TAKER_FEE"])
	if err != nil {
		return GridSnapshot{}, fmt.Errorf("config: TAKER_FEE: %w", err)
	}

	cfg := grid.Config{
		LeverageLong:   leverageLong,
		LeverageShort:  leverageShort,
		Direction:      direction,
		GridRangePct:   gridRangePct,
		MaxEntryLevel:  maxLevel,
		EntryRatios:    entryRatios,
		LevelDistances: levelDistances,
		SLDistance:     slDistance,
		TPPct:          tpPct,
		BEPct:          bePct,
		MakerFee:       makerFee,
		TakerFee:       takerFee,
	}
	if err := cfg.Validate(); err != nil {
		return GridSnapshot{}, err
	}

	return GridSnapshot{InitialCapital: capital, Grid: cfg}, nil
}

func parseDecimalList(raw string) ([]decimal.Decimal, error) {
	parts := strings.Split(raw, ",")
	out := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		v, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
