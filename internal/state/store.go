// Package state implements the crash-safe state store (C2): single-writer,
// atomic-rename persistence of one StrategyState per symbol (§4.2).
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chidi150c/gridbot/internal/grid"
)

// Store persists one symbol's StrategyState to a single file. There is no
// in-process locking: each symbol runs as exactly one process, so the file
// has a single writer by construction (§4.2, §5).
type Store struct {
	path string
}

// NewStore returns a Store writing to dir/<symbol>.state.json.
func NewStore(dir, symbol string) *Store {
	return &Store{path: filepath.Join(dir, symbol+".state.json")}
}

// Load reads the persisted state. A missing file returns an empty default
// state with ok=false; any other read/parse error is fatal — the spec
// requires the operator to inspect a corrupt file, not have it silently
// reset (§4.2, §7's "State file corruption on boot").
func (s *Store) Load() (grid.StrategyState, bool, error) {
	bs, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return grid.StrategyState{}, false, nil
	}
	if err != nil {
		return grid.StrategyState{}, false, fmt.Errorf("state: read %s: %w", s.path, err)
	}
	var st grid.StrategyState
	if err := json.Unmarshal(bs, &st); err != nil {
		return grid.StrategyState{}, false, fmt.Errorf("state: corrupt state file %s: %w", s.path, err)
	}
	return st, true, nil
}

// Save serializes st and writes it with the atomic-rename pattern the
// teacher uses for its own BotState (trader.go's saveStateFrom): marshal,
// write to a temp file in the same directory, fsync, then rename over the
// destination. Rename is atomic on POSIX filesystems, so a crash mid-write
// never leaves a partially-written state file (I6).
func (s *Store) Save(st grid.StrategyState) error {
	bs, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("state: open temp file: %w", err)
	}
	if _, err := f.Write(bs); err != nil {
		f.Close()
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("state: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: rename into place: %w", err)
	}
	return nil
}
