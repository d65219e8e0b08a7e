// Package journal implements the append-only trade journal (C4, §4.4): one
// CSV file per symbol, header required, flushed (and fsync'd) on every
// append so loss of the last line is acceptable only on power failure.
package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

var header = []string{
	"timestamp", "symbol", "event", "price", "qty", "realized_pnl",
	"running_capital", "grid_center_at_event", "start_grid_center",
}

// Entry is one journal line (§4.4's column set).
type Entry struct {
	Timestamp         time.Time
	Symbol            string
	Event             string // ENTRY_L1..L4, TP, PARTIAL_BE, SL, CANCEL_ALL, RECONCILE_MISMATCH
	Price             decimal.Decimal
	Qty               decimal.Decimal
	RealizedPnL       decimal.Decimal
	RunningCapital    decimal.Decimal
	GridCenterAtEvent decimal.Decimal
	StartGridCenter   decimal.Decimal
}

// Journal appends Entry rows to one CSV file.
type Journal struct {
	f *os.File
	w *csv.Writer
}

// Open opens (creating if needed) dir/<symbol>.journal.csv, writing the
// header only if the file is new.
func Open(dir, symbol string) (*Journal, error) {
	path := filepath.Join(dir, symbol+".journal.csv")

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	j := &Journal{f: f, w: w}

	if needsHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: write header: %w", err)
		}
		if err := j.flush(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Append writes one line and flushes/fsyncs before returning, matching the
// state store's (C2) fsync discipline: the journal is a second
// single-writer append-only file (§4.4).
func (j *Journal) Append(e Entry) error {
	row := []string{
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Symbol,
		e.Event,
		e.Price.String(),
		e.Qty.String(),
		e.RealizedPnL.String(),
		e.RunningCapital.String(),
		e.GridCenterAtEvent.String(),
		e.StartGridCenter.String(),
	}
	if err := j.w.Write(row); err != nil {
		return fmt.Errorf("journal: write row: %w", err)
	}
	return j.flush()
}

func (j *Journal) flush() error {
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	return j.f.Sync()
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	return j.f.Close()
}
