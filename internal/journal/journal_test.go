package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestJournal_WritesHeaderOnlyOnce(t *testing.T) {
	dir := t.TempDir()

	j1, err := Open(dir, "BTCUSDT")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j1.Append(Entry{Timestamp: time.Now(), Symbol: "BTCUSDT", Event: "ENTRY_L1", Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	j1.Close()

	j2, err := Open(dir, "BTCUSDT")
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if err := j2.Append(Entry{Timestamp: time.Now(), Symbol: "BTCUSDT", Event: "TP", Price: decimal.NewFromInt(101), Qty: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	j2.Close()

	bs, err := os.ReadFile(filepath.Join(dir, "BTCUSDT.journal.csv"))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(bs), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 1 header + 2 rows = 3 lines, got %d:\n%s", len(lines), string(bs))
	}
	if !strings.HasPrefix(lines[0], "timestamp,symbol,event") {
		t.Fatalf("first line is not the header: %q", lines[0])
	}
}

func TestJournal_AppendFormatsDecimalColumns(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "ETHUSDT")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	err = j.Append(Entry{
		Timestamp:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Symbol:            "ETHUSDT",
		Event:             "SL",
		Price:             decimal.NewFromFloat(3200.5),
		Qty:               decimal.NewFromFloat(0.75),
		RealizedPnL:       decimal.NewFromFloat(-12.34),
		RunningCapital:    decimal.NewFromFloat(987.66),
		GridCenterAtEvent: decimal.NewFromFloat(3300),
		StartGridCenter:   decimal.NewFromFloat(3300),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	bs, _ := os.ReadFile(filepath.Join(dir, "ETHUSDT.journal.csv"))
	if !strings.Contains(string(bs), "SL,3200.5,0.75,-12.34,987.66,3300,3300") {
		t.Fatalf("unexpected journal row contents: %s", string(bs))
	}
}
