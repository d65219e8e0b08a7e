// Package logutil wires the standard log package to a per-day file
// alongside stderr, without a third-party logging or rotation library — the
// teacher's own log.Printf/log.Fatalf register is kept verbatim (§10.1);
// only the output destination is widened. The file is named for the UTC
// date at the moment it is opened; a process that runs past midnight keeps
// writing to that same file, as nothing reopens it on a new day.
package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// OpenDailyFile opens (creating if needed) dir/<symbol>-YYYYMMDD.log for
// append and points the standard logger at both it and stderr.
func OpenDailyFile(dir, symbol string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logutil: mkdir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s-%s.log", symbol, time.Now().UTC().Format("20060102"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logutil: open %s: %w", path, err)
	}

	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return f, nil
}
