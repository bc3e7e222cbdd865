package setaside

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// NewLogger returns a logfmt logger stamped with time and caller. Debug records are
// dropped unless debug is set.
func NewLogger(w io.Writer, debug bool) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(w))
	allow := level.AllowInfo()
	if debug {
		allow = level.AllowDebug()
	}
	// The filter sits under the context so caller resolves to the logging call site.
	l = level.NewFilter(l, allow)
	return log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// OpenLogger builds the logger described by cfg. With a LogPath it appends to that
// file and the returned closer closes it; otherwise it writes to fallback.
func OpenLogger(cfg Config, fallback io.Writer) (log.Logger, io.Closer, error) {
	if cfg.LogPath == "" {
		return NewLogger(fallback, cfg.Debug), nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return NewLogger(f, cfg.Debug), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
