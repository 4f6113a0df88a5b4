// Package logx provides the structured logger shared by the corruption
// reporting and short-write warning paths described in spec §7. It mirrors
// perkeep.org's direct dependency on go.uber.org/zap rather than inventing a
// bespoke logging shim.
package logx

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	current *zap.Logger
)

func defaultLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l
}

// Logger returns the process-wide logger, initializing it to a production
// JSON logger on first use.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = defaultLogger()
	}
	return current
}

// SetLogger overrides the process-wide logger, for tests and for hosts that
// want their own zap configuration wired through.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

// ShortWrite logs a write completion that observed fewer bytes written than
// requested (spec §7): this layer surfaces the shortage to the pager rather
// than retrying.
func ShortWrite(offset int64, requested, written int) {
	Logger().Error("short write",
		zap.Int64("offset", offset),
		zap.Int("requested", requested),
		zap.Int("written", written),
	)
}

// CorruptMarker logs the sentinel the dump exporter prints when it hits a
// Corrupt error mid-dump, before continuing (spec §7, §9).
func CorruptMarker(context string, err error) {
	Logger().Warn("corruption encountered during dump",
		zap.String("context", context),
		zap.Error(err),
	)
}
