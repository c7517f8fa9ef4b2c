// Package sink delivers received log lines to their destinations.
//
// A Sink receives the same batches the watcher hands to its Handler:
// raw log-message payloads, in stream order. Sinks do not interpret the
// payload beyond optional line termination.
package sink

import (
	"context"
	"log/slog"

	"github.com/kbe-tools/kbelog/pkg/watcher"
)

// Sink writes batches of log payloads somewhere.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write delivers one batch. Implementations must not retain payloads.
	Write(ctx context.Context, payloads [][]byte) error

	// Close flushes and releases resources.
	Close() error
}

// AsHandler adapts s to a watcher.Handler. Write failures are logged and
// do not stop the receive loop.
func AsHandler(ctx context.Context, s Sink, logger *slog.Logger) watcher.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return watcher.HandlerFunc(func(payloads [][]byte) {
		if err := s.Write(ctx, payloads); err != nil {
			logger.Warn("sink write failed", "sink", s.Name(), "lines", len(payloads), "error", err)
		}
	})
}

func terminate(p []byte) []byte {
	if len(p) > 0 && p[len(p)-1] == '\n' {
		return p
	}
	out := make([]byte, len(p)+1)
	copy(out, p)
	out[len(p)] = '\n'
	return out
}
