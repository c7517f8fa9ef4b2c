package sink

import (
	"context"
	"encoding/hex"
	"io"
	"sync"
)

// Console writes payloads to a writer, one line each.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	hex bool
}

// NewConsole returns a console sink. With hexDump set, each payload is
// written as a hex dump instead of text.
func NewConsole(w io.Writer, hexDump bool) *Console {
	return &Console{w: w, hex: hexDump}
}

// Name returns "console".
func (c *Console) Name() string { return "console" }

// Write writes each payload, newline-terminated.
func (c *Console) Write(ctx context.Context, payloads [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		var out []byte
		if c.hex {
			out = []byte(hex.Dump(p))
		} else {
			out = terminate(p)
		}
		if _, err := c.w.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the writer belongs to the caller.
func (c *Console) Close() error { return nil }
