package transport

import (
	"net"
	"time"
)

// Transport is the byte-level connection the watcher drives.
// Implemented by Conn.
type Transport interface {
	// SendAll writes the whole buffer or returns an error.
	SendAll(p []byte) error

	// Recv reads into p, waiting at most timeout (0 waits forever).
	Recv(p []byte, timeout time.Duration) (int, error)

	// Close releases the connection. Safe to call more than once.
	Close() error

	// ID returns the connection id used in capture events.
	ID() string

	// State returns the connection state.
	State() ConnState

	// RemoteAddr returns the logger service address, or nil once closed.
	RemoteAddr() net.Addr
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*Conn)(nil)
)
