package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbe-tools/kbelog/pkg/log"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	// StateDisconnected indicates no usable socket.
	StateDisconnected ConnState = iota

	// StateConnected indicates an open socket.
	StateConnected
)

// String returns the connection state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	// ErrConnect indicates the logger service could not be reached.
	ErrConnect = errors.New("connect failed")

	// ErrTransport indicates a send or receive failure on an established connection.
	ErrTransport = errors.New("transport error")

	// ErrNotConnected indicates the connection was never opened or is closed.
	ErrNotConnected = errors.New("not connected")

	// ErrStreamClosed indicates the peer closed the stream (zero-byte read).
	ErrStreamClosed = errors.New("stream closed by peer")

	// ErrRecvTimeout indicates no data arrived within the receive wait.
	ErrRecvTimeout = errors.New("receive timeout")
)

// Dial defaults.
const (
	// DefaultConnectTimeout bounds Dial when the context has no deadline.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultKeepAlivePeriod is the TCP keep-alive probe interval.
	DefaultKeepAlivePeriod = 15 * time.Second
)

// DialConfig configures Dial.
type DialConfig struct {
	// ConnectTimeout applies when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// KeepAlivePeriod is the TCP keep-alive interval (default: 15s).
	// Keep-alive detects peers that vanished without closing the stream.
	KeepAlivePeriod time.Duration
}

// Conn is a blocking TCP connection to the logger service.
//
// Writes are serialized internally. Reads are not: only one goroutine
// may call Recv at a time.
type Conn struct {
	nc     net.Conn
	id     string
	remote string

	state     atomic.Int32
	closeOnce sync.Once
	writeMu   sync.Mutex

	logger log.Logger
}

// Dial connects to host:port. A failure wraps ErrConnect and is not retried.
func Dial(ctx context.Context, host string, port int, config DialConfig) (*Conn, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.KeepAlivePeriod == 0 {
		config.KeepAlivePeriod = DefaultKeepAlivePeriod
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{KeepAlive: config.KeepAlivePeriod}
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, address, err)
	}

	if tcp, ok := nc.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		if config.KeepAlivePeriod > 0 {
			_ = tcp.SetKeepAlivePeriod(config.KeepAlivePeriod)
		}
	}

	return NewConn(nc), nil
}

// NewConn wraps an already established connection.
func NewConn(nc net.Conn) *Conn {
	c := &Conn{
		nc:     nc,
		id:     uuid.NewString(),
		logger: log.NoopLogger{},
	}
	if addr := nc.RemoteAddr(); addr != nil {
		c.remote = addr.String()
	}
	c.state.Store(int32(StateConnected))
	return c
}

// SetLogger enables protocol capture of raw traffic and state changes.
// Pass nil to disable. Call before the connection is shared.
func (c *Conn) SetLogger(logger log.Logger) {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	c.logger = logger
	c.logState(StateDisconnected, StateConnected, "")
}

// ID returns the connection id used in capture events.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// RemoteAddr returns the logger service address, or nil once closed.
func (c *Conn) RemoteAddr() net.Addr {
	if c.State() != StateConnected {
		return nil
	}
	return c.nc.RemoteAddr()
}

// SendAll writes all of p. Either every byte is written or an error
// wrapping ErrTransport is returned and the connection is closed.
// Safe for concurrent use.
func (c *Conn) SendAll(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() != StateConnected {
		return ErrNotConnected
	}

	rest := p
	for len(rest) > 0 {
		n, err := c.nc.Write(rest)
		rest = rest[n:]
		if err != nil {
			return c.fail("write", err)
		}
		if n == 0 {
			return c.fail("write", io.ErrShortWrite)
		}
	}

	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionOut,
		Category:     log.CategoryRaw,
		RemoteAddr:   c.remote,
		Frame:        log.NewFrameEvent(p),
	})
	return nil
}

// Recv reads up to len(p) bytes, waiting at most timeout for data.
// A zero timeout blocks until data, EOF or an error.
//
// Returns ErrRecvTimeout if the wait expired, ErrStreamClosed if the peer
// closed the stream, ErrNotConnected after Close, or an error wrapping
// ErrTransport. Stream close and transport errors close the connection.
func (c *Conn) Recv(p []byte, timeout time.Duration) (int, error) {
	if c.State() != StateConnected {
		return 0, ErrNotConnected
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("%w: empty receive buffer", ErrTransport)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		if c.State() != StateConnected {
			return 0, ErrNotConnected
		}
		return 0, c.fail("set deadline", err)
	}

	n, err := c.nc.Read(p)
	if n > 0 {
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Direction:    log.DirectionIn,
			Category:     log.CategoryRaw,
			RemoteAddr:   c.remote,
			Frame:        log.NewFrameEvent(p[:n]),
		})
		// A trailing EOF shows up again on the next read.
		return n, nil
	}

	switch {
	case err == nil, errors.Is(err, io.EOF):
		c.closeWithReason("peer closed stream")
		return 0, ErrStreamClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return 0, ErrRecvTimeout
	case errors.Is(err, net.ErrClosed) && c.State() != StateConnected:
		return 0, ErrNotConnected
	default:
		return 0, c.fail("read", err)
	}
}

// Close closes the socket. Subsequent calls are no-ops returning nil.
func (c *Conn) Close() error {
	return c.closeWithReason("closed by caller")
}

// fail closes the connection and wraps err as a transport error.
func (c *Conn) fail(op string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Category:     log.CategoryError,
		RemoteAddr:   c.remote,
		Error:        &log.ErrorEventData{Message: err.Error(), Context: op},
	})
	c.closeWithReason(wrapped.Error())
	return wrapped
}

func (c *Conn) closeWithReason(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		err = c.nc.Close()
		c.logState(StateConnected, StateDisconnected, reason)
	})
	return err
}

func (c *Conn) logState(from, to ConnState, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Category:     log.CategoryState,
		RemoteAddr:   c.remote,
		StateChange: &log.StateChangeEvent{
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}
