package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kbe-tools/kbelog/pkg/log"
	"github.com/kbe-tools/kbelog/pkg/metrics"
	"github.com/kbe-tools/kbelog/pkg/transport"
	"github.com/kbe-tools/kbelog/pkg/wire"
)

// Receive loop defaults.
const (
	// DefaultPollTimeout is how long one receive wait may block.
	DefaultPollTimeout = time.Second

	// DefaultReadChunkSize is the maximum number of bytes read per wait.
	DefaultReadChunkSize = 4096
)

// ErrAlreadyConnected is returned by Connect and Attach when the watcher
// already holds an open connection.
var ErrAlreadyConnected = errors.New("already connected")

// Config configures a Watcher.
type Config struct {
	// Wire configures command encoding. A zero value means wire.DefaultConfig().
	// Otherwise each zero ComponentTypeCount, WatcherType, ByteOrder and Now
	// takes its default on its own; FramedHeartbeat is used as given.
	Wire wire.Config

	// Dial configures Connect.
	Dial transport.DialConfig

	// PollTimeout bounds each receive wait (default: 1s).
	PollTimeout time.Duration

	// ReadChunkSize is the receive buffer size (default: 4096).
	ReadChunkSize int

	// LogCommandID is the inbound command id carrying log lines
	// (default: wire.CommandLogMessage).
	LogCommandID uint16

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with all defaults filled in.
func DefaultConfig() Config {
	return Config{
		Wire:          wire.DefaultConfig(),
		Dial:          transport.DialConfig{ConnectTimeout: transport.DefaultConnectTimeout, KeepAlivePeriod: transport.DefaultKeepAlivePeriod},
		PollTimeout:   DefaultPollTimeout,
		ReadChunkSize: DefaultReadChunkSize,
		LogCommandID:  wire.CommandLogMessage,
	}
}

// Watcher is a client of the logger service.
//
// Send methods may be called from any goroutine, including while Receive
// runs. Receive itself must not be called concurrently with another Receive.
type Watcher struct {
	config  Config
	encoder *wire.Encoder
	framer  *transport.StreamFramer
	logger  *slog.Logger
	capture log.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	conn transport.Transport
}

// New creates a watcher. It does not connect.
func New(config Config) (*Watcher, error) {
	config.Wire = withWireDefaults(config.Wire)
	if config.PollTimeout == 0 {
		config.PollTimeout = DefaultPollTimeout
	}
	if config.PollTimeout < 0 {
		return nil, fmt.Errorf("%w: poll timeout %v", wire.ErrInvalidConfig, config.PollTimeout)
	}
	if config.ReadChunkSize == 0 {
		config.ReadChunkSize = DefaultReadChunkSize
	}
	if config.ReadChunkSize < 0 {
		return nil, fmt.Errorf("%w: read chunk size %d", wire.ErrInvalidConfig, config.ReadChunkSize)
	}
	if config.LogCommandID == 0 {
		config.LogCommandID = wire.CommandLogMessage
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ProtocolLogger == nil {
		config.ProtocolLogger = log.NoopLogger{}
	}

	encoder, err := wire.NewEncoder(config.Wire)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:  config,
		encoder: encoder,
		logger:  config.Logger,
		capture: config.ProtocolLogger,
		metrics: config.Metrics,
	}
	w.framer = transport.NewStreamFramer(transport.FramerConfig{
		ByteOrder:    encoder.Config().ByteOrder,
		LogCommandID: config.LogCommandID,
		Logger:       config.Logger,
		OnUnknown:    w.unknownFrame,
	})
	return w, nil
}

func withWireDefaults(c wire.Config) wire.Config {
	d := wire.DefaultConfig()
	if c.ComponentTypeCount == 0 && c.WatcherType == 0 && c.ByteOrder == nil && c.Now == nil && !c.FramedHeartbeat {
		return d
	}
	if c.ComponentTypeCount == 0 {
		c.ComponentTypeCount = d.ComponentTypeCount
	}
	if c.WatcherType == 0 {
		c.WatcherType = d.WatcherType
	}
	if c.ByteOrder == nil {
		c.ByteOrder = d.ByteOrder
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Encoder returns the watcher's command encoder.
func (w *Watcher) Encoder() *wire.Encoder {
	return w.encoder
}

// Connect dials the logger service at host:port.
func (w *Watcher) Connect(ctx context.Context, host string, port int) error {
	if w.Connected() {
		return ErrAlreadyConnected
	}

	conn, err := transport.Dial(ctx, host, port, w.config.Dial)
	if err != nil {
		w.logger.Warn("connect failed", "host", host, "port", port, "error", err)
		return err
	}
	if err := w.attach(conn); err != nil {
		conn.Close()
		return err
	}

	w.logger.Info("connected to logger", "remote", conn.RemoteAddr().String(), "conn_id", conn.ID())
	return nil
}

// Attach adopts an already established connection.
func (w *Watcher) Attach(nc net.Conn) error {
	conn := transport.NewConn(nc)
	if err := w.attach(conn); err != nil {
		return err
	}
	w.logger.Debug("attached connection", "conn_id", conn.ID())
	return nil
}

func (w *Watcher) attach(conn *transport.Conn) error {
	conn.SetLogger(w.capture)
	return w.attachTransport(conn)
}

func (w *Watcher) attachTransport(conn transport.Transport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil && w.conn.State() == transport.StateConnected {
		return ErrAlreadyConnected
	}
	w.conn = conn
	w.framer.Reset()
	w.metrics.SetConnected(true)
	return nil
}

// Connected reports whether the watcher holds an open connection.
func (w *Watcher) Connected() bool {
	conn := w.transport()
	return conn != nil && conn.State() == transport.StateConnected
}

// Close closes the connection and drops any partially received frame.
// A blocked Receive returns. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	w.metrics.SetConnected(false)
	return conn.Close()
}

// Register registers uid as a log watcher for all log and component types.
func (w *Watcher) Register(uid int32) error {
	msg, err := w.encoder.Register(uid)
	if err != nil {
		return err
	}
	return w.send(outbound{
		command: wire.CommandRegister,
		msg:     msg,
		offset:  wire.HeaderSize,
		uid:     &uid,
	})
}

// Deregister removes the watcher registration.
func (w *Watcher) Deregister() error {
	return w.send(outbound{
		command: wire.CommandDeregister,
		msg:     w.encoder.Deregister(),
		offset:  wire.HeaderSize,
	})
}

// SendHeartbeat sends one heartbeat.
func (w *Watcher) SendHeartbeat() error {
	offset := wire.HeaderSize
	if !w.encoder.Config().FramedHeartbeat {
		offset = 2
	}
	err := w.send(outbound{
		command: wire.CommandHeartbeat,
		msg:     w.encoder.Heartbeat(),
		offset:  offset,
	})
	if err == nil {
		w.metrics.HeartbeatSent()
	}
	return err
}

// SendLog writes one log record with the given type name. An unknown type
// returns an error wrapping wire.ErrInvalidLogType and nothing is sent.
func (w *Watcher) SendLog(uid int32, logType string, text []byte) error {
	msg, err := w.encoder.WriteLog(uid, logType, text)
	if err != nil {
		w.logger.Warn("log not sent", "log_type", logType, "error", err)
		return err
	}

	// Encoding succeeded, so the name parses.
	lt, _ := wire.ParseLogType(logType)
	err = w.send(outbound{
		command: wire.CommandWriteLog,
		msg:     msg,
		offset:  wire.HeaderSize,
		uid:     &uid,
		logType: lt.String(),
	})
	if err == nil {
		w.metrics.LogSent(lt.String())
	}
	return err
}

// outbound is one encoded command. msg[offset:] is the payload.
type outbound struct {
	command uint16
	msg     []byte
	offset  int
	uid     *int32
	logType string
}

func (w *Watcher) send(out outbound) error {
	conn := w.transport()
	if conn == nil {
		return transport.ErrNotConnected
	}
	if err := conn.SendAll(out.msg); err != nil {
		return err
	}

	w.metrics.CommandSent(wire.CommandName(out.command))
	payload := out.msg[out.offset:]
	cmd := newCommandEvent(out.command, payload)
	cmd.UID = out.uid
	cmd.LogType = out.logType
	w.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ID(),
		Direction:    log.DirectionOut,
		Category:     log.CategoryCommand,
		Command:      cmd,
	})
	return nil
}

func (w *Watcher) transport() transport.Transport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn
}

func (w *Watcher) connID() string {
	if conn := w.transport(); conn != nil {
		return conn.ID()
	}
	return ""
}

// unknownFrame reports a skipped inbound frame.
func (w *Watcher) unknownFrame(commandID uint16, length int) {
	w.metrics.FrameReceived(metrics.KindUnknown)
	id := commandID
	w.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: w.connID(),
		Direction:    log.DirectionIn,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Message:   fmt.Sprintf("unknown command %d, skipped %d bytes", commandID, length),
			Context:   "framer",
			CommandID: &id,
		},
	})
}

func newCommandEvent(command uint16, payload []byte) *log.CommandEvent {
	cmd := &log.CommandEvent{
		CommandID: command,
		Name:      wire.CommandName(command),
		Length:    len(payload),
	}
	n := len(payload)
	if n > log.MaxCaptureDataSize {
		n = log.MaxCaptureDataSize
		cmd.Truncated = true
	}
	cmd.Payload = append([]byte(nil), payload[:n]...)
	return cmd
}
