package watcher

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kbe-tools/kbelog/pkg/log"
	"github.com/kbe-tools/kbelog/pkg/metrics"
	"github.com/kbe-tools/kbelog/pkg/transport"
	"github.com/kbe-tools/kbelog/pkg/wire"
)

// ---------------------------------------------------------------------------
// stubTransport
// ---------------------------------------------------------------------------

type stubTransport struct{ mock.Mock }

func (s *stubTransport) SendAll(p []byte) error { return s.Called(p).Error(0) }
func (s *stubTransport) Recv(p []byte, timeout time.Duration) (int, error) {
	ret := s.Called(p, timeout)
	n := 0
	if data, ok := ret.Get(0).([]byte); ok {
		n = copy(p, data)
	}
	return n, ret.Error(1)
}
func (s *stubTransport) Close() error               { return s.Called().Error(0) }
func (s *stubTransport) ID() string                 { return "stub" }
func (s *stubTransport) State() transport.ConnState { return s.Called().Get(0).(transport.ConnState) }
func (s *stubTransport) RemoteAddr() net.Addr       { return nil }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

var fixedNow = time.Unix(1700000000, 0)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Wire.Now = func() time.Time { return fixedNow }
	cfg.PollTimeout = 20 * time.Millisecond
	cfg.Logger = slog.New(slog.DiscardHandler)
	return cfg
}

func newTestWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

// withStub attaches a stub transport that reports itself connected.
func withStub(t *testing.T, w *Watcher) *stubTransport {
	t.Helper()
	s := &stubTransport{}
	s.On("State").Return(transport.StateConnected).Maybe()
	s.On("Close").Return(nil).Maybe()
	require.NoError(t, w.attachTransport(s))
	return s
}

// loggerServer is a minimal stand-in for the logger service.
type loggerServer struct {
	ln       net.Listener
	accepted chan net.Conn
}

func newLoggerServer(t *testing.T) *loggerServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &loggerServer{ln: ln, accepted: make(chan net.Conn, 1)}
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			close(s.accepted)
			return
		}
		s.accepted <- nc
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *loggerServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *loggerServer) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case nc, ok := <-s.accepted:
		require.True(t, ok, "accept failed")
		t.Cleanup(func() { nc.Close() })
		return nc
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func connectedWatcher(t *testing.T, cfg Config) (*Watcher, net.Conn) {
	t.Helper()
	srv := newLoggerServer(t)
	w := newTestWatcher(t, cfg)
	require.NoError(t, w.Connect(context.Background(), "127.0.0.1", srv.port()))
	return w, srv.conn(t)
}

func logFrame(t *testing.T, text string) []byte {
	t.Helper()
	frame, err := wire.EncodeFrame(binary.LittleEndian, wire.CommandLogMessage, []byte(text))
	require.NoError(t, err)
	return frame
}

// collector is a Handler recording every batch.
type collector struct {
	mu      sync.Mutex
	batches [][][]byte
}

func (c *collector) HandleLogs(payloads [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, payloads)
}

func (c *collector) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batches {
		for _, p := range b {
			out = append(out, string(p))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestNewDefaults(t *testing.T) {
	w, err := New(Config{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPollTimeout, w.config.PollTimeout)
	assert.Equal(t, DefaultReadChunkSize, w.config.ReadChunkSize)
	assert.Equal(t, wire.CommandLogMessage, w.config.LogCommandID)
	assert.Equal(t, int32(12), w.Encoder().Config().WatcherType)
	assert.Equal(t, 15, w.Encoder().Config().ComponentTypeCount)
	assert.False(t, w.Connected())
}

func TestNewDefaultsPartialWireConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Wire = wire.Config{ByteOrder: binary.BigEndian}
	w := newTestWatcher(t, cfg)

	got := w.Encoder().Config()
	assert.Equal(t, wire.ComponentEndType, got.ComponentTypeCount)
	assert.Equal(t, int32(wire.ComponentWatcher), got.WatcherType)
	assert.Equal(t, binary.BigEndian, got.ByteOrder)
	assert.False(t, got.FramedHeartbeat)

	s := withStub(t, w)
	var sent []byte
	s.On("SendAll", mock.Anything).Run(func(args mock.Arguments) {
		sent = append([]byte(nil), args.Get(0).([]byte)...)
	}).Return(nil).Once()

	require.NoError(t, w.Register(1))

	hdr, ok := wire.DecodeHeader(binary.BigEndian, sent)
	require.True(t, ok)
	assert.Equal(t, wire.RegistrationFixedSize+4*wire.ComponentEndType, int(hdr.Length))
	assert.Equal(t, byte(wire.ComponentEndType), sent[wire.HeaderSize+18], "component type count")

	s.On("SendAll", mock.Anything).Run(func(args mock.Arguments) {
		sent = append([]byte(nil), args.Get(0).([]byte)...)
	}).Return(nil).Once()

	require.NoError(t, w.SendHeartbeat())
	assert.Equal(t, int32(wire.ComponentWatcher), int32(binary.BigEndian.Uint32(sent[2:6])), "unframed heartbeat carries the watcher type")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wire.ComponentTypeCount = 300
	_, err := New(cfg)
	assert.ErrorIs(t, err, wire.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.PollTimeout = -time.Second
	_, err = New(cfg)
	assert.ErrorIs(t, err, wire.ErrInvalidConfig)
}

func TestSendBeforeConnect(t *testing.T) {
	w := newTestWatcher(t, testConfig())

	assert.ErrorIs(t, w.Register(1), transport.ErrNotConnected)
	assert.ErrorIs(t, w.Deregister(), transport.ErrNotConnected)
	assert.ErrorIs(t, w.SendHeartbeat(), transport.ErrNotConnected)
	assert.ErrorIs(t, w.SendLog(1, "INFO", []byte("x")), transport.ErrNotConnected)
	assert.ErrorIs(t, w.Receive(context.Background(), HandlerFunc(func([][]byte) {}), false), transport.ErrNotConnected)
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	w := newTestWatcher(t, testConfig())
	err = w.Connect(context.Background(), "127.0.0.1", port)
	assert.ErrorIs(t, err, transport.ErrConnect)
	assert.False(t, w.Connected())
}

func TestConnectTwice(t *testing.T) {
	srv := newLoggerServer(t)
	w := newTestWatcher(t, testConfig())
	require.NoError(t, w.Connect(context.Background(), "127.0.0.1", srv.port()))

	err := w.Connect(context.Background(), "127.0.0.1", srv.port())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestRegisterOverTCP(t *testing.T) {
	w, server := connectedWatcher(t, testConfig())

	require.NoError(t, w.Register(42))

	want, err := w.Encoder().Register(42)
	require.NoError(t, err)

	got := make([]byte, len(want))
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(server, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got, wire.HeaderSize+21+4*15)
}

func TestSendLogNewline(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"without newline", "hi"},
		{"with newline", "hi\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWatcher(t, testConfig())
			s := withStub(t, w)

			var sent []byte
			s.On("SendAll", mock.Anything).Run(func(args mock.Arguments) {
				sent = append([]byte(nil), args.Get(0).([]byte)...)
			}).Return(nil).Once()

			require.NoError(t, w.SendLog(1, "INFO", []byte(tt.text)))
			s.AssertExpectations(t)

			payload := sent[wire.HeaderSize:]
			assert.True(t, bytes.HasSuffix(payload, []byte("hi\n")))
			assert.False(t, bytes.HasSuffix(payload, []byte("\n\n")))
			assert.Len(t, payload, wire.LogRecordFixedSize+3)
		})
	}
}

func TestSendLogInvalidType(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)

	for _, logType := range []string{"CRITICAL", "info", "Warning"} {
		err := w.SendLog(1, logType, []byte("boom"))
		assert.ErrorIs(t, err, wire.ErrInvalidLogType, logType)
	}

	s.AssertNotCalled(t, "SendAll", mock.Anything)
	assert.True(t, w.Connected(), "connection must be unaffected")
}

func TestDeregister(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)
	s.On("SendAll", []byte{0xBF, 0x02, 0x00, 0x00}).Return(nil).Once()

	require.NoError(t, w.Deregister())
	s.AssertExpectations(t)
}

func TestSendErrorSurfaces(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)
	sendErr := errors.Join(transport.ErrTransport, io.ErrClosedPipe)
	s.On("SendAll", mock.Anything).Return(sendErr)

	err := w.SendHeartbeat()
	assert.ErrorIs(t, err, transport.ErrTransport)
}

func TestReceiveOneShotTimeout(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)
	s.On("Recv", mock.Anything, 20*time.Millisecond).Return(nil, transport.ErrRecvTimeout).Once()

	c := &collector{}
	err := w.Receive(context.Background(), c, false)

	require.NoError(t, err)
	assert.Empty(t, c.batches)
	s.AssertNotCalled(t, "SendAll", mock.Anything)
	s.AssertExpectations(t)
}

func TestReceiveHeartbeatOnIdleOnly(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)

	heartbeat := w.Encoder().Heartbeat()
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrRecvTimeout).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(logFrame(t, "a\n"), nil).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrRecvTimeout).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrStreamClosed).Once()
	s.On("SendAll", heartbeat).Return(nil).Twice()

	c := &collector{}
	err := w.Receive(context.Background(), c, true)

	assert.ErrorIs(t, err, transport.ErrStreamClosed)
	assert.Equal(t, []string{"a\n"}, c.lines())
	s.AssertExpectations(t)
	s.AssertNumberOfCalls(t, "SendAll", 2)
}

func TestReceiveHeartbeatFailureEndsLoop(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)

	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrRecvTimeout)
	s.On("SendAll", mock.Anything).Return(transport.ErrTransport).Once()

	err := w.Receive(context.Background(), &collector{}, true)
	assert.ErrorIs(t, err, transport.ErrTransport)
	s.AssertNumberOfCalls(t, "Recv", 1)
}

func TestReceiveTransportError(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrTransport).Once()

	err := w.Receive(context.Background(), &collector{}, true)
	assert.ErrorIs(t, err, transport.ErrTransport)
	assert.False(t, errors.Is(err, transport.ErrStreamClosed))
}

func TestReceiveBatchesPerRead(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)

	two := append(logFrame(t, "one\n"), logFrame(t, "two\n")...)
	third := logFrame(t, "three\n")
	s.On("Recv", mock.Anything, mock.Anything).Return(two, nil).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(third[:3], nil).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(third[3:], nil).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrRecvTimeout).Once()

	c := &collector{}
	require.NoError(t, w.Receive(context.Background(), c, false))

	require.Len(t, c.batches, 2, "one handler call per read that completed frames")
	assert.Len(t, c.batches[0], 2)
	assert.Len(t, c.batches[1], 1)
	assert.Equal(t, []string{"one\n", "two\n", "three\n"}, c.lines())
}

func TestReceiveStreamClosedDropsPartial(t *testing.T) {
	w, server := connectedWatcher(t, testConfig())

	frame := logFrame(t, "complete\n")
	partial := logFrame(t, "never finished\n")[:7]
	_, err := server.Write(append(frame, partial...))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Close())

	var calls int
	c := &collector{}
	err = w.Receive(context.Background(), HandlerFunc(func(p [][]byte) {
		calls++
		require.NotEmpty(t, p)
		c.HandleLogs(p)
	}), true)

	assert.ErrorIs(t, err, transport.ErrStreamClosed)
	assert.Equal(t, []string{"complete\n"}, c.lines())
	assert.Equal(t, 1, calls)
	assert.Zero(t, w.framer.Buffered())
	assert.False(t, w.Connected())
}

func TestReceiveZeroByteReadDoesNotCallHandler(t *testing.T) {
	w, server := connectedWatcher(t, testConfig())
	require.NoError(t, server.Close())

	called := false
	err := w.Receive(context.Background(), HandlerFunc(func([][]byte) { called = true }), true)

	assert.ErrorIs(t, err, transport.ErrStreamClosed)
	assert.False(t, called)
}

func TestReceiveCloseFromOtherGoroutine(t *testing.T) {
	cfg := testConfig()
	cfg.PollTimeout = time.Minute
	w, _ := connectedWatcher(t, cfg)

	done := make(chan error, 1)
	go func() {
		done <- w.Receive(context.Background(), &collector{}, true)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, transport.ErrNotConnected)
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestReceiveContextCanceled(t *testing.T) {
	w := newTestWatcher(t, testConfig())
	s := withStub(t, w)
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrRecvTimeout).Maybe()
	s.On("SendAll", mock.Anything).Return(nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Receive(ctx, &collector{}, true)
	assert.ErrorIs(t, err, context.Canceled)
	s.AssertNotCalled(t, "Recv", mock.Anything, mock.Anything)
}

func TestReceiveLiveSession(t *testing.T) {
	w, server := connectedWatcher(t, testConfig())
	require.NoError(t, w.Register(7))

	// Skip the registration the server received.
	reg, err := w.Encoder().Register(7)
	require.NoError(t, err)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(server, make([]byte, len(reg)))
	require.NoError(t, err)

	var stream []byte
	stream = append(stream, logFrame(t, "first\n")...)
	unknown, err := wire.EncodeFrame(binary.LittleEndian, 999, []byte("abc"))
	require.NoError(t, err)
	stream = append(stream, unknown...)
	stream = append(stream, logFrame(t, "second\n")...)

	go func() {
		for _, b := range stream {
			_, _ = server.Write([]byte{b})
		}
		// Wait for at least one heartbeat, then hang up.
		hb := make([]byte, wire.HeaderSize+wire.HeartbeatPayloadSize)
		_, _ = io.ReadFull(server, hb)
		_ = server.(*net.TCPConn).CloseWrite()
	}()

	c := &collector{}
	err = w.Receive(context.Background(), c, true)

	assert.ErrorIs(t, err, transport.ErrStreamClosed)
	assert.Equal(t, []string{"first\n", "second\n"}, c.lines())
}

func TestCaptureAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	capture := &recordingLogger{}

	cfg := testConfig()
	cfg.Metrics = metrics.New(reg)
	cfg.ProtocolLogger = capture
	w := newTestWatcher(t, cfg)
	s := withStub(t, w)

	unknown, err := wire.EncodeFrame(binary.LittleEndian, 999, []byte("abc"))
	require.NoError(t, err)
	s.On("SendAll", mock.Anything).Return(nil)
	s.On("Recv", mock.Anything, mock.Anything).Return(append(unknown, logFrame(t, "x\n")...), nil).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrRecvTimeout).Once()
	s.On("Recv", mock.Anything, mock.Anything).Return(nil, transport.ErrStreamClosed).Once()

	require.NoError(t, w.Register(3))
	require.NoError(t, w.SendLog(3, "WARNING", []byte("careful")))
	err = w.Receive(context.Background(), &collector{}, true)
	require.ErrorIs(t, err, transport.ErrStreamClosed)

	events := capture.Events()
	var out, in, errs int
	for _, e := range events {
		assert.Equal(t, "stub", e.ConnectionID)
		switch {
		case e.Category == log.CategoryCommand && e.Direction == log.DirectionOut:
			out++
		case e.Category == log.CategoryCommand && e.Direction == log.DirectionIn:
			in++
			assert.Equal(t, []byte("x\n"), e.Command.Payload)
		case e.Category == log.CategoryError:
			errs++
			require.NotNil(t, e.Error.CommandID)
			assert.Equal(t, uint16(999), *e.Error.CommandID)
		}
	}
	assert.Equal(t, 3, out, "register, write-log, heartbeat")
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, errs)

	var warning log.Event
	for _, e := range events {
		if e.Command != nil && e.Command.CommandID == wire.CommandWriteLog {
			warning = e
		}
	}
	require.NotNil(t, warning.Command)
	assert.Equal(t, "WARNING", warning.Command.LogType)
	require.NotNil(t, warning.Command.UID)
	assert.Equal(t, int32(3), *warning.Command.UID)

	assert.Equal(t, 1.0, metricValue(t, reg, "kbelog_watcher_heartbeats_sent_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "kbelog_watcher_batches_dispatched_total"))
	assert.Equal(t, 2.0, metricValue(t, reg, "kbelog_watcher_frames_received_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "kbelog_watcher_logs_sent_total"))
	assert.Equal(t, 3.0, metricValue(t, reg, "kbelog_watcher_commands_sent_total"))
	assert.Equal(t, 0.0, metricValue(t, reg, "kbelog_watcher_connected"), "stream close clears connected")
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}

// recordingLogger collects capture events.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *recordingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}
