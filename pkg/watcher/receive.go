package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/kbe-tools/kbelog/pkg/log"
	"github.com/kbe-tools/kbelog/pkg/metrics"
	"github.com/kbe-tools/kbelog/pkg/transport"
)

// Receive reads log frames and passes them to handler, one call per read
// that completed at least one frame.
//
// With loop false, Receive returns nil as soon as a poll interval passes
// without data. With loop true, an idle poll interval sends a heartbeat
// instead and Receive keeps going.
//
// Receive returns transport.ErrStreamClosed when the service closes the
// stream; any partial frame is dropped and the connection is closed. That
// is the normal end of a session, not a failure: treat it like io.EOF and
// test for it with errors.Is. It returns ctx.Err() if ctx is done between
// waits, and the send or receive error otherwise. Closing the watcher ends
// a blocked wait.
func (w *Watcher) Receive(ctx context.Context, handler Handler, loop bool) error {
	conn := w.transport()
	if conn == nil {
		return transport.ErrNotConnected
	}

	chunk := make([]byte, w.config.ReadChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := conn.Recv(chunk, w.config.PollTimeout)
		switch {
		case err == nil:
			w.dispatch(conn.ID(), chunk[:n], handler)

		case errors.Is(err, transport.ErrRecvTimeout):
			if !loop {
				return nil
			}
			if err := w.SendHeartbeat(); err != nil {
				w.logger.Warn("heartbeat failed", "error", err)
				return err
			}

		case errors.Is(err, transport.ErrStreamClosed):
			w.logger.Info("logger closed the stream", "conn_id", conn.ID(), "dropped_bytes", w.framer.Buffered())
			w.framer.Reset()
			w.Close()
			return err

		default:
			return err
		}
	}
}

func (w *Watcher) dispatch(connID string, data []byte, handler Handler) {
	w.metrics.BytesReceived(len(data))

	batch := w.framer.Feed(data)
	if len(batch) == 0 {
		return
	}

	now := time.Now()
	for _, payload := range batch {
		w.metrics.FrameReceived(metrics.KindLog)
		w.capture.Log(log.Event{
			Timestamp:    now,
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Category:     log.CategoryCommand,
			Command:      newCommandEvent(w.config.LogCommandID, payload),
		})
	}
	w.metrics.BatchDispatched()
	handler.HandleLogs(batch)
}
