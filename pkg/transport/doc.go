// Package transport provides the socket and stream-framing layer of the
// log watcher.
//
// It handles:
//   - TCP connections to the logger service with keep-alive enabled
//   - Complete-or-error sends and bounded-wait receives
//   - Incremental reassembly of inbound frames from arbitrary chunks
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   wire commands / log frames   │
//	├────────────────────────────────┤
//	│  cmd(u16) + length(u16) header │
//	├────────────────────────────────┤
//	│              TCP               │
//	└────────────────────────────────┘
//
// # Receive Semantics
//
// Conn.Recv distinguishes three outcomes that callers treat differently:
//   - ErrRecvTimeout: nothing arrived within the wait; the connection is fine
//   - ErrStreamClosed: the peer closed the stream; a normal terminal state
//   - ErrTransport: the socket failed; the caller decides whether to redial
//
// Nothing in this package retries or reconnects.
package transport
