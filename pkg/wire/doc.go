// Package wire defines the binary wire format spoken between a log watcher
// and the KBEngine logger service.
//
// Every message, in both directions, is a frame made of a 4-byte header
// followed by the payload:
//
//	┌──────────────┬──────────────┬─────────────────────┐
//	│ command (u16)│ length (u16) │ payload[length]     │
//	└──────────────┴──────────────┴─────────────────────┘
//
// All integers are fixed-width and packed without padding. The byte order
// is configurable through Config and defaults to little-endian, which is
// what the service uses on the platforms it ships for.
//
// # Commands
//
//   - 701 heartbeat   (watcher -> logger)
//   - 702 register    (watcher -> logger)
//   - 703 deregister  (watcher -> logger)
//   - 704 write-log   (watcher -> logger)
//   - 65501 log message (logger -> watcher, opaque payload)
//
// The Encoder builds complete frames and never touches a socket.
// Reassembling inbound frames from a byte stream is the job of
// transport.StreamFramer.
package wire
