package transport

import (
	"encoding/binary"
	"log/slog"

	"github.com/kbe-tools/kbelog/pkg/wire"
)

// FramerConfig configures a StreamFramer.
type FramerConfig struct {
	// ByteOrder of the frame header (default: little-endian).
	ByteOrder binary.ByteOrder

	// LogCommandID is the only command id whose payloads are emitted
	// (default: wire.CommandLogMessage).
	LogCommandID uint16

	// Logger receives a warning for every skipped frame (default: slog.Default()).
	Logger *slog.Logger

	// OnUnknown, if set, is called for every skipped frame with its
	// command id and payload length.
	OnUnknown func(commandID uint16, length int)
}

// StreamFramer reassembles frames from an inbound byte stream delivered in
// arbitrary chunks.
//
// Feeding the same bytes in any chunking yields the same payloads and the
// same unknown-frame callbacks, in the same order. Not safe for concurrent use.
type StreamFramer struct {
	order     binary.ByteOrder
	logID     uint16
	logger    *slog.Logger
	onUnknown func(uint16, int)

	buf []byte
}

// NewStreamFramer creates a framer with an empty buffer.
func NewStreamFramer(config FramerConfig) *StreamFramer {
	if config.ByteOrder == nil {
		config.ByteOrder = binary.LittleEndian
	}
	if config.LogCommandID == 0 {
		config.LogCommandID = wire.CommandLogMessage
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &StreamFramer{
		order:     config.ByteOrder,
		logID:     config.LogCommandID,
		logger:    config.Logger,
		onUnknown: config.OnUnknown,
	}
}

// Feed appends p to the retained buffer and returns the payloads of every
// log frame completed by it, in stream order. Payloads are copies and stay
// valid after further calls. Frames with other command ids are skipped.
func (f *StreamFramer) Feed(p []byte) [][]byte {
	f.buf = append(f.buf, p...)

	var out [][]byte
	pos := 0
	for {
		hdr, ok := wire.DecodeHeader(f.order, f.buf[pos:])
		if !ok {
			break
		}
		end := pos + wire.HeaderSize + int(hdr.Length)
		if end > len(f.buf) {
			// Incomplete payload: keep everything from the header start.
			break
		}

		payload := f.buf[pos+wire.HeaderSize : end]
		if hdr.CommandID == f.logID {
			frame := make([]byte, len(payload))
			copy(frame, payload)
			out = append(out, frame)
		} else {
			f.logger.Warn("skipping unknown frame",
				"cmd_id", hdr.CommandID,
				"length", hdr.Length)
			if f.onUnknown != nil {
				f.onUnknown(hdr.CommandID, int(hdr.Length))
			}
		}
		pos = end
	}

	f.compact(pos)
	return out
}

// Buffered returns the number of retained, not yet framed bytes.
func (f *StreamFramer) Buffered() int {
	return len(f.buf)
}

// Reset discards any retained bytes.
func (f *StreamFramer) Reset() {
	f.buf = nil
}

func (f *StreamFramer) compact(consumed int) {
	switch {
	case consumed == 0:
	case consumed == len(f.buf):
		f.buf = f.buf[:0]
	default:
		n := copy(f.buf, f.buf[consumed:])
		f.buf = f.buf[:n]
	}
}
