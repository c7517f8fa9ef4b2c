package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command identifiers.
const (
	// CommandHeartbeat keeps an idle watcher registered (Logger::onAppActiveTick).
	CommandHeartbeat uint16 = 701

	// CommandRegister registers the watcher for log traffic.
	CommandRegister uint16 = 702

	// CommandDeregister removes the watcher registration.
	CommandDeregister uint16 = 703

	// CommandWriteLog writes one log record into the service.
	CommandWriteLog uint16 = 704

	// CommandLogMessage carries one forwarded log line to the watcher.
	CommandLogMessage uint16 = 65501
)

// Framing constants.
const (
	// HeaderSize is the size of the frame header in bytes.
	HeaderSize = 4

	// MaxPayloadSize is the largest payload a uint16 length field can describe.
	MaxPayloadSize = 0xFFFF
)

// Wire errors.
var (
	// ErrPayloadTooLarge indicates the payload does not fit the uint16 length field.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidLogType indicates a write-log request named an unknown log type.
	ErrInvalidLogType = errors.New("invalid log type")

	// ErrInvalidConfig indicates an unusable encoder configuration.
	ErrInvalidConfig = errors.New("invalid wire config")
)

// CommandName returns a short name for a command id.
func CommandName(id uint16) string {
	switch id {
	case CommandHeartbeat:
		return "heartbeat"
	case CommandRegister:
		return "register"
	case CommandDeregister:
		return "deregister"
	case CommandWriteLog:
		return "write-log"
	case CommandLogMessage:
		return "log-message"
	default:
		return fmt.Sprintf("unknown(%d)", id)
	}
}

// FrameHeader is the fixed 4-byte prefix of every frame.
type FrameHeader struct {
	CommandID uint16
	Length    uint16
}

// Frame is one complete message: header plus payload.
// The header length is always len(Payload).
type Frame struct {
	CommandID uint16
	Payload   []byte
}

// DecodeHeader reads a header from the start of data.
// It reports false if fewer than HeaderSize bytes are available.
func DecodeHeader(order binary.ByteOrder, data []byte) (FrameHeader, bool) {
	if len(data) < HeaderSize {
		return FrameHeader{}, false
	}
	return FrameHeader{
		CommandID: order.Uint16(data[0:2]),
		Length:    order.Uint16(data[2:4]),
	}, true
}

// EncodeFrame prepends a header to payload.
func EncodeFrame(order binary.ByteOrder, commandID uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	order.PutUint16(buf[0:2], commandID)
	order.PutUint16(buf[2:4], uint16(len(payload)))
	return append(buf, payload...), nil
}

// FrameSize returns the total frame size including the header.
func FrameSize(payloadSize int) int {
	return HeaderSize + payloadSize
}
