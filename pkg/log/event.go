package log

import "time"

// MaxCaptureDataSize bounds the bytes copied into a single event.
// Larger chunks are truncated and flagged.
const MaxCaptureDataSize = 4096

// Event is one protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the watcher connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction of the traffic, if any.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// RemoteAddr is the logger service address (IP:port).
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of traffic.
type Direction uint8

const (
	// DirectionIn is traffic from the logger service.
	DirectionIn Direction = 0
	// DirectionOut is traffic to the logger service.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRaw is a chunk of bytes read from or written to the socket.
	CategoryRaw Category = 0
	// CategoryCommand is an outbound command or an inbound log frame.
	CategoryCommand Category = 1
	// CategoryState is a connection state change.
	CategoryState Category = 2
	// CategoryError is a transport error or protocol warning.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRaw:
		return "RAW"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw socket bytes.
type FrameEvent struct {
	// Size is the number of bytes moved.
	Size int `cbor:"1,keyasint"`

	// Data holds the bytes, possibly truncated.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data is shorter than Size.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies up to MaxCaptureDataSize bytes of data.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	n := len(data)
	if n > MaxCaptureDataSize {
		n = MaxCaptureDataSize
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), data[:n]...)
	return fe
}

// CommandEvent captures one protocol command.
type CommandEvent struct {
	// CommandID is the wire command id.
	CommandID uint16 `cbor:"1,keyasint"`

	// Name is a readable command name.
	Name string `cbor:"2,keyasint"`

	// Length is the payload length from the header.
	Length int `cbor:"3,keyasint"`

	// UID is the watcher identity for register and write-log commands.
	UID *int32 `cbor:"4,keyasint,omitempty"`

	// LogType is set for write-log commands.
	LogType string `cbor:"5,keyasint,omitempty"`

	// Payload holds the payload bytes, possibly truncated.
	Payload []byte `cbor:"6,keyasint,omitempty"`

	// Truncated indicates Payload is shorter than Length.
	Truncated bool `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle changes.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors and warnings.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context names the operation that failed.
	Context string `cbor:"2,keyasint,omitempty"`

	// CommandID is set for unknown inbound commands.
	CommandID *uint16 `cbor:"3,keyasint,omitempty"`
}
