package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Config holds the service-specific constants the encoder needs.
// They are configuration rather than package globals so callers can match
// a particular server build.
type Config struct {
	// ComponentTypeCount is the number of component types the service knows
	// (COMPONENT_END_TYPE). Registration subscribes to types 0..count-1.
	ComponentTypeCount int

	// WatcherType is the component type this client presents itself as.
	WatcherType int32

	// ByteOrder is used for every multi-byte integer on the wire.
	ByteOrder binary.ByteOrder

	// Now returns the current time for write-log timestamps.
	Now func() time.Time

	// FramedHeartbeat writes the length field on heartbeat frames. When false
	// the heartbeat is sent in the fixed-length form (command id followed
	// directly by its 12-byte body).
	FramedHeartbeat bool
}

// DefaultConfig returns the configuration matching a stock KBEngine server.
func DefaultConfig() Config {
	return Config{
		ComponentTypeCount: ComponentEndType,
		WatcherType:        int32(ComponentWatcher),
		ByteOrder:          binary.LittleEndian,
		Now:                time.Now,
		FramedHeartbeat:    true,
	}
}

// Validate checks that the configuration can produce well-formed frames.
func (c Config) Validate() error {
	if c.ComponentTypeCount < 0 || c.ComponentTypeCount > 0xFF {
		return fmt.Errorf("%w: component type count %d outside 0..255", ErrInvalidConfig, c.ComponentTypeCount)
	}
	if c.ByteOrder == nil {
		return fmt.Errorf("%w: byte order is required", ErrInvalidConfig)
	}
	return nil
}

// ParseByteOrder maps "little" / "big" to a binary.ByteOrder.
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "", "little", "le", "little-endian":
		return binary.LittleEndian, nil
	case "big", "be", "big-endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("%w: unknown byte order %q", ErrInvalidConfig, name)
	}
}
