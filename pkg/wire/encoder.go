package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Payload sizes of the fixed parts of outbound commands.
const (
	// HeartbeatPayloadSize is componentType(i32) + componentID(u64).
	HeartbeatPayloadSize = 12

	// LogRecordFixedSize is the write-log payload size without the text:
	// uid(i32) type(u32) componentType(i32) componentID(u64) globalOrder(i32)
	// groupOrder(i32) time(i64) kbeTime(u32) textLength(u32).
	LogRecordFixedSize = 44

	// RegistrationFixedSize is the register payload size without the
	// component type list: uid(i32) mask(u32) globalOrder(i32)
	// groupOrder(i32) date(u8) key(u8) count(u8) isFind(u8) first(u8).
	RegistrationFixedSize = 21
)

// RegistrationFilter selects which log traffic the service forwards.
type RegistrationFilter struct {
	UID            int32
	LogTypeMask    uint32
	GlobalOrder    int32
	GroupOrder     int32
	DateFilter     byte
	KeyFilter      byte
	ComponentTypes []int32
	IsFind         bool
	First          bool
}

// LogRecord is one outbound log line with its routing metadata.
type LogRecord struct {
	UID           int32
	Type          LogType
	ComponentType int32
	ComponentID   uint64
	GlobalOrder   int32
	GroupOrder    int32
	Time          int64
	KBETime       uint32
	Text          []byte
}

// Encoder builds complete outbound frames.
// It holds no connection state and is safe for concurrent use.
type Encoder struct {
	config Config
}

// NewEncoder creates an encoder for the given configuration.
// Zero-valued ByteOrder and Now fall back to the defaults.
func NewEncoder(config Config) (*Encoder, error) {
	if config.ByteOrder == nil {
		config.ByteOrder = binary.LittleEndian
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{config: config}, nil
}

// Config returns the encoder configuration.
func (e *Encoder) Config() Config {
	return e.config
}

// Register builds a register frame subscribing uid to every log type and
// every component type.
func (e *Encoder) Register(uid int32) ([]byte, error) {
	types := make([]int32, e.config.ComponentTypeCount)
	for i := range types {
		types[i] = int32(i)
	}
	return e.EncodeRegistration(RegistrationFilter{
		UID:            uid,
		LogTypeMask:    AllLogTypes,
		ComponentTypes: types,
		First:          true,
	})
}

// EncodeRegistration builds a register frame from an explicit filter.
func (e *Encoder) EncodeRegistration(f RegistrationFilter) ([]byte, error) {
	if len(f.ComponentTypes) > 0xFF {
		return nil, fmt.Errorf("%w: %d component types exceed the count byte", ErrPayloadTooLarge, len(f.ComponentTypes))
	}

	b := newPayloadBuilder(e.config.ByteOrder, RegistrationFixedSize+4*len(f.ComponentTypes))
	b.putInt32(f.UID)
	b.putUint32(f.LogTypeMask)
	b.putInt32(f.GlobalOrder)
	b.putInt32(f.GroupOrder)
	b.putByte(f.DateFilter)
	b.putByte(f.KeyFilter)
	b.putByte(byte(len(f.ComponentTypes)))
	for _, t := range f.ComponentTypes {
		b.putInt32(t)
	}
	b.putBool(f.IsFind)
	b.putBool(f.First)

	return EncodeFrame(e.config.ByteOrder, CommandRegister, b.buf)
}

// Deregister builds a deregister frame. It has no payload.
func (e *Encoder) Deregister() []byte {
	frame, _ := EncodeFrame(e.config.ByteOrder, CommandDeregister, nil)
	return frame
}

// Heartbeat builds a heartbeat frame carrying the watcher component type
// and a zero component id.
func (e *Encoder) Heartbeat() []byte {
	b := newPayloadBuilder(e.config.ByteOrder, HeartbeatPayloadSize)
	b.putInt32(e.config.WatcherType)
	b.putUint64(0)

	if !e.config.FramedHeartbeat {
		out := make([]byte, 2, 2+len(b.buf))
		e.config.ByteOrder.PutUint16(out, CommandHeartbeat)
		return append(out, b.buf...)
	}

	frame, _ := EncodeFrame(e.config.ByteOrder, CommandHeartbeat, b.buf)
	return frame
}

// WriteLog builds a write-log frame. logType must name one of the
// recognized log types; otherwise ErrInvalidLogType is returned and no
// frame is produced. The text is newline-terminated if it is not already.
func (e *Encoder) WriteLog(uid int32, logType string, text []byte) ([]byte, error) {
	t, err := ParseLogType(logType)
	if err != nil {
		return nil, err
	}
	return e.EncodeLogRecord(LogRecord{
		UID:           uid,
		Type:          t,
		ComponentType: e.config.WatcherType,
		Time:          e.config.Now().Unix(),
		Text:          text,
	})
}

// EncodeLogRecord builds a write-log frame from a full record.
func (e *Encoder) EncodeLogRecord(rec LogRecord) ([]byte, error) {
	if !rec.Type.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLogType, rec.Type)
	}

	text := TerminateLine(rec.Text)
	size := LogRecordFixedSize + len(text)
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, size, MaxPayloadSize)
	}

	b := newPayloadBuilder(e.config.ByteOrder, size)
	b.putInt32(rec.UID)
	b.putUint32(rec.Type.Flag())
	b.putInt32(rec.ComponentType)
	b.putUint64(rec.ComponentID)
	b.putInt32(rec.GlobalOrder)
	b.putInt32(rec.GroupOrder)
	b.putInt64(rec.Time)
	b.putUint32(rec.KBETime)
	b.putUint32(uint32(len(text)))
	b.putBytes(text)

	return EncodeFrame(e.config.ByteOrder, CommandWriteLog, b.buf)
}

// TerminateLine returns text unchanged if it already ends in a newline,
// otherwise a copy with one appended. The input slice is never modified.
func TerminateLine(text []byte) []byte {
	if len(text) > 0 && text[len(text)-1] == '\n' {
		return text
	}
	out := make([]byte, len(text)+1)
	copy(out, text)
	out[len(text)] = '\n'
	return out
}

// payloadBuilder appends fixed-width integers in one byte order.
type payloadBuilder struct {
	order binary.ByteOrder
	buf   []byte
}

func newPayloadBuilder(order binary.ByteOrder, size int) *payloadBuilder {
	return &payloadBuilder{order: order, buf: make([]byte, 0, size)}
}

func (b *payloadBuilder) putByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *payloadBuilder) putBool(v bool) {
	if v {
		b.putByte(1)
		return
	}
	b.putByte(0)
}

func (b *payloadBuilder) putUint32(v uint32) {
	var tmp [4]byte
	b.order.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *payloadBuilder) putInt32(v int32) {
	b.putUint32(uint32(v))
}

func (b *payloadBuilder) putUint64(v uint64) {
	var tmp [8]byte
	b.order.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *payloadBuilder) putInt64(v int64) {
	b.putUint64(uint64(v))
}

func (b *payloadBuilder) putBytes(p []byte) {
	b.buf = append(b.buf, p...)
}
