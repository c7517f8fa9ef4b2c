package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger streams capture events into a file as a sequence of CBOR
// items. Reader reads them back.
type FileLogger struct {
	mu      sync.Mutex
	w       io.WriteCloser
	enc     *cbor.Encoder
	dropped uint64
	closed  bool
}

// NewFileLogger opens path in append mode (created 0644 if missing), so
// several sessions can share one capture file.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return newFileLogger(f), nil
}

func newFileLogger(w io.WriteCloser) *FileLogger {
	return &FileLogger{w: w, enc: NewEncoder(w)}
}

// Log appends event. A failed write never reaches the caller; it is
// counted in Dropped instead. After Close, Log is a no-op.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
	}
}

// Dropped returns how many events could not be written.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the underlying file. Later calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.w.Close()
}

var _ Logger = (*FileLogger)(nil)
