package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCapture(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.klog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, event)
	}
}

func testEvents(base time.Time) []Event {
	unknown := uint16(999)
	return []Event{
		{Timestamp: base, ConnectionID: "conn-1", Direction: DirectionOut, Category: CategoryCommand,
			Command: &CommandEvent{CommandID: 702, Name: "register", Length: 81}},
		{Timestamp: base.Add(time.Second), ConnectionID: "conn-1", Direction: DirectionIn, Category: CategoryRaw,
			Frame: NewFrameEvent([]byte{1, 2, 3})},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "conn-1", Direction: DirectionIn, Category: CategoryCommand,
			Command: &CommandEvent{CommandID: 65501, Name: "log-message", Length: 5}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "conn-2", Direction: DirectionIn, Category: CategoryError,
			Error: &ErrorEventData{Message: "unknown command", CommandID: &unknown}},
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := createTestCapture(t, testEvents(time.Now()))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events := readAll(t, r)
	require.Len(t, events, 4)
	assert.Equal(t, CategoryCommand, events[0].Category)
	assert.Equal(t, "conn-2", events[3].ConnectionID)
}

func TestReaderFilters(t *testing.T) {
	base := time.Now().Truncate(time.Second)
	path := createTestCapture(t, testEvents(base))

	in := DirectionIn
	cmd := CategoryCommand
	logMsg := uint16(65501)
	unknown := uint16(999)
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "conn-1"}, 3},
		{"direction", Filter{Direction: &in}, 3},
		{"category", Filter{Category: &cmd}, 2},
		{"command id", Filter{CommandID: &logMsg}, 1},
		{"unknown command id", Filter{CommandID: &unknown}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{Direction: &in, Category: &cmd}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()
			assert.Len(t, readAll(t, r), tt.want)
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.klog"))
	assert.Error(t, err)
}
