package log

// Logger is the sink for capture events.
//
// The watcher calls Log on its receive and send paths, so implementations
// must tolerate concurrent calls and return quickly.
type Logger interface {
	Log(event Event)
}

// LoggerFunc lets a plain function act as a Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger drops every event. Components fall back to it when no
// capture logger is configured.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
