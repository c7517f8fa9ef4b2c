package watcher

// Handler receives batches of log-message payloads.
//
// HandleLogs is called once per read that completed at least one frame,
// with the payloads in stream order. It is never called with an empty batch.
// Payloads remain valid after the call returns.
type Handler interface {
	HandleLogs(payloads [][]byte)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(payloads [][]byte)

// HandleLogs calls f(payloads).
func (f HandlerFunc) HandleLogs(payloads [][]byte) {
	f(payloads)
}
