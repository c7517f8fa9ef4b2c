// Package log records what a watcher exchanged with the logger service.
//
// This is a protocol trace, not operational logging; the latter goes
// through slog. A trace answers "what bytes went over the wire and when":
// each socket read and write, each command the watcher encoded, each
// log frame the framer completed, and each connection state change.
//
// Wiring a trace into a watcher:
//
//	file, err := log.NewFileLogger("session.klog")
//	if err != nil {
//		return err
//	}
//	defer file.Close()
//	cfg.ProtocolLogger = log.NewMultiLogger(file, log.NewSlogAdapter(logger))
//
// Events fall into four categories: RAW (socket chunks, FrameEvent),
// COMMAND (CommandEvent), STATE (StateChangeEvent) and ERROR
// (ErrorEventData, including skipped unknown commands).
//
// A capture file is nothing more than CBOR events written back to back with
// integer map keys. Reader and Filter walk such a file; kbelog capture
// builds its view, stats, export and filter commands on them.
package log
