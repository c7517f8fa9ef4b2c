// Package watcher implements a log watcher client for the KBEngine logger
// service.
//
// A Watcher owns one connection, encodes outbound commands with a
// wire.Encoder and reassembles inbound log frames with a
// transport.StreamFramer. A typical session:
//
//	w, err := watcher.New(watcher.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	if err := w.Connect(ctx, "127.0.0.1", 20022); err != nil {
//		return err
//	}
//	defer w.Close()
//
//	if err := w.Register(uid); err != nil {
//		return err
//	}
//	err = w.Receive(ctx, watcher.HandlerFunc(func(logs [][]byte) {
//		for _, line := range logs {
//			os.Stdout.Write(line)
//		}
//	}), true)
//
// Receive blocks. In continuous mode it sends a heartbeat whenever a poll
// interval passes without inbound data. It returns transport.ErrStreamClosed
// when the service closes the stream.
//
// The watcher never reconnects. Callers that want to survive a dropped
// connection call Connect again and re-register.
package watcher
