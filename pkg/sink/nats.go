package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is used when no subject is configured.
const DefaultNATSSubject = "kbelog.logs"

// Publisher is the subset of *nats.Conn used by the NATS sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each payload as one message.
type NATS struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// NewNATS publishes through pub. The caller keeps ownership of pub.
func NewNATS(pub Publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATS{pub: pub, subject: subject}
}

// DialNATS connects to the NATS server at url. Close drains the connection.
func DialNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("kbelog"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	s := NewNATS(nc, subject)
	s.conn = nc
	return s, nil
}

// Name returns "nats".
func (s *NATS) Name() string { return "nats" }

// Write publishes every payload and returns the joined publish errors.
func (s *NATS) Write(ctx context.Context, payloads [][]byte) error {
	var errs []error
	for _, p := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.pub.Publish(s.subject, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drains the connection if DialNATS opened it.
func (s *NATS) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
