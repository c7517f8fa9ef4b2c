package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbe-tools/kbelog/pkg/metrics"
)

// Multi fans each batch out to several sinks.
type Multi struct {
	sinks   []Sink
	metrics *metrics.Metrics
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
// m may be nil.
func NewMulti(m *metrics.Metrics, sinks ...Sink) *Multi {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Multi{sinks: filtered, metrics: m}
}

// Name returns "multi".
func (m *Multi) Name() string { return "multi" }

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Write writes to every sink, even after a failure, and joins the errors.
func (m *Multi) Write(ctx context.Context, payloads [][]byte) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, payloads); err != nil {
			m.metrics.SinkWriteFailed(s.Name())
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins the errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
