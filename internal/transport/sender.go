// Package transport implements the online writer's wire layer:
// publishing framed messages over NATS with bounded, non-blocking
// sends and a high-water-mark drop policy instead of queuing
// indefinitely against a slow consumer.
package transport

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Sender is the minimal capability the online writer needs: a
// non-blocking attempt to hand one frame to the transport.
// daqcore.Writer retries a bounded number of times against this
// interface rather than blocking the writer goroutine on a slow send.
type Sender interface {
	// Send attempts to publish payload without blocking. A non-nil
	// error means the attempt should be retried or abandoned by the
	// caller; it does not mean the connection is necessarily dead.
	Send(payload []byte) error
	Close() error
}

const defaultHighWaterMark = 10

// NATSSender publishes frames to a single NATS subject.
// nats.Conn.Publish itself is inherently non-blocking (it enqueues onto
// the client's outbound buffer and returns), but a core NATS publish
// never reports the broker's queue depth back to the caller, so
// NATSSender tracks its own high-water mark: the channel's capacity
// bounds how many published-but-not-yet-flushed frames may be in
// flight at once, and Send fails fast once that bound is reached
// instead of queuing further frames against a slow consumer.
type NATSSender struct {
	conn          *nats.Conn
	subject       string
	highWaterMark chan struct{}
}

// NewNATSSender creates a Sender that publishes to subject over conn,
// allowing at most highWaterMark frames to be outstanding (published
// but not yet flushed to the server) at once. highWaterMark <= 0 falls
// back to the same default (10) as writers.online.high_water_mark's
// config default.
func NewNATSSender(conn *nats.Conn, subject string, highWaterMark int) *NATSSender {
	if highWaterMark <= 0 {
		highWaterMark = defaultHighWaterMark
	}
	return &NATSSender{
		conn:          conn,
		subject:       subject,
		highWaterMark: make(chan struct{}, highWaterMark),
	}
}

// Send publishes payload to the configured subject, non-blocking. If
// highWaterMark frames are already outstanding, the frame is dropped
// immediately rather than blocking the caller.
func (s *NATSSender) Send(payload []byte) error {
	select {
	case s.highWaterMark <- struct{}{}:
	default:
		return fmt.Errorf("transport: high water mark reached on %s, dropping frame", s.subject)
	}

	if err := s.conn.Publish(s.subject, payload); err != nil {
		<-s.highWaterMark
		return fmt.Errorf("transport: publish to %s: %w", s.subject, err)
	}

	go func() {
		_ = s.conn.FlushTimeout(time.Second)
		<-s.highWaterMark
	}()
	return nil
}

// Close drains and closes the underlying connection.
func (s *NATSSender) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("transport: drain: %w", err)
	}
	return nil
}

// Connect dials a NATS server and returns a connection suitable for
// NewNATSSender, naming the client after the writer for observability.
func Connect(url, clientName string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(clientName))
	if err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", url, err)
	}
	return conn, nil
}
