package transport

import "sync"

// StubSender is an in-memory Sender for tests: it records every
// payload handed to Send and can be configured to fail on demand.
type StubSender struct {
	mu       sync.Mutex
	sent     [][]byte
	failNext int
	closed   bool
}

// NewStubSender creates an empty StubSender.
func NewStubSender() *StubSender {
	return &StubSender{}
}

// FailNext makes the next n Send calls return an error without
// recording the payload, simulating transient backpressure.
func (s *StubSender) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Send records payload, or fails if FailNext has pending failures
// queued.
func (s *StubSender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return errSendFailed
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.sent = append(s.sent, cp)
	return nil
}

// Close marks the sender closed; further Sends still succeed since
// tests only care about draining behavior before Close.
func (s *StubSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Sent returns a copy of every payload recorded so far.
func (s *StubSender) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// Closed reports whether Close has been called.
func (s *StubSender) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type sendError string

func (e sendError) Error() string { return string(e) }

const errSendFailed = sendError("transport: stub send failed")
