// Package constants centralizes the timing and sizing constants shared
// across the worker, writer, and sync-client state machines.
package constants

import "time"

// Poll-loop timing: short sleep spins tightly while the acquisition
// flag is set and no event is ready; long sleep paces the outer
// run-loop when armed but not actively polling.
const (
	ShortSleep = 10 * time.Microsecond
	LongSleep  = 100 * time.Microsecond

	// HeavySleep paces the sync client's status loop while disconnected
	// or idle.
	HeavySleep = 10 * time.Millisecond

	// LightSleep paces a busy-poll retry such as the sync client's
	// registration handshake.
	LightSleep = 200 * time.Microsecond
)

// Queueing and retry limits.
const (
	// MaxWriterQueueSize bounds the online writer's intake FIFO; entries
	// past this size are dropped rather than blocking the producer.
	MaxWriterQueueSize = 5

	// WriterSendRetryLimit bounds non-blocking publish attempts for a
	// single packed message before SendMessageLoop gives up on it.
	WriterSendRetryLimit = 200

	// EOBRetryLimit bounds non-blocking publish attempts for the
	// end-of-batch sentinel frame.
	EOBRetryLimit = 50

	// BusRetryLimit bounds a driver's retries of a failing bus transfer;
	// once it is reached the last error is returned to the caller.
	BusRetryLimit = 100

	// EOMSuffix and EOBFrame are the wire framing sentinels for the
	// online writer's message stream.
	EOMSuffix = "__EOM__"
	EOBFrame  = "__EOB__\x00\x00\x00"
)

// Heartbeat cadence: the sync client sends its name every N HeavySleep
// periods while idle.
const HeartbeatEveryNTicks = 2
