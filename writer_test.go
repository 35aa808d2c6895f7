package daqcore

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdaq/daqcore/internal/constants"
	"github.com/fastdaq/daqcore/internal/transport"
)

func TestWriter_PushDataDropsPastQueueCap(t *testing.T) {
	stub := transport.NewStubSender()
	w := NewWriter(WriterConfig{Sender: stub, MaxTraceLength: -1})

	for i := 0; i < constants.MaxWriterQueueSize; i++ {
		assert.Equal(t, 1, w.PushData([]Bundle{{}}), "push %d should be accepted", i)
	}
	assert.Equal(t, 0, w.PushData([]Bundle{{}}), "push past MaxWriterQueueSize should be dropped")
}

// TestWriter_PushDataBatchFillsRemainingSlotsThenDropsTail is S5's intake
// half: with the queue already stalled, pushing a batch of eight bundles
// in one call accepts the first five, which fill the queue, and drops
// the remaining tail of the batch.
func TestWriter_PushDataBatchFillsRemainingSlotsThenDropsTail(t *testing.T) {
	stub := transport.NewStubSender()
	w := NewWriter(WriterConfig{Sender: stub, MaxTraceLength: -1})

	batch := make([]Bundle, 8)
	for i := range batch {
		batch[i] = Bundle{Drs4: []Drs4{{SystemClock: uint64(i)}}}
	}

	accepted := w.PushData(batch)
	assert.Equal(t, constants.MaxWriterQueueSize, accepted)

	w.StartWriter()
	defer w.StopWriter()

	require.Eventually(t, func() bool {
		return len(stub.Sent()) >= constants.MaxWriterQueueSize
	}, time.Second, time.Millisecond)

	// FIFO order: the first five bundles in the batch are the ones that
	// made it in, so their system_clock values appear first and in order.
	for i := 0; i < constants.MaxWriterQueueSize; i++ {
		var doc map[string]any
		body := strings.TrimSuffix(string(stub.Sent()[i]), constants.EOMSuffix)
		require.NoError(t, json.Unmarshal([]byte(body), &doc))
		entry := doc["drs4_vec_0"].(map[string]any)
		assert.Equal(t, float64(i), entry["system_clock"])
	}
}

func TestWriter_SendsFramedJSONWithEOMSuffix(t *testing.T) {
	stub := transport.NewStubSender()
	w := NewWriter(WriterConfig{Sender: stub, MaxTraceLength: 4})

	w.StartWriter()
	defer w.StopWriter()

	evt := Sis3302{SystemClock: 123}
	evt.DeviceClock[0] = 7
	for i := range evt.Trace[0] {
		evt.Trace[0][i] = uint16(i)
	}

	require.Equal(t, 1, w.PushData([]Bundle{{Sis3302: []Sis3302{evt}}}))

	require.Eventually(t, func() bool {
		return len(stub.Sent()) >= 1
	}, time.Second, time.Millisecond)

	sent := stub.Sent()[0]
	require.True(t, strings.HasSuffix(string(sent), constants.EOMSuffix))

	body := strings.TrimSuffix(string(sent), constants.EOMSuffix)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))

	entry, ok := doc["sis_3302_vec_0"].(map[string]any)
	require.True(t, ok, "expected sis_3302_vec_0 key in %v", doc)

	trace, ok := entry["trace"].([]any)
	require.True(t, ok)
	row0, ok := trace[0].([]any)
	require.True(t, ok)
	assert.Len(t, row0, 4, "trace should be truncated to MaxTraceLength")
}

// TestWriter_EndOfBatchSendsEOBFrameEveryRetry checks that EndOfBatch
// gives the receiver every one of its EOBRetryLimit chances rather than
// stopping at the first successful send, since a receiver can be past
// its high water mark on some attempts and catch up on others.
func TestWriter_EndOfBatchSendsEOBFrameEveryRetry(t *testing.T) {
	stub := transport.NewStubSender()
	w := NewWriter(WriterConfig{Sender: stub, MaxTraceLength: -1})

	w.EndOfBatch(false)

	sent := stub.Sent()
	require.Len(t, sent, constants.EOBRetryLimit)
	for _, frame := range sent {
		assert.Equal(t, constants.EOBFrame, string(frame))
	}
}

func TestWriter_RetriesSendOnTransientFailure(t *testing.T) {
	stub := transport.NewStubSender()
	stub.FailNext(3)
	w := NewWriter(WriterConfig{Sender: stub, MaxTraceLength: -1})

	w.StartWriter()
	defer w.StopWriter()

	require.Equal(t, 1, w.PushData([]Bundle{{Drs4: []Drs4{{SystemClock: 1}}}}))

	require.Eventually(t, func() bool {
		return len(stub.Sent()) >= 1
	}, time.Second, time.Millisecond)
}
