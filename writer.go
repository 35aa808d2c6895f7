package daqcore

import (
	"bytes"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastdaq/daqcore/internal/buffers"
	"github.com/fastdaq/daqcore/internal/config"
	"github.com/fastdaq/daqcore/internal/constants"
	"github.com/fastdaq/daqcore/internal/interfaces"
	"github.com/fastdaq/daqcore/internal/transport"
)

// Writer is the online writer pipeline: a bounded intake queue feeding
// a background goroutine that packs the oldest Bundle into a JSON
// document and hands it to a transport.Sender, retrying non-blocking
// sends up to a bound before giving up on that message.
type Writer struct {
	mu    sync.Mutex
	queue []Bundle

	queueHasData atomic.Bool
	messageReady atomic.Bool
	goTime       atomic.Bool
	threadLive   atomic.Bool

	sender         transport.Sender
	maxTraceLength int
	eventNumber    atomic.Uint64

	logger interfaces.Logger
	obs    interfaces.Observer

	pending []byte
	done    chan struct{}
}

// WriterConfig configures a new Writer.
type WriterConfig struct {
	Sender transport.Sender
	// MaxTraceLength truncates every trace channel to this many
	// samples before serialization; -1 disables truncation.
	MaxTraceLength int
	// Logger should already be scoped to the writer (e.g. via
	// logging.Logger.WithFields("component", "writer")) so log lines
	// below don't rebuild that tag themselves.
	Logger interfaces.Logger
	Obs    interfaces.Observer
}

// NewWriter creates a Writer bound to the given transport.
func NewWriter(cfg WriterConfig) *Writer {
	maxLen := cfg.MaxTraceLength
	if maxLen == 0 {
		maxLen = -1
	}
	return &Writer{
		sender:         cfg.Sender,
		maxTraceLength: maxLen,
		logger:         cfg.Logger,
		obs:            cfg.Obs,
	}
}

// LoadConfig reads the writers.online section (port, high_water_mark,
// max_trace_length) of cfg. high_water_mark and port describe the
// transport the Writer was constructed with and are only logged here;
// max_trace_length is applied immediately.
func (w *Writer) LoadConfig(cfg *config.Tree) {
	maxLen := cfg.Int("max_trace_length", w.maxTraceLength)

	w.mu.Lock()
	w.maxTraceLength = maxLen
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Printf("loaded config port=%s high_water_mark=%d max_trace_length=%d",
			cfg.String("port", ""), cfg.Int("high_water_mark", 10), maxLen)
	}
}

// StartWriter launches the background send loop.
func (w *Writer) StartWriter() {
	if w.threadLive.Load() {
		return
	}
	w.threadLive.Store(true)
	w.goTime.Store(true)
	w.done = make(chan struct{})
	go w.sendMessageLoop()
}

// StopWriter stops the background send loop and waits for it to exit.
func (w *Writer) StopWriter() {
	if !w.threadLive.Load() {
		return
	}
	w.goTime.Store(false)
	w.threadLive.Store(false)
	<-w.done
}

// PushData walks batch in order, enqueuing bundles until the intake
// queue reaches constants.MaxWriterQueueSize; the head of the batch
// fills whatever room remains and the tail is silently dropped. It
// reports how many bundles were actually enqueued.
func (w *Writer) PushData(batch []Bundle) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	accepted := 0
	for _, b := range batch {
		if len(w.queue) >= constants.MaxWriterQueueSize {
			if w.obs != nil {
				w.obs.ObserveDrop("writer")
			}
			continue
		}
		w.queue = append(w.queue, b)
		accepted++
	}
	if accepted > 0 {
		w.queueHasData.Store(true)
		if w.obs != nil {
			w.obs.ObserveQueueDepth("writer", uint32(len(w.queue)))
		}
	}
	return accepted
}

// EndOfBatch drains any queued bundles, then sends the end-of-batch
// sentinel frame constants.EOBRetryLimit times unconditionally — it
// does not stop at the first successful send, since repeating the
// frame gives a receiver that is transiently past its high water mark
// multiple chances to pick it up.
func (w *Writer) EndOfBatch(badData bool) {
	w.flushData()

	frame := []byte(constants.EOBFrame)
	failures := 0
	for i := 0; i < constants.EOBRetryLimit; i++ {
		if err := w.sender.Send(frame); err != nil {
			failures++
		}
		time.Sleep(constants.LongSleep)
	}
	if failures == constants.EOBRetryLimit && w.logger != nil {
		w.logger.Errorf("every end-of-batch send failed across %d attempts", constants.EOBRetryLimit)
	}
}

// flushData drains the intake queue under lock, clearing
// queueHasData — matching WriterOnline::FlushData.
func (w *Writer) flushData() {
	w.mu.Lock()
	w.queue = nil
	w.queueHasData.Store(false)
	w.mu.Unlock()
}

func (w *Writer) sendMessageLoop() {
	defer close(w.done)

	for w.threadLive.Load() {
		for w.goTime.Load() && w.queueHasData.Load() {
			if !w.messageReady.Load() {
				w.packMessage()
			}

			attempts := 0
			for w.messageReady.Load() && w.goTime.Load() && attempts < constants.WriterSendRetryLimit {
				if err := w.sender.Send(w.pending); err == nil {
					w.messageReady.Store(false)
					if w.obs != nil {
						w.obs.ObserveEvent("writer", 0, true)
					}
				} else {
					attempts++
					time.Sleep(constants.ShortSleep)
				}
			}
			if w.messageReady.Load() {
				if w.obs != nil {
					w.obs.ObserveDrop("writer")
				}
				w.messageReady.Store(false)
			}
			time.Sleep(constants.ShortSleep)
		}
		time.Sleep(constants.LongSleep)
	}
}

// packMessage pops the oldest queued bundle and serializes it into
// w.pending, ready for sendMessageLoop to transmit.
func (w *Writer) packMessage() {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}
	b := w.queue[0]
	w.queue = w.queue[1:]
	if len(w.queue) == 0 {
		w.queueHasData.Store(false)
	}
	w.mu.Unlock()

	doc := w.buildDocument(b)

	buf := buffers.Get(estimateDocSize(b))
	out := bytes.NewBuffer(buf)
	if err := json.NewEncoder(out).Encode(doc); err != nil {
		if w.logger != nil {
			w.logger.Errorf("marshal bundle: %v", err)
		}
		buffers.Put(buf)
		return
	}

	encoded := out.Bytes()
	w.pending = make([]byte, 0, len(encoded)+len(constants.EOMSuffix))
	w.pending = append(w.pending, bytes.TrimRight(encoded, "\n")...)
	w.pending = append(w.pending, []byte(constants.EOMSuffix)...)
	w.messageReady.Store(true)

	buffers.Put(buf)
}

// estimateDocSize sizes the scratch buffer packMessage draws from the
// pool, rounding up generously: the large-trace digitizers (sis_3302,
// sis_3316) dominate message size once their 100000-sample channels are
// serialized as JSON arrays.
func estimateDocSize(b Bundle) int {
	const samplesToJSONBytes = 6 // decimal digits + separator, worst case

	n := len(b.Sis3302)*Sis3302Channels*Sis3302Trace +
		len(b.Sis3316)*Sis3316Channels*Sis3316Trace
	if n == 0 {
		return 128 * 1024
	}
	return n * samplesToJSONBytes
}

// traceArray constrains the fixed-length trace/trigger array types used
// across the nine device records, so toRows can truncate any of them
// without per-device boilerplate.
type traceArray interface {
	~[500]uint16 | ~[1024]uint16 | ~[100000]uint16
}

// toRows converts a slice of fixed-length channel arrays into a slice
// of ordinary slices, truncating each to maxLen samples when maxLen is
// non-negative.
func toRows[A traceArray](channels []A, maxLen int) [][]uint16 {
	rows := make([][]uint16, len(channels))
	for i := range channels {
		row := channels[i][:]
		if maxLen >= 0 && len(row) > maxLen {
			row = row[:maxLen]
		}
		rows[i] = row
	}
	return rows
}

// buildDocument assembles the wire document for one bundle: a
// top-level event_number plus one "<tag>_vec_<i>" entry per queued
// event, each carrying system_clock, device_clock (or event_index for
// the index-only digitizers), and trace (or value for caen_1785)
// truncated to w.maxTraceLength when configured.
func (w *Writer) buildDocument(b Bundle) map[string]any {
	doc := map[string]any{
		"event_number": w.eventNumber.Add(1),
	}

	for i, e := range b.Sis3350 {
		doc[key("sis_3350", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Sis3302 {
		doc[key("sis_3302", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Sis3316 {
		doc[key("sis_3316", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Caen1785 {
		doc[key("caen_1785", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"value":        e.Value[:],
		}
	}
	for i, e := range b.Caen6742 {
		doc[key("caen_6742", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Caen1742 {
		doc[key("caen_1742", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
			"trigger":      toRows(e.Trigger[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Caen5720 {
		doc[key("caen_5720", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"event_index":  e.EventIndex,
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Caen5730 {
		doc[key("caen_5730", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"event_index":  e.EventIndex,
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}
	for i, e := range b.Drs4 {
		doc[key("drs4", i)] = map[string]any{
			"system_clock": e.SystemClock,
			"device_clock": e.DeviceClock[:],
			"trace":        toRows(e.Trace[:], w.maxTraceLength),
		}
	}

	return doc
}

func key(tag string, i int) string {
	return tag + "_vec_" + strconv.Itoa(i)
}
