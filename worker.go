package daqcore

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastdaq/daqcore/internal/config"
	"github.com/fastdaq/daqcore/internal/constants"
	"github.com/fastdaq/daqcore/internal/interfaces"
)

var (
	errInvalidPostTriggerDelay = errors.New("post_trigger_delay must be >= 0, clamping to default")
	errInvalidTriggerType      = errors.New(`trigger_type must be "ttl" or "nim", defaulting to "ttl"`)
)

// DeviceDriver is the vendor-specific capability a Worker polls. Actual
// bus/digitizer drivers are out of scope for this module (see spec
// Non-goals); production code supplies one per physical device family,
// and driver/sim provides software stand-ins for testing and the demo
// CLI.
type DeviceDriver[T EventRecord] interface {
	// StartAcquisition arms the physical device for data taking.
	StartAcquisition() error
	// StopAcquisition disarms the device.
	StopAcquisition() error
	// EventAvailable reports whether a new event is ready to read.
	EventAvailable() (bool, error)
	// ReadEvent reads and decodes one event. t0 is the worker's
	// acquisition start time, used to compute SystemClock.
	ReadEvent(t0 time.Time) (T, error)
	// Close releases the device handle.
	Close() error
}

// WorkerState is the lifecycle state of a Worker.
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateArmed
	StateRunning
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Worker is a generic per-device producer: it owns one DeviceDriver[T],
// polls it on its own goroutine, and buffers decoded events in a
// mutex-guarded queue for the aggregator to drain. Two nested run/arm
// flags gate the acquisition loop, events are pushed under lock, and a
// pop on an empty queue returns the zero value without blocking.
type Worker[T EventRecord] struct {
	name   string
	driver DeviceDriver[T]
	logger interfaces.Logger
	obs    interfaces.Observer

	threadLive atomic.Bool
	goTime     atomic.Bool
	hasEvent   atomic.Bool

	mu    sync.Mutex
	queue []T

	params WorkerParams

	t0   time.Time
	done chan struct{}
}

// WorkerParams holds the per-device configuration keys a worker reads
// through LoadConfig. Which fields are meaningful depends on the
// worker's bus class (USB vs shared-bus); LoadConfig populates all of
// them uniformly and leaves the driver to use what applies.
type WorkerParams struct {
	DeviceID              int
	BaseAddress           uint32
	InvertExtLemo         bool
	UserLEDOn             bool
	EnableIntStop         bool
	EnableExtLemo         bool
	ClockSettings         int
	StartDelay            int
	StopDelay             int
	EnableEventLengthStop bool
	PretriggerSamples     uint32
	SamplingRate          float64
	UseDRS4Corrections    bool
	PostTriggerDelay      int
	TriggerType           string
	ChannelOffset         []float64
	ChannelGain           []string
}

// defaultPostTriggerDelay is the clamp target for an out-of-range
// post_trigger_delay value.
const defaultPostTriggerDelay = 50

// numChannelsFor reports the per-channel array width of T, dispatched
// on its static type the same way popInto dispatches bundle slots.
func numChannelsFor[T EventRecord]() int {
	var zero T
	switch any(zero).(type) {
	case Sis3350:
		return Sis3350Channels
	case Sis3302:
		return Sis3302Channels
	case Sis3316:
		return Sis3316Channels
	case Caen1785:
		return Caen1785Channels
	case Caen6742:
		return Caen6742Channels
	case Caen1742:
		return Caen1742Channels
	case Caen5720:
		return Caen5720Channels
	case Caen5730:
		return Caen5730Channels
	case Drs4:
		return Drs4Channels
	default:
		return 0
	}
}

// WorkerConfig configures a new Worker.
type WorkerConfig struct {
	Name   string
	Logger interfaces.Logger
	Obs    interfaces.Observer
}

// NewWorker creates a Worker in StateIdle; call StartThread then
// StartWorker to begin acquisition.
func NewWorker[T EventRecord](driver DeviceDriver[T], cfg WorkerConfig) *Worker[T] {
	return &Worker[T]{
		name:   cfg.Name,
		driver: driver,
		logger: cfg.Logger,
		obs:    cfg.Obs,
	}
}

// Name returns the worker's configured device name.
func (w *Worker[T]) Name() string { return w.name }

// Params returns the worker's currently loaded configuration.
func (w *Worker[T]) Params() WorkerParams {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params
}

// LoadConfig reads this worker's device keys from cfg (device_id,
// base_address, invert_ext_lemo, channel_offset, channel_gain, and the
// rest of the per-worker surface) into WorkerParams. An out-of-range
// post_trigger_delay clamps to defaultPostTriggerDelay; an unrecognized
// trigger_type defaults to "ttl". Both are logged.
func (w *Worker[T]) LoadConfig(cfg *config.Tree) {
	numChannels := numChannelsFor[T]()

	postTriggerDelay := cfg.Int("post_trigger_delay", defaultPostTriggerDelay)
	if postTriggerDelay < 0 {
		w.logError("LoadConfig", errInvalidPostTriggerDelay)
		postTriggerDelay = defaultPostTriggerDelay
	}

	triggerType := cfg.String("trigger_type", "ttl")
	if triggerType != "ttl" && triggerType != "nim" {
		w.logError("LoadConfig", errInvalidTriggerType)
		triggerType = "ttl"
	}

	params := WorkerParams{
		DeviceID:              cfg.Int("device_id", 0),
		BaseAddress:           cfg.HexUint32("base_address", 0),
		InvertExtLemo:         cfg.Bool("invert_ext_lemo", false),
		UserLEDOn:             cfg.Bool("user_led_on", false),
		EnableIntStop:         cfg.Bool("enable_int_stop", false),
		EnableExtLemo:         cfg.Bool("enable_ext_lemo", false),
		ClockSettings:         cfg.Int("clock_settings", 0),
		StartDelay:            cfg.Int("start_delay", 0),
		StopDelay:             cfg.Int("stop_delay", 0),
		EnableEventLengthStop: cfg.Bool("enable_event_length_stop", false),
		PretriggerSamples:     cfg.HexUint32("pretrigger_samples", 0),
		SamplingRate:          cfg.Float64("sampling_rate", 0),
		UseDRS4Corrections:    cfg.Bool("use_drs4_corrections", false),
		PostTriggerDelay:      postTriggerDelay,
		TriggerType:           triggerType,
		ChannelOffset:         cfg.ChannelOffsets("channel_offset", numChannels),
		ChannelGain:           cfg.GainSlice("channel_gain", numChannels),
	}

	w.mu.Lock()
	w.params = params
	w.mu.Unlock()
}

// StartThread launches the acquisition goroutine. It is idempotent: a
// second call while the thread is already live is a no-op.
func (w *Worker[T]) StartThread() {
	if w.threadLive.Load() {
		return
	}
	w.threadLive.Store(true)
	w.done = make(chan struct{})
	go w.workLoop()
}

// StopThread signals the acquisition goroutine to exit and waits for it.
func (w *Worker[T]) StopThread() {
	if !w.threadLive.Load() {
		return
	}
	w.threadLive.Store(false)
	<-w.done
}

// StartWorker arms acquisition: the poll loop begins reading events.
func (w *Worker[T]) StartWorker() {
	if err := w.driver.StartAcquisition(); err != nil {
		w.logError("StartAcquisition", err)
	}
	w.goTime.Store(true)
}

// StopWorker disarms acquisition without stopping the goroutine.
func (w *Worker[T]) StopWorker() {
	w.goTime.Store(false)
	if err := w.driver.StopAcquisition(); err != nil {
		w.logError("StopAcquisition", err)
	}
}

// State reports the worker's current lifecycle state.
func (w *Worker[T]) State() WorkerState {
	if !w.threadLive.Load() {
		return StateIdle
	}
	if !w.goTime.Load() {
		return StateArmed
	}
	return StateRunning
}

func (w *Worker[T]) workLoop() {
	defer close(w.done)
	w.t0 = time.Now()

	for w.threadLive.Load() {
		for w.goTime.Load() {
			if !w.threadLive.Load() {
				return
			}
			available, err := w.driver.EventAvailable()
			if err != nil {
				w.logError("EventAvailable", err)
				time.Sleep(constants.ShortSleep)
				continue
			}
			if available {
				evt, err := w.driver.ReadEvent(w.t0)
				if err != nil {
					w.logError("ReadEvent", err)
					continue
				}
				w.push(evt)
			} else {
				time.Sleep(constants.ShortSleep)
			}
		}
		time.Sleep(constants.LongSleep)
	}
}

func (w *Worker[T]) push(evt T) {
	w.mu.Lock()
	w.queue = append(w.queue, evt)
	depth := len(w.queue)
	w.hasEvent.Store(true)
	w.mu.Unlock()

	if w.obs != nil {
		w.obs.ObserveEvent(w.name, 0, true)
		w.obs.ObserveQueueDepth(w.name, uint32(depth))
	}
}

// HasEvent reports whether at least one event is queued.
func (w *Worker[T]) HasEvent() bool {
	return w.hasEvent.Load()
}

// NumEvents reports the number of currently queued events.
func (w *Worker[T]) NumEvents() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// PopEvent removes and returns the oldest queued event, or the zero
// value of T if the queue is empty. It never blocks.
func (w *Worker[T]) PopEvent() T {
	w.mu.Lock()
	defer w.mu.Unlock()

	var zero T
	if len(w.queue) == 0 {
		return zero
	}
	evt := w.queue[0]
	w.queue = w.queue[1:]
	if len(w.queue) == 0 {
		w.hasEvent.Store(false)
	}
	return evt
}

// FlushEvents drops any queued events.
func (w *Worker[T]) FlushEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = nil
	w.hasEvent.Store(false)
}

// logError logs a failed driver operation. It relies on cfg.Logger
// already being scoped to this worker (e.g. via logging.Logger.WithFields)
// so the device name doesn't need rebuilding into every message here.
func (w *Worker[T]) logError(op string, err error) {
	if w.logger == nil {
		return
	}
	w.logger.Errorf("%s: %v", op, err)
}

// popInto appends the result of PopEvent into the matching Bundle slice,
// dispatched by the static type of T: a closed set of concrete types
// resolved at compile time per instantiation of Worker[T], instead of
// a runtime visitor over a tagged union.
func popInto[T EventRecord](w *Worker[T], b *Bundle) {
	evt := w.PopEvent()
	switch e := any(evt).(type) {
	case Sis3350:
		b.Sis3350 = append(b.Sis3350, e)
	case Sis3302:
		b.Sis3302 = append(b.Sis3302, e)
	case Sis3316:
		b.Sis3316 = append(b.Sis3316, e)
	case Caen1785:
		b.Caen1785 = append(b.Caen1785, e)
	case Caen6742:
		b.Caen6742 = append(b.Caen6742, e)
	case Caen1742:
		b.Caen1742 = append(b.Caen1742, e)
	case Caen5720:
		b.Caen5720 = append(b.Caen5720, e)
	case Caen5730:
		b.Caen5730 = append(b.Caen5730, e)
	case Drs4:
		b.Drs4 = append(b.Drs4, e)
	}
}
