package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/fastdaq/daqcore"
	"github.com/fastdaq/daqcore/internal/bus"
	"github.com/fastdaq/daqcore/internal/constants"
)

// Register offsets for a simulated sis_3302, taken from
// original_source/src/worker_sis3302.cxx: the acquisition/status
// register, its rearm register, the two 32-bit timestamp words, and
// the per-channel next-sample-address and trace-block addresses.
const (
	sis3302StatusOffset     = 0x10
	sis3302RearmOffset      = 0x410
	sis3302Timestamp0Offset = 0x10000
	sis3302Timestamp1Offset = 0x10001
)

func sis3302NextSampleAddr(base uint32, ch int) uint32 {
	offset := uint32(0x02000010)
	offset |= uint32(ch>>1) << 24
	offset |= uint32(ch&1) << 2
	return base + offset
}

func sis3302TraceAddr(base uint32, ch int) uint32 {
	return base + uint32(0x8+ch)<<23
}

// decodeSis3302DeviceClock assembles a 48-bit device clock from the two
// 32-bit timestamp words the same way WorkerSis3302::GetEvent does: low
// 12 bits of word1, bits 16-27 of word1 shifted down to sit just above
// those, low 12 bits of word0 shifted up by 24, and bits 16-27 of word0
// shifted up by 36.
func decodeSis3302DeviceClock(ts0, ts1 uint32) uint64 {
	clock := uint64(ts1 & 0xfff)
	clock |= uint64(ts1&0xfff0000) >> 4
	clock |= uint64(ts0&0xfff) << 24
	clock |= uint64(ts0&0xfff0000) << 20
	return clock
}

// BusDigitizer is a daqcore.DeviceDriver[daqcore.Sis3302] that drives a
// simulated VME-class register file through a bus.Arbiter, reproducing
// the status-register poll, bounded-retry re-arm write, and two-word
// timestamp decode of a real WorkerVme-class device — unlike
// Digitizer, which synthesizes a USB-class driver's block-readout
// shape directly.
type BusDigitizer struct {
	arb      *bus.Arbiter
	regs     *Registers
	baseAddr uint32
	period   time.Duration
	rng      *rand.Rand

	mu          sync.Mutex
	armed       bool
	nextEventAt time.Time
}

var _ daqcore.DeviceDriver[daqcore.Sis3302] = (*BusDigitizer)(nil)

// NewBusDigitizer creates a BusDigitizer over regs at baseAddr,
// synthesizing one event approximately every period while armed.
func NewBusDigitizer(arb *bus.Arbiter, regs *Registers, baseAddr uint32, period time.Duration) *BusDigitizer {
	// The status register starts with its "no event" bit set, so nothing
	// is reported until seedEvent clears it.
	regs.Seed32(baseAddr+sis3302StatusOffset, 0x10000)
	return &BusDigitizer{
		arb:      arb,
		regs:     regs,
		baseAddr: baseAddr,
		period:   period,
		rng:      rand.New(rand.NewSource(int64(baseAddr) + 1)),
	}
}

func (d *BusDigitizer) StartAcquisition() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.nextEventAt = time.Now().Add(d.period)
	return nil
}

func (d *BusDigitizer) StopAcquisition() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	return nil
}

// EventAvailable polls the status register with up-to-BusRetryLimit
// retry, seeding a fresh synthetic event once per period, and rearms
// the device (also with retry) when an event is found, matching
// WorkerSis3302::EventAvailable's do/while(rc<0 && count<100) shape.
func (d *BusDigitizer) EventAvailable() (bool, error) {
	d.mu.Lock()
	due := d.armed && !d.nextEventAt.IsZero() && time.Now().After(d.nextEventAt)
	if due {
		d.nextEventAt = time.Now().Add(d.period)
	}
	d.mu.Unlock()

	if due {
		d.seedEvent()
	}

	msg, err := d.readRegWithRetry(d.baseAddr + sis3302StatusOffset)
	if err != nil {
		return false, err
	}

	isEvent := msg&0x10000 == 0
	if !isEvent {
		return false, nil
	}

	if err := d.writeRegWithRetry(d.baseAddr+sis3302RearmOffset, 1); err != nil {
		return false, err
	}
	// Rearming clears the "event ready" bit on real hardware; the sim
	// mirrors that so the same event isn't reported on the next poll.
	if err := d.writeRegWithRetry(d.baseAddr+sis3302StatusOffset, 0x10000); err != nil {
		return false, err
	}
	return true, nil
}

// ReadEvent reads the per-channel next-sample addresses, the two
// timestamp words, and one trace block per channel, decoding the
// device clock from the timestamp words the way GetEvent does.
func (d *BusDigitizer) ReadEvent(t0 time.Time) (daqcore.Sis3302, error) {
	var e daqcore.Sis3302
	e.SystemClock = SystemClockMS(t0, time.Now())

	for ch := 0; ch < daqcore.Sis3302Channels; ch++ {
		if _, err := d.readRegWithRetry(sis3302NextSampleAddr(d.baseAddr, ch)); err != nil {
			return e, err
		}
	}

	ts0, err := d.readRegWithRetry(d.baseAddr + sis3302Timestamp0Offset)
	if err != nil {
		return e, err
	}
	ts1, err := d.readRegWithRetry(d.baseAddr + sis3302Timestamp1Offset)
	if err != nil {
		return e, err
	}
	clock := decodeSis3302DeviceClock(ts0, ts1)

	trace := make([]uint16, daqcore.Sis3302Trace)
	for ch := 0; ch < daqcore.Sis3302Channels; ch++ {
		e.DeviceClock[ch] = clock
		if err := d.arb.ReadBlock(sis3302TraceAddr(d.baseAddr, ch), trace); err != nil {
			return e, err
		}
		copy(e.Trace[ch][:], trace)
	}

	return e, nil
}

func (d *BusDigitizer) Close() error { return nil }

// seedEvent writes a fresh synthetic timestamp and trace directly into
// the register file and clears the status register's "no event" bit.
// This models the device's own ADC and timestamp counter latching new
// data into its internal memory, not a bus transaction, so it bypasses
// the arbiter the same way real hardware's internal state updates
// don't go over the VME bus either.
func (d *BusDigitizer) seedEvent() {
	d.mu.Lock()
	seq := uint32(time.Now().UnixNano())
	d.mu.Unlock()

	ts0 := seq & 0xfff0fff
	ts1 := (seq * 7) & 0xfff0fff
	d.regs.Seed32(d.baseAddr+sis3302Timestamp0Offset, ts0)
	d.regs.Seed32(d.baseAddr+sis3302Timestamp1Offset, ts1)
	d.regs.Seed32(d.baseAddr+sis3302StatusOffset, 0)

	trace := make([]uint16, daqcore.Sis3302Trace)
	for ch := 0; ch < daqcore.Sis3302Channels; ch++ {
		FillTrace(trace, d.rng, 2000)
		d.regs.SeedBlock(sis3302TraceAddr(d.baseAddr, ch), trace)
	}
}

func (d *BusDigitizer) readRegWithRetry(addr uint32) (uint32, error) {
	var (
		v   uint32
		err error
	)
	for attempt := 0; attempt < constants.BusRetryLimit; attempt++ {
		v, err = d.arb.Read32(addr)
		if err == nil {
			return v, nil
		}
	}
	return 0, err
}

func (d *BusDigitizer) writeRegWithRetry(addr, value uint32) error {
	var err error
	for attempt := 0; attempt < constants.BusRetryLimit; attempt++ {
		if err = d.arb.Write32(addr, value); err == nil {
			return nil
		}
	}
	return err
}
