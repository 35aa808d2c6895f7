// Package sim provides software stand-ins for vendor hardware (bus
// cards, USB digitizers): a bus.Driver backed by an in-memory register
// file, and a generic daqcore.DeviceDriver that synthesizes events on
// a timer, so the rest of the stack is testable without real hardware.
package sim

import (
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/fastdaq/daqcore"
	"github.com/fastdaq/daqcore/internal/bus"
)

var _ bus.Driver = (*Registers)(nil)

// Registers is an in-memory register file standing in for a VME/CAMAC
// bus card: a single mutex-guarded map suffices, since register files
// are tiny compared to a block device's address space.
type Registers struct {
	mu   sync.RWMutex
	regs map[uint32]uint32
}

// NewRegisters creates an empty register file.
func NewRegisters() *Registers {
	return &Registers{regs: make(map[uint32]uint32)}
}

func (r *Registers) Read32(_ *os.File, addr uint32) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regs[addr], nil
}

func (r *Registers) Write32(_ *os.File, addr, value uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[addr] = value
	return nil
}

func (r *Registers) Read16(_ *os.File, addr uint32) (uint16, error) {
	v, _ := r.Read32(nil, addr)
	return uint16(v), nil
}

func (r *Registers) Write16(_ *os.File, addr uint32, value uint16) error {
	return r.Write32(nil, addr, uint32(value))
}

func (r *Registers) ReadBlock(f *os.File, addr uint32, out []uint16) error {
	for i := range out {
		v, _ := r.Read16(f, addr+uint32(i))
		out[i] = v
	}
	return nil
}

func (r *Registers) ReadBlockFIFO(f *os.File, addr uint32, out []uint16) error {
	for i := range out {
		v, _ := r.Read16(f, addr)
		out[i] = v
	}
	return nil
}

func (r *Registers) ReadBlockMBLT64(f *os.File, addr uint32, out []uint32) error {
	for i := range out {
		v, _ := r.Read32(f, addr+uint32(i*2))
		out[i] = v
	}
	return nil
}

func (r *Registers) ReadBlockMBLT64FIFO(f *os.File, addr uint32, out []uint32) error {
	for i := range out {
		v, _ := r.Read32(f, addr)
		out[i] = v
	}
	return nil
}

// Seed32 writes a register value directly, bypassing the bus.Arbiter's
// mutex-guarded open/transfer/close cycle. BusDigitizer uses this to
// model a device latching fresh data into its own internal memory,
// which is not itself a bus transaction.
func (r *Registers) Seed32(addr, value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[addr] = value
}

// SeedBlock writes consecutive register values starting at addr,
// bypassing the bus mutex for the same reason as Seed32.
func (r *Registers) SeedBlock(addr uint32, values []uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range values {
		r.regs[addr+uint32(i)] = uint32(v)
	}
}

// Digitizer is a generic daqcore.DeviceDriver that produces a new event
// every period via a caller-supplied generator, modeling a polling
// EventAvailable/ReadEvent pair without any real hardware underneath.
type Digitizer[T daqcore.EventRecord] struct {
	mu       sync.Mutex
	period   time.Duration
	lastEmit time.Time
	armed    bool
	generate func(t0, now time.Time) T
}

// NewDigitizer creates a Digitizer that calls generate to synthesize
// one event approximately every period while armed.
func NewDigitizer[T daqcore.EventRecord](period time.Duration, generate func(t0, now time.Time) T) *Digitizer[T] {
	return &Digitizer[T]{
		period:   period,
		generate: generate,
	}
}

func (d *Digitizer[T]) StartAcquisition() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.lastEmit = time.Now()
	return nil
}

func (d *Digitizer[T]) StopAcquisition() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	return nil
}

func (d *Digitizer[T]) EventAvailable() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed {
		return false, nil
	}
	return time.Since(d.lastEmit) >= d.period, nil
}

func (d *Digitizer[T]) ReadEvent(t0 time.Time) (T, error) {
	d.mu.Lock()
	d.lastEmit = time.Now()
	d.mu.Unlock()
	return d.generate(t0, time.Now()), nil
}

func (d *Digitizer[T]) Close() error { return nil }

// SystemClockMS converts the elapsed time since t0 into the millisecond
// system clock value every device record carries.
func SystemClockMS(t0, now time.Time) uint64 {
	return uint64(now.Sub(t0).Milliseconds())
}

// FillTrace fills a trace channel array with a synthetic pulse shape so
// simulated events look like plausible digitizer output rather than
// all zeros.
func FillTrace(trace []uint16, rng *rand.Rand, baseline uint16) {
	for i := range trace {
		trace[i] = baseline + uint16(rng.Intn(8))
	}
}
