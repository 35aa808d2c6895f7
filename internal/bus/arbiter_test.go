package bus

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instrumentedDriver counts how many transfers are in flight at once so
// tests can assert the Arbiter never lets two overlap.
type instrumentedDriver struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	regs        map[uint32]uint32
	mu          sync.Mutex
}

func newInstrumentedDriver() *instrumentedDriver {
	return &instrumentedDriver{regs: make(map[uint32]uint32)}
}

func (d *instrumentedDriver) enter() {
	n := d.inFlight.Add(1)
	for {
		max := d.maxInFlight.Load()
		if n <= max || d.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
}

func (d *instrumentedDriver) leave() { d.inFlight.Add(-1) }

func (d *instrumentedDriver) Read32(f *os.File, addr uint32) (uint32, error) {
	d.enter()
	defer d.leave()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[addr], nil
}

func (d *instrumentedDriver) Write32(f *os.File, addr, value uint32) error {
	d.enter()
	defer d.leave()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[addr] = value
	return nil
}

func (d *instrumentedDriver) Read16(f *os.File, addr uint32) (uint16, error) {
	d.enter()
	defer d.leave()
	return 0, nil
}

func (d *instrumentedDriver) Write16(f *os.File, addr uint32, value uint16) error {
	d.enter()
	defer d.leave()
	return nil
}

func (d *instrumentedDriver) ReadBlock(f *os.File, addr uint32, out []uint16) error {
	d.enter()
	defer d.leave()
	return nil
}

func (d *instrumentedDriver) ReadBlockFIFO(f *os.File, addr uint32, out []uint16) error {
	d.enter()
	defer d.leave()
	return nil
}

func (d *instrumentedDriver) ReadBlockMBLT64(f *os.File, addr uint32, out []uint32) error {
	d.enter()
	defer d.leave()
	return nil
}

func (d *instrumentedDriver) ReadBlockMBLT64FIFO(f *os.File, addr uint32, out []uint32) error {
	d.enter()
	defer d.leave()
	return nil
}

func devNullArbiter(t *testing.T, d Driver) *Arbiter {
	t.Helper()
	return NewArbiter(os.DevNull, d, nil)
}

func TestArbiter_ReadWriteRoundTrip(t *testing.T) {
	d := newInstrumentedDriver()
	a := devNullArbiter(t, d)

	require.NoError(t, a.Write32(0x10, 42))
	v, err := a.Read32(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}

func TestArbiter_SerializesConcurrentTransfers(t *testing.T) {
	d := newInstrumentedDriver()
	a := devNullArbiter(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n uint32) {
			defer wg.Done()
			_ = a.Write32(n, n)
			_, _ = a.Read32(n)
		}(uint32(i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), d.maxInFlight.Load(), "arbiter allowed overlapping bus transfers")
}

func TestArbiter_OpenFailurePropagates(t *testing.T) {
	d := newInstrumentedDriver()
	a := NewArbiter("/nonexistent/path/for/daqcore-test", d, nil)

	_, err := a.Read32(0)
	assert.Error(t, err)
}
