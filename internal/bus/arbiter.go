// Package bus implements the shared-device-bus arbiter: every transfer
// against a process-wide bus device opens the device file, performs
// exactly one transfer, and closes it again, all under a single mutex,
// logging on failure.
package bus

import (
	"fmt"
	"os"
	"sync"

	"github.com/fastdaq/daqcore/internal/interfaces"
)

// Driver is the vendor-specific transfer primitive the Arbiter
// serializes access to. A real bus card driver issues an ioctl or a
// memory-mapped transfer against the open file; driver/sim provides an
// in-memory stand-in for tests.
type Driver interface {
	Read32(f *os.File, addr uint32) (uint32, error)
	Write32(f *os.File, addr, value uint32) error
	Read16(f *os.File, addr uint32) (uint16, error)
	Write16(f *os.File, addr uint32, value uint16) error
	ReadBlock(f *os.File, addr uint32, out []uint16) error
	ReadBlockFIFO(f *os.File, addr uint32, out []uint16) error
	ReadBlockMBLT64(f *os.File, addr uint32, out []uint32) error
	ReadBlockMBLT64FIFO(f *os.File, addr uint32, out []uint32) error
}

// Arbiter owns exclusive access to one shared bus device path. Every
// exported method opens the device, performs one transfer via Driver,
// and closes the device before returning — matching the
// lock-open-transfer-close shape of every WorkerVme method.
type Arbiter struct {
	mu     sync.Mutex
	path   string
	driver Driver
	logger interfaces.Logger
}

// NewArbiter creates an Arbiter over the given bus device path.
func NewArbiter(path string, driver Driver, logger interfaces.Logger) *Arbiter {
	return &Arbiter{path: path, driver: driver, logger: logger}
}

func (a *Arbiter) open() (*os.File, error) {
	f, err := os.OpenFile(a.path, os.O_RDWR, 0)
	if err != nil {
		if a.logger != nil {
			a.logger.Errorf("bus: failed to open %s: %v", a.path, err)
		}
		return nil, fmt.Errorf("bus: open %s: %w", a.path, err)
	}
	return f, nil
}

// Read32 reads one 32-bit register.
func (a *Arbiter) Read32(addr uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	v, err := a.driver.Read32(f, addr)
	if err != nil && a.logger != nil {
		a.logger.Errorf("bus: Read32(0x%x): %v", addr, err)
	}
	return v, err
}

// Write32 writes one 32-bit register.
func (a *Arbiter) Write32(addr, value uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := a.driver.Write32(f, addr, value); err != nil {
		if a.logger != nil {
			a.logger.Errorf("bus: Write32(0x%x): %v", addr, err)
		}
		return err
	}
	return nil
}

// Read16 reads one 16-bit register.
func (a *Arbiter) Read16(addr uint32) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	v, err := a.driver.Read16(f, addr)
	if err != nil && a.logger != nil {
		a.logger.Errorf("bus: Read16(0x%x): %v", addr, err)
	}
	return v, err
}

// Write16 writes one 16-bit register.
func (a *Arbiter) Write16(addr uint32, value uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := a.driver.Write16(f, addr, value); err != nil {
		if a.logger != nil {
			a.logger.Errorf("bus: Write16(0x%x): %v", addr, err)
		}
		return err
	}
	return nil
}

// ReadBlock reads a standard block transfer into out.
func (a *Arbiter) ReadBlock(addr uint32, out []uint16) error {
	return a.readBlock(addr, out, a.driver.ReadBlock, "ReadBlock")
}

// ReadBlockFIFO reads a FIFO-mode block transfer into out, where every
// word comes from the same address rather than sequential addresses.
func (a *Arbiter) ReadBlockFIFO(addr uint32, out []uint16) error {
	return a.readBlock(addr, out, a.driver.ReadBlockFIFO, "ReadBlockFIFO")
}

func (a *Arbiter) readBlock(addr uint32, out []uint16, fn func(*os.File, uint32, []uint16) error, op string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f, addr, out); err != nil {
		if a.logger != nil {
			a.logger.Errorf("bus: %s(0x%x): %v", op, addr, err)
		}
		return err
	}
	return nil
}

// ReadBlockMBLT64 reads a 64-bit multiplexed block transfer into out.
func (a *Arbiter) ReadBlockMBLT64(addr uint32, out []uint32) error {
	return a.readBlockMBLT64(addr, out, a.driver.ReadBlockMBLT64, "ReadBlockMBLT64")
}

// ReadBlockMBLT64FIFO reads a 64-bit multiplexed FIFO-mode block
// transfer into out.
func (a *Arbiter) ReadBlockMBLT64FIFO(addr uint32, out []uint32) error {
	return a.readBlockMBLT64(addr, out, a.driver.ReadBlockMBLT64FIFO, "ReadBlockMBLT64FIFO")
}

func (a *Arbiter) readBlockMBLT64(addr uint32, out []uint32, fn func(*os.File, uint32, []uint32) error, op string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f, addr, out); err != nil {
		if a.logger != nil {
			a.logger.Errorf("bus: %s(0x%x): %v", op, addr, err)
		}
		return err
	}
	return nil
}
