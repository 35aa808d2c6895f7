package sim

import (
	"testing"
	"time"

	"github.com/fastdaq/daqcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisters_Write32ThenRead32RoundTrips(t *testing.T) {
	r := NewRegisters()

	require.NoError(t, r.Write32(nil, 0x10, 0xdeadbeef))

	v, err := r.Read32(nil, 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestRegisters_ReadUnsetAddressReturnsZero(t *testing.T) {
	r := NewRegisters()

	v, err := r.Read32(nil, 0x999)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestRegisters_Write16TruncatesThroughWrite32(t *testing.T) {
	r := NewRegisters()

	require.NoError(t, r.Write16(nil, 0x4, 0xabcd))

	v16, err := r.Read16(nil, 0x4)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xabcd), v16)
}

func TestRegisters_ReadBlockReadsSequentialAddresses(t *testing.T) {
	r := NewRegisters()
	for i := uint32(0); i < 4; i++ {
		require.NoError(t, r.Write16(nil, 0x100+i, uint16(i+1)))
	}

	out := make([]uint16, 4)
	require.NoError(t, r.ReadBlock(nil, 0x100, out))

	assert.Equal(t, []uint16{1, 2, 3, 4}, out)
}

func TestRegisters_ReadBlockFIFORereadsSameAddress(t *testing.T) {
	r := NewRegisters()
	require.NoError(t, r.Write16(nil, 0x20, 7))

	out := make([]uint16, 3)
	require.NoError(t, r.ReadBlockFIFO(nil, 0x20, out))

	assert.Equal(t, []uint16{7, 7, 7}, out)
}

func TestDigitizer_EventNotAvailableBeforeArming(t *testing.T) {
	d := NewDigitizer(time.Millisecond, func(t0, now time.Time) daqcore.Caen1785 {
		return daqcore.Caen1785{}
	})

	avail, err := d.EventAvailable()
	require.NoError(t, err)
	assert.False(t, avail)
}

func TestDigitizer_EventAvailableAfterPeriodElapsesWhileArmed(t *testing.T) {
	d := NewDigitizer(5*time.Millisecond, func(t0, now time.Time) daqcore.Caen1785 {
		return daqcore.Caen1785{}
	})
	require.NoError(t, d.StartAcquisition())

	avail, err := d.EventAvailable()
	require.NoError(t, err)
	assert.False(t, avail, "should not fire before the period elapses")

	time.Sleep(10 * time.Millisecond)

	avail, err = d.EventAvailable()
	require.NoError(t, err)
	assert.True(t, avail)
}

func TestDigitizer_ReadEventResetsPeriodAndCallsGenerator(t *testing.T) {
	t0 := time.Now()
	var sawT0 time.Time
	d := NewDigitizer(time.Millisecond, func(gotT0, now time.Time) daqcore.Caen1785 {
		sawT0 = gotT0
		return daqcore.Caen1785{SystemClock: 42}
	})
	require.NoError(t, d.StartAcquisition())
	time.Sleep(2 * time.Millisecond)

	rec, err := d.ReadEvent(t0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.SystemClock)
	assert.Equal(t, t0, sawT0)

	avail, err := d.EventAvailable()
	require.NoError(t, err)
	assert.False(t, avail, "reading an event should reset the period clock")
}

func TestDigitizer_StopAcquisitionSuppressesFurtherEvents(t *testing.T) {
	d := NewDigitizer(time.Millisecond, func(t0, now time.Time) daqcore.Caen1785 {
		return daqcore.Caen1785{}
	})
	require.NoError(t, d.StartAcquisition())
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, d.StopAcquisition())

	avail, err := d.EventAvailable()
	require.NoError(t, err)
	assert.False(t, avail)
}
