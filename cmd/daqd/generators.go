package main

import (
	"math/rand"
	"time"

	"github.com/fastdaq/daqcore"
	"github.com/fastdaq/daqcore/driver/sim"
)

func simDrs4Generator() func(t0, now time.Time) daqcore.Drs4 {
	rng := rand.New(rand.NewSource(404))
	return func(t0, now time.Time) daqcore.Drs4 {
		var e daqcore.Drs4
		e.SystemClock = sim.SystemClockMS(t0, now)
		for ch := 0; ch < daqcore.Drs4Channels; ch++ {
			e.DeviceClock[ch] = e.SystemClock
			sim.FillTrace(e.Trace[ch][:], rng, 1800)
		}
		return e
	}
}

func simCaen1785Generator() func(t0, now time.Time) daqcore.Caen1785 {
	rng := rand.New(rand.NewSource(1785))
	return func(t0, now time.Time) daqcore.Caen1785 {
		var e daqcore.Caen1785
		e.SystemClock = sim.SystemClockMS(t0, now)
		for ch := 0; ch < daqcore.Caen1785Channels; ch++ {
			e.DeviceClock[ch] = e.SystemClock
			e.Value[ch] = uint32(1000 + rng.Intn(3000))
		}
		return e
	}
}
