package daqcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCollect_AggregationWithMissingWorker covers a registry of three
// workers where only two ever produce an event. Collect must time out,
// but GetEventData still yields one bundle with non-default entries
// for the producing workers and a default entry left for the silent
// one — then FlushEventData must leave every worker's HasEvent false
// again.
func TestCollect_AggregationWithMissingWorker(t *testing.T) {
	driver0 := NewMockDriver(Sis3302{SystemClock: 10})
	driver1 := NewMockDriver[Sis3302]() // never produces
	driver2 := NewMockDriver(Sis3302{SystemClock: 30})

	w0 := NewWorker[Sis3302](driver0, WorkerConfig{Name: "sis3302-0"})
	w1 := NewWorker[Sis3302](driver1, WorkerConfig{Name: "sis3302-1"})
	w2 := NewWorker[Sis3302](driver2, WorkerConfig{Name: "sis3302-2"})

	registry := NewRegistry(nil)
	registry.Add(AsHandle(w0))
	registry.Add(AsHandle(w1))
	registry.Add(AsHandle(w2))

	registry.StartRun()
	defer registry.StopRun()

	require.Eventually(t, func() bool {
		return w0.HasEvent() && w2.HasEvent()
	}, time.Second, time.Millisecond)

	assert.False(t, registry.AllWorkersHaveEvent(), "worker 1 never produces, so the fleet is never fully ready")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bundle, err := Collect(ctx, registry, 50*time.Millisecond)
	require.Error(t, err, "collect should report the incomplete-bundle timeout")

	require.Len(t, bundle.Sis3302, 3, "one slot per worker regardless of which produced")
	assert.Equal(t, uint64(10), bundle.Sis3302[0].SystemClock)
	assert.Equal(t, uint64(0), bundle.Sis3302[1].SystemClock, "missing worker's slot is default-initialized")
	assert.Equal(t, uint64(30), bundle.Sis3302[2].SystemClock)

	registry.FlushEventData()
	assert.False(t, registry.AnyWorkersHaveEvent(), "flush must leave every worker without a stale event")
}

// TestRegistry_AllWorkersHaveEventBecomesTrueOnceEveryWorkerHasAnEvent
// exercises the happy path where every worker in the fleet eventually
// produces, so a later trigger's Collect succeeds without a timeout.
func TestRegistry_AllWorkersHaveEventBecomesTrueOnceEveryWorkerHasAnEvent(t *testing.T) {
	d0 := NewMockDriver(Drs4{SystemClock: 1})
	d1 := NewMockDriver(Caen1785{SystemClock: 2})

	w0 := NewWorker[Drs4](d0, WorkerConfig{Name: "drs4-0"})
	w1 := NewWorker[Caen1785](d1, WorkerConfig{Name: "caen1785-0"})

	registry := NewRegistry(nil)
	registry.Add(AsHandle(w0))
	registry.Add(AsHandle(w1))

	registry.StartRun()
	defer registry.StopRun()

	require.Eventually(t, func() bool {
		return registry.AllWorkersHaveEvent()
	}, time.Second, time.Millisecond)

	ctx := context.Background()
	bundle, err := Collect(ctx, registry, time.Second)
	require.NoError(t, err)
	require.Len(t, bundle.Drs4, 1)
	require.Len(t, bundle.Caen1785, 1)

	assert.False(t, registry.AnyWorkersHaveEvent(), "Collect's GetEventData should have drained both queues")
}

// TestRegistry_AnyWorkersHaveMultiEvent detects a worker outrunning the
// trigger rate, a pacing-violation signal the fleet needs to surface.
func TestRegistry_AnyWorkersHaveMultiEvent(t *testing.T) {
	d0 := NewMockDriver(Drs4{}, Drs4{}, Drs4{})

	w0 := NewWorker[Drs4](d0, WorkerConfig{Name: "drs4-0"})
	registry := NewRegistry(nil)
	registry.Add(AsHandle(w0))

	registry.StartRun()
	defer registry.StopRun()

	require.Eventually(t, func() bool {
		return registry.AnyWorkersHaveMultiEvent()
	}, time.Second, time.Millisecond)
}

// TestRegistry_StopThreadsIsIdempotent covers the shutdown-idempotence
// testable property at the fleet level.
func TestRegistry_StopThreadsIsIdempotent(t *testing.T) {
	w0 := NewWorker[Drs4](NewMockDriver[Drs4](), WorkerConfig{Name: "drs4-0"})
	registry := NewRegistry(nil)
	registry.Add(AsHandle(w0))

	registry.StartThreads()
	registry.StopThreads()
	registry.StopThreads()

	assert.Equal(t, StateIdle, w0.State())
}
