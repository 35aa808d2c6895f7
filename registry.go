package daqcore

import (
	"github.com/fastdaq/daqcore/internal/config"
	"github.com/fastdaq/daqcore/internal/logging"
)

// WorkerHandle is the non-generic interface the Registry stores. Each
// concrete Worker[T] is wrapped in a handle that closes over which
// Bundle field it belongs to, so a fleet of differently-typed workers
// can be driven through one slice without a hand-rolled tagged union.
type WorkerHandle interface {
	Name() string
	LoadConfig(cfg *config.Tree)
	StartThread()
	StopThread()
	StartWorker()
	StopWorker()
	HasEvent() bool
	NumEvents() int
	FlushEvents()
	PopInto(b *Bundle)
}

type workerHandle[T EventRecord] struct {
	*Worker[T]
}

func (h workerHandle[T]) PopInto(b *Bundle) {
	popInto(h.Worker, b)
}

// AsHandle wraps a concrete Worker[T] for storage in a Registry.
func AsHandle[T EventRecord](w *Worker[T]) WorkerHandle {
	return workerHandle[T]{w}
}

// Registry holds the fleet of active workers and fans lifecycle and
// aggregation operations out across all of them.
type Registry struct {
	workers []WorkerHandle
	logger  *logging.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{logger: logger}
}

// Add registers a worker with the fleet.
func (r *Registry) Add(h WorkerHandle) {
	r.workers = append(r.workers, h)
}

// LoadConfigs calls LoadConfig on every registered worker, passing it
// the sub-tree at cfg.Sub("workers").Sub(name) for that worker's name.
func (r *Registry) LoadConfigs(cfg *config.Tree) {
	workers := cfg.Sub("workers")
	for _, w := range r.workers {
		w.LoadConfig(workers.Sub(w.Name()))
	}
}

// Workers returns the registered worker handles.
func (r *Registry) Workers() []WorkerHandle {
	return r.workers
}

// StartRun launches every worker's thread then arms every worker.
func (r *Registry) StartRun() {
	r.StartThreads()
	r.StartWorkers()
}

// StopRun disarms every worker then joins every worker's thread.
func (r *Registry) StopRun() {
	r.StopWorkers()
	r.StopThreads()
}

// StartWorkers arms every worker for acquisition.
func (r *Registry) StartWorkers() {
	r.logger.Info("starting workers")
	for _, w := range r.workers {
		w.StartWorker()
	}
}

// StartThreads launches every worker's acquisition goroutine.
func (r *Registry) StartThreads() {
	r.logger.Info("launching worker threads")
	for _, w := range r.workers {
		w.StartThread()
	}
}

// StopWorkers disarms every worker.
func (r *Registry) StopWorkers() {
	r.logger.Info("stopping workers")
	for _, w := range r.workers {
		w.StopWorker()
	}
}

// StopThreads stops and joins every worker's acquisition goroutine.
func (r *Registry) StopThreads() {
	r.logger.Info("stopping worker threads")
	for _, w := range r.workers {
		w.StopThread()
	}
}

// AllWorkersHaveEvent reports whether every registered worker currently
// has at least one queued event.
func (r *Registry) AllWorkersHaveEvent() bool {
	for _, w := range r.workers {
		if !w.HasEvent() {
			return false
		}
	}
	return true
}

// AnyWorkersHaveEvent reports whether at least one worker has a queued
// event.
func (r *Registry) AnyWorkersHaveEvent() bool {
	for _, w := range r.workers {
		if w.HasEvent() {
			return true
		}
	}
	return false
}

// AnyWorkersHaveMultiEvent reports whether any worker's queue has more
// than one pending event, signaling the fleet is falling behind the
// trigger rate.
func (r *Registry) AnyWorkersHaveMultiEvent() bool {
	for _, w := range r.workers {
		if w.NumEvents() > 1 {
			return true
		}
	}
	return false
}

// GetEventData pops one event from every worker into bundle, in
// registration order.
func (r *Registry) GetEventData(bundle *Bundle) {
	for _, w := range r.workers {
		w.PopInto(bundle)
	}
}

// FlushEventData drops any stale queued events across the fleet. Used
// after a trigger round to discard events a slow worker produced after
// the bundle for that round was already collected.
func (r *Registry) FlushEventData() {
	for _, w := range r.workers {
		w.FlushEvents()
	}
}

// FreeList stops every worker's thread and clears the registry.
func (r *Registry) FreeList() {
	r.logger.Info("freeing workers")
	r.StopThreads()
	r.workers = nil
}
