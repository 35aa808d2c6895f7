// Package interfaces provides internal interface definitions for daqcore.
// These are separate from the public interfaces to avoid circular imports
// between the root package and internal packages.
package interfaces

// Logger is the subset of logging behavior every internal package needs.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer is implemented by anything that wants to observe worker and
// writer activity without depending on the root package's Metrics type.
// Implementations must be thread-safe: methods are called from worker
// acquisition goroutines and the writer's send loop.
type Observer interface {
	ObserveEvent(device string, latencyNs uint64, success bool)
	ObserveDrop(device string)
	ObserveQueueDepth(device string, depth uint32)
}
