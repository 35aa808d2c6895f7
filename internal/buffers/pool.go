// Package buffers pools large byte buffers, in size buckets from 128 KiB
// to 2 MiB, used when serializing bundle payloads to the writer's wire
// format. A request above the largest bucket, such as the writer's
// estimate for a bundle holding a Sis3302 or Sis3316 event (100000
// samples per channel, 8 or 16 channels), gets a one-off allocation.
package buffers

import "sync"

// Buffer size thresholds.
const (
	size128k = 128 * 1024
	size256k = 256 * 1024
	size512k = 512 * 1024
	size2m   = 2 * 1024 * 1024
)

var globalPool = struct {
	pool128k sync.Pool
	pool256k sync.Pool
	pool512k sync.Pool
	pool2m   sync.Pool
}{
	pool128k: sync.Pool{New: func() any { b := make([]byte, size128k); return &b }},
	pool256k: sync.Pool{New: func() any { b := make([]byte, size256k); return &b }},
	pool512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
	pool2m:   sync.Pool{New: func() any { b := make([]byte, size2m); return &b }},
}

// Get returns a pooled buffer with length 0 and capacity at least size.
// Callers append into it and must call Put when done. Requests larger
// than the biggest bucket get a one-off allocation that is not pooled.
func Get(size int) []byte {
	switch {
	case size <= size128k:
		return (*globalPool.pool128k.Get().(*[]byte))[:0]
	case size <= size256k:
		return (*globalPool.pool256k.Get().(*[]byte))[:0]
	case size <= size512k:
		return (*globalPool.pool512k.Get().(*[]byte))[:0]
	case size <= size2m:
		return (*globalPool.pool2m.Get().(*[]byte))[:0]
	default:
		return make([]byte, 0, size)
	}
}

// Put returns a buffer obtained from Get back to its bucket, by
// capacity. Buffers with a non-standard capacity (one-off allocations
// from an oversized Get, or a reslice that shrank capacity) are
// dropped instead of returned.
func Put(buf []byte) {
	switch cap(buf) {
	case size128k:
		b := buf[:size128k]
		globalPool.pool128k.Put(&b)
	case size256k:
		b := buf[:size256k]
		globalPool.pool256k.Put(&b)
	case size512k:
		b := buf[:size512k]
		globalPool.pool512k.Put(&b)
	case size2m:
		b := buf[:size2m]
		globalPool.pool2m.Put(&b)
	}
}
