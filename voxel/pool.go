package voxel

import "sync"

// slabPool is a process-wide, size-keyed free list of byte slabs. Voxel
// workloads allocate and free many equally-sized buffers (one expanded
// channel array per chunk dimension/depth combination); pooling them
// amortizes the churn and keeps RSS predictable, generalizing the
// reference engine's GPU atlas slot free-list to host memory.
type slabPool struct {
	mu   sync.Mutex
	free map[int][][]byte
}

var globalPool = &slabPool{free: make(map[int][][]byte)}

// Alloc returns a zeroed byte slice of the given size, reusing a freed
// slab of the same size if one is available.
func Alloc(size int) []byte {
	globalPool.mu.Lock()
	list := globalPool.free[size]
	if n := len(list); n > 0 {
		buf := list[n-1]
		globalPool.free[size] = list[:n-1]
		globalPool.mu.Unlock()
		for i := range buf {
			buf[i] = 0
		}
		return buf
	}
	globalPool.mu.Unlock()
	return make([]byte, size)
}

// Free returns a slab to the pool for reuse by a future Alloc of the same
// size. The caller must not use buf afterward.
func Free(buf []byte) {
	if buf == nil {
		return
	}
	size := len(buf)
	globalPool.mu.Lock()
	globalPool.free[size] = append(globalPool.free[size], buf)
	globalPool.mu.Unlock()
}

// ResetPool clears every free list. Intended for process teardown and
// test isolation.
func ResetPool() {
	globalPool.mu.Lock()
	globalPool.free = make(map[int][][]byte)
	globalPool.mu.Unlock()
}

// PoolStats reports slab counts per size, for diagnostics.
func PoolStats() map[int]int {
	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()
	out := make(map[int]int, len(globalPool.free))
	for size, list := range globalPool.free {
		out[size] = len(list)
	}
	return out
}
