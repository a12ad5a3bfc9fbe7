// Package spatiallock provides a striped lock keyed by a 3D chunk
// coordinate, so unrelated chunks don't serialize behind a single
// map-wide mutex on hot paths (loading-set membership, modifier overlay
// application).
package spatiallock

import "sync"

const (
	primeX = 73856093
	primeY = 19349663
	primeZ = 83492791
)

// Striped is a fixed-size array of mutexes indexed by a hash of chunk
// coordinates. It does not prevent two distinct coordinates from
// colliding on the same stripe; callers must tolerate false contention,
// never false sharing of correctness.
type Striped struct {
	locks []sync.Mutex
}

// New creates a striped lock with the given number of stripes. stripes is
// rounded up to the next power of two for cheap masking.
func New(stripes int) *Striped {
	if stripes <= 0 {
		stripes = 64
	}
	n := 1
	for n < stripes {
		n <<= 1
	}
	return &Striped{locks: make([]sync.Mutex, n)}
}

func hashKey(x, y, z, lod int32) uint64 {
	h := uint64(x)*primeX ^ uint64(y)*primeY ^ uint64(z)*primeZ
	h ^= uint64(lod) * 2654435761
	return h
}

func (s *Striped) index(x, y, z, lod int32) int {
	return int(hashKey(x, y, z, lod) & uint64(len(s.locks)-1))
}

// Lock locks the stripe owning (x,y,z,lod).
func (s *Striped) Lock(x, y, z, lod int32) {
	s.locks[s.index(x, y, z, lod)].Lock()
}

// Unlock unlocks the stripe owning (x,y,z,lod).
func (s *Striped) Unlock(x, y, z, lod int32) {
	s.locks[s.index(x, y, z, lod)].Unlock()
}

// With runs fn while holding the stripe for (x,y,z,lod).
func (s *Striped) With(x, y, z, lod int32, fn func()) {
	s.Lock(x, y, z, lod)
	defer s.Unlock(x, y, z, lod)
	fn()
}
