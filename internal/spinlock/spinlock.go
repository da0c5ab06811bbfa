// Package spinlock provides a tiny spin-wait mutex for short critical
// sections where parking a goroutine would cost more than a few spins.
// It is grounded in the retry/backoff idiom used by the teacher's
// optimistic-read loop (pkg/slotcache/cache.go) applied instead to the
// HLL register write path (spec §5, "spin lock for the HLL register
// write").
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// T is a spin lock. The zero value is unlocked and ready to use.
type T struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired. Critical sections guarded by T
// must be short: this never parks the calling goroutine.
func (s *T) Lock() {
	spins := 0

	for !s.held.CompareAndSwap(false, true) {
		spins++
		if spins > 64 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// Unlock releases the lock. Unlocking an unlocked T is a programmer
// error and left undetected, matching the teacher's raw-mutex idiom.
func (s *T) Unlock() {
	s.held.Store(false)
}
