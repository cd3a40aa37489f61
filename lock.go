package threadmap

import (
	"sync"
	"sync/atomic"
)

// rwLock is a reader/writer lock that remembers whether a holder panicked.
//
// Properties:
//   - Blocking (sync.RWMutex), writer-preferred like the runtime's.
//   - Poisoning is sticky: once set it is never cleared.
//   - Acquiring a poisoned lock still succeeds; callers check Poisoned
//     right after acquisition and decide whether to fail.
type rwLock struct {
	mu       sync.RWMutex
	poisoned atomic.Bool
}

func (l *rwLock) Lock()    { l.mu.Lock() }
func (l *rwLock) Unlock()  { l.mu.Unlock() }
func (l *rwLock) RLock()   { l.mu.RLock() }
func (l *rwLock) RUnlock() { l.mu.RUnlock() }

// Poisoned reports whether a holder of the lock has panicked.
func (l *rwLock) Poisoned() bool { return l.poisoned.Load() }

func (l *rwLock) poison() { l.poisoned.Store(true) }

// mutex is the exclusive counterpart of rwLock.
type mutex struct {
	mu       sync.Mutex
	poisoned atomic.Bool
}

func (l *mutex) Lock()   { l.mu.Lock() }
func (l *mutex) Unlock() { l.mu.Unlock() }

// Poisoned reports whether a holder of the lock has panicked.
func (l *mutex) Poisoned() bool { return l.poisoned.Load() }

func (l *mutex) poison() { l.poisoned.Store(true) }

// guarded calls f and runs poison if f does not return normally, either
// because it panicked or because it called runtime.Goexit. The panic is
// not recovered.
//
// Callers must register the deferred unlock before calling guarded so the
// lock is marked before it is released.
func guarded(poison func(), f func()) {
	done := false
	defer func() {
		if !done {
			poison()
		}
	}()
	f()
	done = true
}

// noCopy may be added to structs which must not be copied
// after the first use. See https://golang.org/issues/8005.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
