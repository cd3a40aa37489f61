package threadmap

import "errors"

// ErrPoisoned reports that an internal lock was left poisoned by a panic in
// a previous holder. Every *LockError matches it with errors.Is.
var ErrPoisoned = errors.New("threadmap: lock poisoned")

// LockKind names the lock that was found poisoned.
type LockKind uint8

const (
	// MapLock is the lock guarding the whole map.
	MapLock LockKind = iota
	// EntryLock is the lock of a single entry (ThreadMapX only).
	EntryLock
)

func (k LockKind) String() string {
	switch k {
	case MapLock:
		return "map"
	case EntryLock:
		return "entry"
	default:
		return "unknown"
	}
}

// LockError is the only error kind of this package.
//
// Whole-map operations (Range, Probe, Drain and the Fold helpers) return it.
// Per-goroutine operations (Update, View, Get, Set) panic with a *LockError
// instead: there is no accumulator to hand back, and continuing with a
// possibly torn entry is unsafe.
type LockError struct {
	Op   string   // operation that found the poisoned lock
	Lock LockKind // which lock was poisoned
}

func (e *LockError) Error() string {
	return "threadmap: " + e.Op + ": poisoned " + e.Lock.String() + " lock"
}

// Is reports whether target is ErrPoisoned.
func (e *LockError) Is(target error) bool {
	return target == ErrPoisoned
}
