package threadmap

import "github.com/llxisdsh/threadmap/internal/opt"

// ThreadMapX has the same contract as ThreadMap but gives every entry its
// own lock. The map-wide lock only guards which goroutines have entries.
//
// Locking:
//   - Per-goroutine operations take the map read lock plus the entry lock.
//   - Range and Probe take the map read lock and lock entries one at a
//     time, so a goroutine can keep updating its own entry while another
//     goroutine folds over the map; they meet only on that single entry.
//   - Drain takes the map write lock.
//
// The price is one extra uncontended lock per per-goroutine operation, and
// a traversal that is a union of per-entry snapshots rather than a single
// point in time: a Range racing with a burst of updates may see some
// entries before the burst and others after it.
//
// Notes:
//   - The zero value is ready to use.
//   - A panic inside a closure poisons the lock that was held while it
//     ran: the entry lock for per-goroutine operations on an existing
//     entry and for traversals, the map lock when the entry was being
//     created.
//   - ThreadMapX must not be copied after first use.
type ThreadMapX[V any] struct {
	_     noCopy
	lock  rwLock
	state map[ID]*cell[V]
	settings[V]
}

// cell is one entry of a ThreadMapX.
type cell[V any] struct {
	lock  mutex
	value V
	// keeps the locks of neighbouring cells on separate cache lines
	_ [opt.CacheLineSize_]byte
}

// NewX creates a ThreadMapX that calls init to build the first value of each
// goroutine. A nil init uses the zero value of V.
func NewX[V any](init func() V, options ...func(*Config)) *ThreadMapX[V] {
	m := &ThreadMapX[V]{settings: newSettings(init, options)}
	m.state = m.newState()
	return m
}

// NewDefaultX creates a ThreadMapX whose entries start at the zero value of V.
func NewDefaultX[V any](options ...func(*Config)) *ThreadMapX[V] {
	return NewX[V](nil, options...)
}

func (m *ThreadMapX[V]) newState() map[ID]*cell[V] {
	return make(map[ID]*cell[V], m.capacity)
}

func (m *ThreadMapX[V]) poisoner(op string) func() {
	return func() {
		m.lock.poison()
		m.log().Warn("lock poisoned", "op", op, "lock", MapLock)
	}
}

func (m *ThreadMapX[V]) cellPoisoner(op string, id ID, c *cell[V]) func() {
	return func() {
		c.lock.poison()
		m.log().Warn("lock poisoned", "op", op, "lock", EntryLock, "id", id)
	}
}

// Update calls f with exclusive access to the calling goroutine's value,
// creating the value first if the goroutine has none.
func (m *ThreadMapX[V]) Update(f func(v *V)) {
	m.update("Update", f)
}

// View calls f with the calling goroutine's value.
func (m *ThreadMapX[V]) View(f func(v V)) {
	m.update("View", func(v *V) { f(*v) })
}

// Get returns a copy of the calling goroutine's value.
func (m *ThreadMapX[V]) Get() (value V) {
	m.update("Get", func(v *V) { value = m.copyValue(*v) })
	return value
}

// Set replaces the calling goroutine's value.
func (m *ThreadMapX[V]) Set(value V) {
	m.update("Set", func(v *V) { *v = value })
}

func (m *ThreadMapX[V]) update(op string, f func(v *V)) {
	id := CurrentID()
	m.lock.RLock()
	if m.lock.Poisoned() {
		m.lock.RUnlock()
		panic(&LockError{Op: op, Lock: MapLock})
	}
	c := m.state[id]
	if c == nil {
		m.lock.RUnlock()
		m.insert(op, id, f)
		return
	}
	defer m.lock.RUnlock()

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.lock.Poisoned() {
		panic(&LockError{Op: op, Lock: EntryLock})
	}
	guarded(m.cellPoisoner(op, id, c), func() { f(&c.value) })
}

//go:noinline
func (m *ThreadMapX[V]) insert(op string, id ID, f func(v *V)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.lock.Poisoned() {
		panic(&LockError{Op: op, Lock: MapLock})
	}
	c := &cell[V]{}
	guarded(m.poisoner(op), func() {
		c.value = m.newValue()
		f(&c.value)
	})
	if m.state == nil {
		m.state = m.newState()
	}
	m.state[id] = c
	m.log().Trace("entry created", "id", id)
}

// Range calls yield for every entry until yield returns false. Each entry
// is locked only while yield runs on it.
func (m *ThreadMapX[V]) Range(yield func(id ID, v *V) bool) error {
	return m.rangeEntries("Range", yield)
}

func (m *ThreadMapX[V]) rangeEntries(op string, yield func(id ID, v *V) bool) error {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.lock.Poisoned() {
		return &LockError{Op: op, Lock: MapLock}
	}
	for id, c := range m.state {
		more, err := m.visit(op, id, c, yield)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

func (m *ThreadMapX[V]) visit(
	op string,
	id ID,
	c *cell[V],
	yield func(id ID, v *V) bool,
) (more bool, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.lock.Poisoned() {
		return false, &LockError{Op: op, Lock: EntryLock}
	}
	guarded(m.cellPoisoner(op, id, c), func() { more = yield(id, &c.value) })
	return more, nil
}

// Probe returns a copy of every entry without modifying the map.
func (m *ThreadMapX[V]) Probe() (map[ID]V, error) {
	out := make(map[ID]V)
	err := m.rangeEntries("Probe", func(id ID, v *V) bool {
		out[id] = m.copyValue(*v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Drain removes every entry and returns their values. The map is reset even
// when an entry turns out to be poisoned; in that case the values are lost
// and a *LockError is returned.
func (m *ThreadMapX[V]) Drain() (map[ID]V, error) {
	m.lock.Lock()
	if m.lock.Poisoned() {
		m.lock.Unlock()
		return nil, &LockError{Op: "Drain", Lock: MapLock}
	}
	state := m.state
	m.state = m.newState()
	m.lock.Unlock()

	// Every goroutine that could hold an entry lock also held the map read
	// lock, so the detached cells are no longer shared.
	out := make(map[ID]V, len(state))
	for id, c := range state {
		if c.lock.Poisoned() {
			return nil, &LockError{Op: "Drain", Lock: EntryLock}
		}
		out[id] = c.value
	}
	m.log().Debug("drained", "entries", len(out))
	return out, nil
}
