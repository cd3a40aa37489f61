package threadmap

// ThreadMap associates one value of type V with every goroutine that
// touches it, and lets any goroutine fold, snapshot or drain the values of
// all goroutines. It replaces goroutine-local state when the program also
// needs a cross-goroutine view of it, e.g. per-worker counters that are
// aggregated into a metric.
//
// Locking:
//   - One reader/writer lock guards the map and every value in it.
//   - Per-goroutine operations (Update, View, Get, Set) on an existing
//     entry take only the read lock, so goroutines never contend with
//     each other on the fast path.
//   - Whole-map operations (Range, Probe, Drain) take the write lock and
//     observe a single point in time across all entries.
//
// Use ThreadMapX when whole-map operations run often enough that the
// exclusive lock stalls per-goroutine work.
//
// Notes:
//   - The zero value is ready to use and initializes entries to the zero
//     value of V.
//   - Closures passed to any method must not call back into the same map.
//   - A panic inside a closure poisons the map: later whole-map operations
//     return a *LockError and later per-goroutine operations panic with one.
//   - ThreadMap must not be copied after first use.
type ThreadMap[V any] struct {
	_     noCopy
	lock  rwLock
	state map[ID]*V
	settings[V]
}

// New creates a ThreadMap that calls init to build the first value of each
// goroutine. A nil init uses the zero value of V.
//
// Parameters:
//   - init: value initializer, called once per goroutine per drain
//   - options: WithCapacity, WithLogger, WithClone
func New[V any](init func() V, options ...func(*Config)) *ThreadMap[V] {
	m := &ThreadMap[V]{settings: newSettings(init, options)}
	m.state = m.newState()
	return m
}

// NewDefault creates a ThreadMap whose entries start at the zero value of V.
func NewDefault[V any](options ...func(*Config)) *ThreadMap[V] {
	return New[V](nil, options...)
}

func (m *ThreadMap[V]) newState() map[ID]*V {
	return make(map[ID]*V, m.capacity)
}

func (m *ThreadMap[V]) poisoner(op string) func() {
	return func() {
		m.lock.poison()
		m.log().Warn("lock poisoned", "op", op, "lock", MapLock)
	}
}

// Update calls f with exclusive access to the calling goroutine's value,
// creating the value first if the goroutine has none.
func (m *ThreadMap[V]) Update(f func(v *V)) {
	m.update("Update", f)
}

// View calls f with the calling goroutine's value.
func (m *ThreadMap[V]) View(f func(v V)) {
	m.update("View", func(v *V) { f(*v) })
}

// Get returns a copy of the calling goroutine's value.
func (m *ThreadMap[V]) Get() (value V) {
	m.update("Get", func(v *V) { value = m.copyValue(*v) })
	return value
}

// Set replaces the calling goroutine's value.
func (m *ThreadMap[V]) Set(value V) {
	m.update("Set", func(v *V) { *v = value })
}

func (m *ThreadMap[V]) update(op string, f func(v *V)) {
	id := CurrentID()
	m.lock.RLock()
	if m.lock.Poisoned() {
		m.lock.RUnlock()
		panic(&LockError{Op: op, Lock: MapLock})
	}
	v := m.state[id]
	if v == nil {
		m.lock.RUnlock()
		m.insert(op, id, f)
		return
	}
	defer m.lock.RUnlock()
	// Only the owning goroutine reaches v under the read lock; every
	// other path to v holds the write lock.
	guarded(m.poisoner(op), func() { f(v) })
}

//go:noinline
func (m *ThreadMap[V]) insert(op string, id ID, f func(v *V)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.lock.Poisoned() {
		panic(&LockError{Op: op, Lock: MapLock})
	}
	v := new(V)
	guarded(m.poisoner(op), func() {
		*v = m.newValue()
		f(v)
	})
	if m.state == nil {
		m.state = m.newState()
	}
	m.state[id] = v
	m.log().Trace("entry created", "id", id)
}

// Range calls yield for every entry until yield returns false. The write
// lock is held for the whole traversal, so yield may read or modify any
// entry while no goroutine is inside a per-goroutine operation.
func (m *ThreadMap[V]) Range(yield func(id ID, v *V) bool) error {
	return m.rangeEntries("Range", yield)
}

func (m *ThreadMap[V]) rangeEntries(op string, yield func(id ID, v *V) bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.lock.Poisoned() {
		return &LockError{Op: op, Lock: MapLock}
	}
	guarded(m.poisoner(op), func() {
		for id, v := range m.state {
			if !yield(id, v) {
				return
			}
		}
	})
	return nil
}

// Probe returns a copy of every entry without modifying the map.
func (m *ThreadMap[V]) Probe() (map[ID]V, error) {
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

// Drain removes every entry and returns their values. Afterwards the map
// behaves as newly constructed: the next access from any goroutine calls
// the initializer again.
func (m *ThreadMap[V]) Drain() (map[ID]V, error) {
	m.lock.Lock()
	if m.lock.Poisoned() {
		m.lock.Unlock()
		return nil, &LockError{Op: "Drain", Lock: MapLock}
	}
	state := m.state
	m.state = m.newState()
	m.lock.Unlock()

	out := make(map[ID]V, len(state))
	for id, v := range state {
		out[id] = *v
	}
	m.log().Debug("drained", "entries", len(out))
	return out, nil
}
