package threadmap

// Store is the operation set shared by ThreadMap and ThreadMapX. Code
// written against Store can switch between the two locking strategies
// without changing call sites.
type Store[V any] interface {
	// Update calls f with exclusive access to the calling goroutine's
	// value, creating it with the initializer if absent.
	Update(f func(v *V))
	// View calls f with the calling goroutine's value.
	View(f func(v V))
	// Get returns a copy of the calling goroutine's value.
	Get() V
	// Set replaces the calling goroutine's value.
	Set(value V)
	// Range calls yield for every entry until yield returns false.
	Range(yield func(id ID, v *V) bool) error
	// Probe returns a copy of every entry.
	Probe() (map[ID]V, error)
	// Drain removes and returns every entry.
	Drain() (map[ID]V, error)
}

var (
	_ Store[int] = (*ThreadMap[int])(nil)
	_ Store[int] = (*ThreadMapX[int])(nil)
)

// ApplyMut calls f with exclusive access to the calling goroutine's value
// and returns its result.
func ApplyMut[V, W any](s Store[V], f func(v *V) W) (result W) {
	s.Update(func(v *V) { result = f(v) })
	return result
}

// Apply calls f with the calling goroutine's value and returns its result.
func Apply[V, W any](s Store[V], f func(v V) W) (result W) {
	s.View(func(v V) { result = f(v) })
	return result
}

// Fold combines every entry into an accumulator starting at seed. Entries
// are visited exactly once, in no particular order.
func Fold[V, W any](s Store[V], seed W, f func(acc W, id ID, v V) W) (W, error) {
	acc := seed
	err := s.Range(func(id ID, v *V) bool {
		acc = f(acc, id, *v)
		return true
	})
	if err != nil {
		return *new(W), err
	}
	return acc, nil
}

// FoldValues is Fold without the goroutine ids.
func FoldValues[V, W any](s Store[V], seed W, f func(acc W, v V) W) (W, error) {
	return Fold(s, seed, func(acc W, _ ID, v V) W {
		return f(acc, v)
	})
}

// Len returns the number of entries.
func Len[V any](s Store[V]) (int, error) {
	return FoldValues(s, 0, func(n int, _ V) int { return n + 1 })
}
