package threadmap

import (
	"errors"

	"github.com/llxisdsh/pb"
)

// Group is a keyed family of ThreadMapX stores sharing one initializer and
// one configuration, e.g. one per metric name or per shard.
//
// Features:
//   - Lazy creation: the store for a key is created on first use.
//   - Lookups of existing keys never block.
//   - Probe and Drain cover every key.
//
// Notes:
//   - Register keys with Map before goroutines use them concurrently.
//     The key registry (pb.MapOf) reads its table without atomics on some
//     platforms, so goroutines creating new keys at the same time are
//     reported by the race detector. Updates of registered keys are clean.
//
// Usage:
//
//	var requests threadmap.Group[string, int]
//	for _, method := range []string{"GET", "PUT"} {
//		requests.Map(method)
//	}
//
//	// Workers
//	requests.Update("GET", func(n *int) { *n++ })
//
//	// Reporter
//	totals, err := requests.Drain()
type Group[K comparable, V any] struct {
	_       noCopy
	m       pb.MapOf[K, *ThreadMapX[V]]
	init    func() V
	options []func(*Config)
}

// NewGroup creates a Group whose stores are built with NewX(init, options...).
func NewGroup[K comparable, V any](init func() V, options ...func(*Config)) *Group[K, V] {
	return &Group[K, V]{init: init, options: options}
}

// Map returns the store for key, creating it if needed.
func (g *Group[K, V]) Map(key K) *ThreadMapX[V] {
	m, _ := g.m.LoadOrStoreFn(key, func() *ThreadMapX[V] {
		return NewX(g.init, g.options...)
	})
	return m
}

// Update calls f with exclusive access to the calling goroutine's value in
// the store for key.
func (g *Group[K, V]) Update(key K, f func(v *V)) {
	g.Map(key).Update(f)
}

// Len returns the number of keys.
func (g *Group[K, V]) Len() int {
	return g.m.Size()
}

// Probe returns a copy of every entry of every store. Like Drain, it skips
// stores that fail and reports them in the returned error.
func (g *Group[K, V]) Probe() (map[K]map[ID]V, error) {
	return g.collect(func(m *ThreadMapX[V]) (map[ID]V, error) {
		return m.Probe()
	})
}

// Drain drains every store. Keys stay registered with empty stores.
//
// A failing store does not stop the others: the result holds the values of
// every store that drained, and the error joins the *LockError of every
// store that did not.
func (g *Group[K, V]) Drain() (map[K]map[ID]V, error) {
	return g.collect(func(m *ThreadMapX[V]) (map[ID]V, error) {
		return m.Drain()
	})
}

func (g *Group[K, V]) collect(
	fn func(m *ThreadMapX[V]) (map[ID]V, error),
) (map[K]map[ID]V, error) {
	out := make(map[K]map[ID]V, g.m.Size())
	var errs []error
	g.m.Range(func(key K, m *ThreadMapX[V]) bool {
		if values, err := fn(m); err != nil {
			errs = append(errs, err)
		} else {
			out[key] = values
		}
		return true
	})
	return out, errors.Join(errs...)
}
