package threadmap

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Configuration
// ============================================================================

// Config defines configurable options shared by ThreadMap, ThreadMapX and
// Group. It is populated through the With* option functions.
type Config struct {
	// capacity is the expected number of goroutines touching the map.
	// It pre-sizes the internal map on construction and after every Drain.
	// If zero or negative, the Go runtime default is used.
	capacity int

	// logger receives structured events: poisoning at Warn level,
	// drains at Debug level and entry creation at Trace level.
	// If nil, events are discarded.
	logger hclog.Logger

	// clone holds a func(V) V duplicating values for Get and Probe.
	// It is stored untyped because Config is not generic; the constructor
	// checks its type against the map's value type.
	clone any
}

// WithCapacity pre-sizes the map for n goroutines. If n is zero or negative,
// the value is ignored.
func WithCapacity(n int) func(*Config) {
	return func(c *Config) {
		c.capacity = n
	}
}

// WithLogger sets the structured logger used for lock poisoning and
// lifecycle events.
func WithLogger(logger hclog.Logger) func(*Config) {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithClone sets the function used to duplicate values in Get and Probe.
// Without it values are copied by assignment, which is a shallow copy:
// slices, maps and pointers inside V stay shared with the live entry.
//
// Usage:
//
//	m := threadmap.New(newHistogram, threadmap.WithClone((*histogram).Clone))
//
// The type parameter must match the map's value type; a mismatch panics
// when the map is constructed.
func WithClone[V any](clone func(V) V) func(*Config) {
	return func(c *Config) {
		if clone != nil {
			c.clone = clone
		}
	}
}

// settings is the per-map view of Config plus the value initializer.
// The zero value is valid: zero-value initializer, shallow copies, no logging.
type settings[V any] struct {
	init     func() V
	clone    func(V) V
	logger   hclog.Logger
	capacity int
}

func newSettings[V any](init func() V, options []func(*Config)) settings[V] {
	var cfg Config
	for _, o := range options {
		o(&cfg)
	}
	s := settings[V]{
		init:     init,
		logger:   cfg.logger,
		capacity: max(cfg.capacity, 0),
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	if cfg.clone != nil {
		clone, ok := cfg.clone.(func(V) V)
		if !ok {
			panic(fmt.Sprintf("threadmap: WithClone: %T does not match value type %T",
				cfg.clone, *new(V)))
		}
		s.clone = clone
	}
	return s
}

func (s *settings[V]) newValue() V {
	if s.init == nil {
		return *new(V)
	}
	return s.init()
}

func (s *settings[V]) copyValue(v V) V {
	if s.clone == nil {
		return v
	}
	return s.clone(v)
}

func (s *settings[V]) log() hclog.Logger {
	if s.logger == nil {
		return hclog.NewNullLogger()
	}
	return s.logger
}
