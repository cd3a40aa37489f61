//go:build race

package opt

// Race_ reports whether the binary was built with the race detector, which
// slows synchronization enough that stress loops scale down.
const Race_ = true
