package threadmap

import "runtime"

// ID identifies a goroutine. Goroutine ids are unique for the lifetime of
// the process and are never handed to a second goroutine, which makes them
// suitable as entry keys. Only equality and hashing are meaningful; no
// ordering between ids should be assumed.
type ID uint64

// CurrentID returns the ID of the calling goroutine.
//
// The id is read from the header line of the goroutine's own stack trace
// ("goroutine 123 [running]:"). CurrentID panics if that line cannot be
// parsed, which would indicate an incompatible runtime.
func CurrentID() ID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	id := parseID(buf[:n])
	if id == 0 {
		panic("threadmap: unable to determine goroutine id")
	}
	return id
}

// parseID extracts the goroutine id from a stack trace header.
// It returns 0 if buf does not start with "goroutine <digits>".
func parseID(buf []byte) ID {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id ID
	digits := 0
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + ID(c-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	return id
}
