package threadmap

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

func TestThreadMap_RangeExcludesUpdates(t *testing.T) {
	m := New(func() int { return 0 })

	ready := make(chan struct{})
	update := make(chan struct{})
	updated := make(chan struct{})
	go func() {
		m.Set(1)
		close(ready)
		<-update
		m.Update(func(v *int) { *v++ })
		close(updated)
	}()
	<-ready

	inRange := make(chan struct{})
	release := make(chan struct{})
	ranged := make(chan error)
	go func() {
		ranged <- m.Range(func(ID, *int) bool {
			close(inRange)
			<-release
			return false
		})
	}()
	<-inRange

	close(update)
	select {
	case <-updated:
		t.Fatal("Update ran while Range held the write lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-ranged; err != nil {
		t.Fatalf("Range: %v", err)
	}
	<-updated
}

func TestThreadMap_PanicOnExistingEntryPoisonsMap(t *testing.T) {
	m := New(func() int { return 0 })
	m.Set(1)
	if r := catchPanic(func() {
		m.Update(func(v *int) {
			*v = 2
			panic("half done")
		})
	}); r != "half done" {
		t.Fatalf("recovered %v", r)
	}

	var lerr *LockError
	if _, err := m.Drain(); !errors.As(err, &lerr) || lerr.Lock != MapLock || lerr.Op != "Drain" {
		t.Fatalf("Drain err=%v", err)
	}
	r := catchPanic(func() { m.View(func(int) {}) })
	if e, ok := r.(*LockError); !ok || e.Op != "View" {
		t.Fatalf("View panicked with %v", r)
	}
}

func TestThreadMap_CloneIsolatesProbe(t *testing.T) {
	m := New(func() []int { return []int{0} },
		WithClone(func(s []int) []int { return append([]int(nil), s...) }))
	m.Set([]int{1, 2, 3})

	snap, err := m.Probe()
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	got := m.Get()
	got[0] = 100
	snap[CurrentID()][1] = 200

	m.View(func(s []int) {
		if s[0] != 1 || s[1] != 2 {
			t.Fatalf("live value changed through a copy: %v", s)
		}
	})
}

func TestThreadMap_CloneTypeMismatch(t *testing.T) {
	r := catchPanic(func() {
		New(func() int { return 0 }, WithClone(func(s string) string { return s }))
	})
	if msg, ok := r.(string); !ok || !strings.Contains(msg, "WithClone") {
		t.Fatalf("recovered %v, want WithClone panic", r)
	}
}

func TestThreadMap_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "threadmap",
		Output: &buf,
		Level:  hclog.Trace,
	})
	m := New(func() int { return 0 }, WithLogger(logger))
	m.Set(1)
	if _, err := m.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	catchPanic(func() { m.Update(func(*int) { panic("boom") }) })

	out := buf.String()
	for _, want := range []string{"entry created", "drained", "entries=1", "lock poisoned", "op=Update"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}
