package threadmap

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestThreadMapX_RangeDoesNotBlockOtherEntries(t *testing.T) {
	m := NewX(func() int { return 0 })

	// z owns an entry it will update while a traversal is in flight.
	zReady := make(chan struct{})
	zGo := make(chan struct{})
	zDone := make(chan struct{})
	go func() {
		m.Set(0)
		close(zReady)
		<-zGo
		m.Update(func(v *int) { *v++ })
		close(zDone)
	}()
	<-zReady

	// y holds its own entry lock until released.
	held := make(chan struct{})
	hold := make(chan struct{})
	go func() {
		m.Set(0)
		m.Update(func(*int) {
			close(held)
			<-hold
		})
	}()
	<-held

	folded := make(chan int)
	go func() {
		n, err := Len[int](m)
		if err != nil {
			t.Errorf("Len: %v", err)
		}
		folded <- n
	}()
	time.Sleep(10 * time.Millisecond)

	close(zGo)
	select {
	case <-zDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Update of another entry blocked behind the traversal")
	}
	select {
	case <-folded:
		t.Fatal("traversal finished while an entry was held")
	default:
	}

	close(hold)
	if n := <-folded; n != 2 {
		t.Fatalf("Len=%d, want 2", n)
	}
}

func TestThreadMapX_PanicOnExistingEntryPoisonsOnlyThatEntry(t *testing.T) {
	m := NewX(func() int { return 0 })
	m.Set(1)
	if r := catchPanic(func() {
		m.Update(func(*int) { panic("boom") })
	}); r != "boom" {
		t.Fatalf("recovered %v", r)
	}

	// Other goroutines keep working.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Set(5)
		if got := m.Get(); got != 5 {
			t.Errorf("Get=%d, want 5", got)
		}
	}()
	wg.Wait()

	// The owner fails fast on its poisoned entry.
	r := catchPanic(func() { m.Get() })
	if e, ok := r.(*LockError); !ok || e.Lock != EntryLock {
		t.Fatalf("Get panicked with %v, want entry LockError", r)
	}

	var lerr *LockError
	if _, err := m.Probe(); !errors.As(err, &lerr) || lerr.Lock != EntryLock {
		t.Fatalf("Probe err=%v, want entry LockError", err)
	}
	if _, err := m.Drain(); !errors.As(err, &lerr) || lerr.Lock != EntryLock || lerr.Op != "Drain" {
		t.Fatalf("Drain err=%v, want entry LockError", err)
	}

	// Drain reset the map even though it failed.
	if got := m.Get(); got != 0 {
		t.Fatalf("Get after drain=%d, want 0", got)
	}
	if n, err := Len[int](m); err != nil || n != 1 {
		t.Fatalf("Len=%d, %v", n, err)
	}
}

func TestThreadMapX_PanicInRangePoisonsEntry(t *testing.T) {
	m := NewX(func() int { return 0 })
	m.Set(1)
	if r := catchPanic(func() {
		_ = m.Range(func(ID, *int) bool { panic("fold") })
	}); r != "fold" {
		t.Fatalf("recovered %v", r)
	}
	if _, err := m.Probe(); !errors.Is(err, ErrPoisoned) {
		t.Fatalf("Probe err=%v", err)
	}
}
