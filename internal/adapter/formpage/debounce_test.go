package formpage

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		d.Schedule("cardNumber", func() { fired.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("burst fired %d times, want 1", got)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	var a, b atomic.Int32
	d.Schedule("cardNumber", func() { a.Add(1) })
	d.Schedule("cvv", func() { b.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("independent keys fired a=%d b=%d, want 1 and 1", a.Load(), b.Load())
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	d.Schedule("cvv", func() { fired.Add(1) })
	d.Cancel("cvv")

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled task still fired")
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Int32
	d.Schedule("cvv", func() { fired.Add(1) })
	d.Stop()
	d.Schedule("cvv", func() { fired.Add(1) }) // ignored after stop

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("task fired after stop")
	}
}
