package watchdog

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNotSilentAfterPet(t *testing.T) {
	w := New("radio", 50*time.Millisecond)
	if w.Silent() {
		t.Fatal("expected not silent immediately after construction")
	}
	w.Pet()
	if w.Silent() {
		t.Fatal("expected not silent immediately after Pet")
	}
}

func TestSilentAfterTimeout(t *testing.T) {
	w := New("uart", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	if !w.Silent() {
		t.Fatal("expected silent after timeout elapses with no Pet")
	}
}

func TestRunFiresOnTimeout(t *testing.T) {
	w := New("radio", 20*time.Millisecond)
	var fired atomic.Int32

	stop := make(chan struct{})
	go w.Run(5*time.Millisecond, func(name string) {
		fired.Add(1)
	}, stop)

	time.Sleep(100 * time.Millisecond)
	close(stop)

	if fired.Load() == 0 {
		t.Fatal("expected onTimeout to fire at least once")
	}
}

func TestRunDoesNotFireWhenPetRegularly(t *testing.T) {
	w := New("radio", 30*time.Millisecond)
	var fired atomic.Int32

	stop := make(chan struct{})
	go w.Run(5*time.Millisecond, func(name string) {
		fired.Add(1)
	}, stop)

	done := time.After(100 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			w.Pet()
		case <-done:
			break loop
		}
	}
	close(stop)

	if fired.Load() != 0 {
		t.Fatalf("expected no timeout fires while regularly pet, got %d", fired.Load())
	}
}
