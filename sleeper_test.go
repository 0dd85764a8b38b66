package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"
)

func pressRecord(code KeyCode) []byte {
	return eventRecord(uint16(evdev.EV_KEY), uint16(code), 1)
}

func withPowerState(t *testing.T) string {
	t.Helper()
	old := powerStatePath
	powerStatePath = filepath.Join(t.TempDir(), "state")
	t.Cleanup(func() { powerStatePath = old })
	if err := os.WriteFile(powerStatePath, nil, 0644); err != nil {
		t.Fatal(err)
	}
	return powerStatePath
}

func TestWaitIntervalTick(t *testing.T) {
	const d = 250 * time.Millisecond
	sleeper := NewSleeper(d, newTestTimer(t))

	start := time.Now()
	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != IntervalTick {
		t.Fatalf("expected IntervalTick, got %v", wakeup)
	}
	if elapsed := time.Since(start); elapsed < d {
		t.Fatalf("woke after %s, before the %s interval", elapsed, d)
	}
}

func TestWaitExitKeyPressed(t *testing.T) {
	home := KeyCode(102)
	dev, wfd := newPipeKeyDevice(t, home)

	timer := newTestTimer(t)
	sleeper := NewSleeper(60*time.Second, timer).WakeupKeys([]*KeyDevice{dev})

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Write(wfd, pressRecord(home))
	}()

	start := time.Now()
	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != ExitKeyPressed || wakeup.Key != home {
		t.Fatalf("expected ExitKeyPressed(KEY_HOME), got %v", wakeup)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("key wakeup took %s with 60s remaining on the interval", elapsed)
	}
}

// A press of a key outside the filter must not end the wait; the
// interval tick does.
func TestWaitIgnoresUnfilteredPress(t *testing.T) {
	dev, wfd := newPipeKeyDevice(t, KeyCode(evdev.KEY_HOME))

	sleeper := NewSleeper(200*time.Millisecond, newTestTimer(t)).WakeupKeys([]*KeyDevice{dev})
	inject(t, wfd, pressRecord(KeyCode(evdev.KEY_A)))

	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != IntervalTick {
		t.Fatalf("expected IntervalTick, got %v", wakeup)
	}
}

// With presses queued on two devices before the wait begins, the
// first-registered device always wins.
func TestWaitTieBreakRegistrationOrder(t *testing.T) {
	first := KeyCode(evdev.KEY_HOME)
	second := KeyCode(evdev.KEY_MENU)

	devA, wfdA := newPipeKeyDevice(t, first)
	devB, wfdB := newPipeKeyDevice(t, second)
	inject(t, wfdA, pressRecord(first))
	inject(t, wfdB, pressRecord(second))

	sleeper := NewSleeper(60*time.Second, newTestTimer(t)).WakeupKeys([]*KeyDevice{devA, devB})

	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != ExitKeyPressed || wakeup.Key != first {
		t.Fatalf("expected press from first-registered device (%s), got %v", first, wakeup)
	}
}

// With the interval timer already expired and a press queued, the timer
// is evaluated first in the fixed descriptor order.
func TestWaitTieBreakTimerFirst(t *testing.T) {
	home := KeyCode(evdev.KEY_HOME)
	dev, wfd := newPipeKeyDevice(t, home)
	inject(t, wfd, pressRecord(home))

	sleeper := NewSleeper(time.Microsecond, newTestTimer(t)).WakeupKeys([]*KeyDevice{dev})

	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != IntervalTick {
		t.Fatalf("expected IntervalTick to win the tie, got %v", wakeup)
	}
}

func TestWaitSuspendZeroGrace(t *testing.T) {
	statePath := withPowerState(t)

	sleeper := NewSleeper(100*time.Millisecond, newTestTimer(t)).Suspend(true)

	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != IntervalTick {
		t.Fatalf("expected IntervalTick, got %v", wakeup)
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mem" {
		t.Fatalf("expected %q written to power state file, got %q", "mem", data)
	}
}

func TestWaitSuspendGracePeriod(t *testing.T) {
	statePath := withPowerState(t)

	sleeper := NewSleeper(250*time.Millisecond, newTestTimer(t)).
		Suspend(true).
		SuspendGrace(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Well inside the grace window: suspend must not have happened.
		time.Sleep(30 * time.Millisecond)
		if data, err := os.ReadFile(statePath); err != nil || len(data) != 0 {
			t.Errorf("suspend happened before the grace period (content %q, err %v)", data, err)
		}
	}()

	wakeup, err := sleeper.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wakeup.Reason != IntervalTick {
		t.Fatalf("expected IntervalTick, got %v", wakeup)
	}
	<-done

	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mem" {
		t.Fatalf("expected suspend after grace period, power state file holds %q", data)
	}
}

// A second Wait on the same Sleeper re-arms its own interval; the
// previous call's alarm was disarmed on return.
func TestWaitRearmsPerCall(t *testing.T) {
	const d = 80 * time.Millisecond
	sleeper := NewSleeper(d, newTestTimer(t))

	for i := 0; i < 2; i++ {
		start := time.Now()
		wakeup, err := sleeper.Wait()
		if err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		if wakeup.Reason != IntervalTick {
			t.Fatalf("wait %d: expected IntervalTick, got %v", i, wakeup)
		}
		if elapsed := time.Since(start); elapsed < d {
			t.Fatalf("wait %d returned after %s, before the %s interval", i, elapsed, d)
		}
	}
}
