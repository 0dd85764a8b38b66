package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"
)

// eventRecord encodes one raw input event record as the kernel would
// deliver it.
func eventRecord(typ uint16, code uint16, value int32) []byte {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	buf := make([]byte, inputEventSize)
	copy(buf, (*(*[inputEventSize]byte)(unsafe.Pointer(&ev)))[:])
	return buf
}

// newPipeKeyDevice builds a KeyDevice whose descriptor is the read end
// of a non-blocking pipe, so tests can inject arbitrary record streams.
// Returns the device and the write end.
func newPipeKeyDevice(t *testing.T, filter ...KeyCode) (*KeyDevice, int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() { unix.Close(p[1]) })

	dev := &KeyDevice{fd: p[0], path: "pipe", filter: make(map[KeyCode]bool)}
	for _, code := range filter {
		dev.filter[code] = true
	}
	t.Cleanup(func() { dev.Close() })
	return dev, p[1]
}

func inject(t *testing.T, wfd int, records ...[]byte) {
	t.Helper()
	for _, rec := range records {
		if _, err := unix.Write(wfd, rec); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
}

func TestNextKeyPressNoEvent(t *testing.T) {
	dev, _ := newPipeKeyDevice(t, KeyCode(evdev.KEY_HOME))

	code, ok, err := dev.NextKeyPress()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no event, got %s", code)
	}
}

func TestNextKeyPressSkipsIrrelevantRecords(t *testing.T) {
	home := KeyCode(evdev.KEY_HOME)
	dev, wfd := newPipeKeyDevice(t, home)

	inject(t, wfd,
		eventRecord(0, 0, 0),                              // EV_SYN
		eventRecord(uint16(evdev.EV_KEY), uint16(home), 0), // release, ignored
		eventRecord(uint16(evdev.EV_KEY), uint16(evdev.KEY_A), 1), // unfiltered press
		eventRecord(uint16(evdev.EV_KEY), uint16(home), 1),        // the one we want
	)

	code, ok, err := dev.NextKeyPress()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || code != home {
		t.Fatalf("expected %s, got ok=%v code=%s", home, ok, code)
	}

	// Everything before the match was drained; the stream is empty now.
	if _, ok, err := dev.NextKeyPress(); err != nil || ok {
		t.Fatalf("expected drained stream, got ok=%v err=%v", ok, err)
	}
}

func TestNextKeyPressRepeatCounts(t *testing.T) {
	home := KeyCode(evdev.KEY_HOME)
	dev, wfd := newPipeKeyDevice(t, home)

	// value 2 = autorepeat, still a press
	inject(t, wfd, eventRecord(uint16(evdev.EV_KEY), uint16(home), 2))

	code, ok, err := dev.NextKeyPress()
	if err != nil || !ok || code != home {
		t.Fatalf("expected repeat to count as press, got ok=%v code=%s err=%v", ok, code, err)
	}
}

func TestNextKeyPressNeverOutsideFilter(t *testing.T) {
	home := KeyCode(evdev.KEY_HOME)
	dev, wfd := newPipeKeyDevice(t, home)

	inject(t, wfd,
		eventRecord(uint16(evdev.EV_KEY), uint16(evdev.KEY_A), 1),
		eventRecord(uint16(evdev.EV_KEY), uint16(evdev.KEY_ENTER), 1),
	)

	code, ok, err := dev.NextKeyPress()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("returned code %s outside filter", code)
	}
}

func TestNextKeyPressShortRead(t *testing.T) {
	dev, wfd := newPipeKeyDevice(t, KeyCode(evdev.KEY_HOME))

	inject(t, wfd, eventRecord(uint16(evdev.EV_KEY), uint16(evdev.KEY_HOME), 1)[:10])

	_, _, err := dev.NextKeyPress()
	if err == nil || !strings.Contains(err.Error(), "short event record") {
		t.Fatalf("expected short record error, got %v", err)
	}
}

func TestIntersectFilterLaw(t *testing.T) {
	supported := newBitSet(keyCodeCount)
	for _, code := range []int{int(evdev.KEY_HOME), int(evdev.KEY_ENTER), int(evdev.KEY_A)} {
		supported[code/8] |= 1 << (code % 8)
	}

	requested := []KeyCode{
		KeyCode(evdev.KEY_HOME),
		KeyCode(evdev.KEY_POWER), // not supported
		KeyCode(evdev.KEY_ENTER),
	}

	filter := intersectFilter(requested, supported)
	if len(filter) != 2 {
		t.Fatalf("expected filter of 2 codes, got %v", filter)
	}
	if !filter[KeyCode(evdev.KEY_HOME)] || !filter[KeyCode(evdev.KEY_ENTER)] {
		t.Fatalf("filter missing requested∩supported codes: %v", filter)
	}
	if filter[KeyCode(evdev.KEY_POWER)] {
		t.Fatalf("filter contains unsupported code: %v", filter)
	}

	if empty := intersectFilter([]KeyCode{KeyCode(evdev.KEY_POWER)}, supported); len(empty) != 0 {
		t.Fatalf("expected empty intersection, got %v", empty)
	}
}

func TestFindNoMatchingPaths(t *testing.T) {
	pattern := filepath.Join(t.TempDir(), "event*")

	_, err := WithKeys([]KeyCode{KeyCode(evdev.KEY_HOME)}).Find(pattern)
	if !errors.Is(err, ErrNoInputDevices) {
		t.Fatalf("expected ErrNoInputDevices, got %v", err)
	}
}

func TestFindBadPattern(t *testing.T) {
	_, err := WithKeys([]KeyCode{KeyCode(evdev.KEY_HOME)}).Find("[")
	if !errors.Is(err, filepath.ErrBadPattern) {
		t.Fatalf("expected bad pattern error, got %v", err)
	}
}
