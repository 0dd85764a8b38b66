package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"
)

// ErrNoInputDevices is returned by KeyDeviceBuilder.Find when no device
// matching the glob pattern supports any of the requested keys.
var ErrNoInputDevices = errors.New("no matching input devices found")

// inputEvent mirrors struct input_event from linux/input.h. Records of
// exactly this size are read straight off the device file.
type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = int(unsafe.Sizeof(inputEvent{}))

// evTypeCount is EV_CNT: the size of the event-type capability mask.
const evTypeCount = 0x20

// ioctl request encoding (linux asm-generic/ioctl.h, read direction).
const (
	iocRead      = 2
	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	evdevIoctlMagic = 'E'
	eviocgNameNr    = 0x06
	eviocgBitNr     = 0x20
)

func evdevIoctl(nr, size int) uint {
	return iocRead<<iocDirShift | uint(size)<<iocSizeShift |
		evdevIoctlMagic<<iocTypeShift | uint(nr)<<iocNrShift
}

// ioctlReadBuf fills buf via a read-direction ioctl with an explicit
// request number. x/sys/unix only ships fixed-struct evdev helpers, so
// the variable-length EVIOCGBIT/EVIOCGNAME requests are issued raw.
func ioctlReadBuf(fd int, nr int, buf []byte) error {
	req := evdevIoctl(nr, len(buf))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// KeyDevice is an open, non-blocking input device restricted to the key
// codes in its filter. The filter is always a non-empty subset of the
// codes the hardware reports as supported.
type KeyDevice struct {
	fd     int
	path   string
	filter map[KeyCode]bool
}

func openKeyDevice(path string) (*KeyDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open input device %s: %w", path, err)
	}
	return &KeyDevice{fd: fd, path: path, filter: make(map[KeyCode]bool)}, nil
}

// withFilter restricts the device to the requested codes it actually
// supports, or returns nil if the device cannot report key events or
// supports none of the requested codes.
func (d *KeyDevice) withFilter(requested []KeyCode) (*KeyDevice, error) {
	events := newBitSet(evTypeCount)
	if err := ioctlReadBuf(d.fd, eviocgBitNr, events); err != nil {
		return nil, fmt.Errorf("query event capabilities of %s: %w", d.path, err)
	}
	if !events.isSet(int(evdev.EV_KEY)) {
		return nil, nil
	}

	keys := newBitSet(keyCodeCount)
	if err := ioctlReadBuf(d.fd, eviocgBitNr+int(evdev.EV_KEY), keys); err != nil {
		return nil, fmt.Errorf("query key capabilities of %s: %w", d.path, err)
	}

	// Filter in userspace. Linux 4.4+ could push this into the kernel
	// with EVIOCSMASK, but the target devices run far older kernels.
	d.filter = intersectFilter(requested, keys)
	if len(d.filter) == 0 {
		return nil, nil
	}
	return d, nil
}

// intersectFilter returns requested ∩ supported.
func intersectFilter(requested []KeyCode, supported bitSet) map[KeyCode]bool {
	filter := make(map[KeyCode]bool)
	for _, code := range requested {
		if supported.isSet(int(code)) {
			filter[code] = true
		}
	}
	return filter
}

// Name reads the device's human-readable name. Best-effort, used for
// logging only.
func (d *KeyDevice) Name() (string, error) {
	buf := make([]byte, 128)
	if err := ioctlReadBuf(d.fd, eviocgNameNr, buf); err != nil {
		return "", fmt.Errorf("query name of %s: %w", d.path, err)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// Fd returns the raw descriptor for readiness multiplexing.
func (d *KeyDevice) Fd() int {
	return d.fd
}

func (d *KeyDevice) Close() error {
	return unix.Close(d.fd)
}

// NextKeyPress reads buffered events until it finds a press or repeat of
// a filtered key, returning (code, true, nil). It never blocks: once no
// more data is buffered it returns (0, false, nil), having discarded
// releases, non-key events and unfiltered codes along the way.
func (d *KeyDevice) NextKeyPress() (KeyCode, bool, error) {
	var event inputEvent
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&event)), inputEventSize)
	for {
		n, err := unix.Read(d.fd, buf)
		switch {
		case err == unix.EAGAIN:
			return 0, false, nil
		case err != nil:
			return 0, false, fmt.Errorf("read %s: %w", d.path, err)
		case n != inputEventSize:
			return 0, false, fmt.Errorf("read %s: short event record (%d of %d bytes)", d.path, n, inputEventSize)
		}

		if event.Type != uint16(evdev.EV_KEY) || event.Value == 0 {
			continue // not a keypress
		}

		code := KeyCode(event.Code)
		if d.filter[code] {
			return code, true, nil
		}
	}
}

// KeyDeviceBuilder discovers input devices able to report at least one
// of the requested key codes.
type KeyDeviceBuilder struct {
	keys []KeyCode
}

func WithKeys(keys []KeyCode) *KeyDeviceBuilder {
	return &KeyDeviceBuilder{keys: keys}
}

// Find opens every device matching pattern and keeps those whose key
// capabilities intersect the requested set. Failing to open a matched
// path is fatal; lacking key capability or any requested key is not.
func (b *KeyDeviceBuilder) Find(pattern string) ([]*KeyDevice, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid input device pattern %q: %w", pattern, err)
	}

	var devices []*KeyDevice
	closeAll := func() {
		for _, d := range devices {
			d.Close()
		}
	}
	for _, path := range paths {
		dev, err := openKeyDevice(path)
		if err != nil {
			closeAll()
			return nil, err
		}

		matched, err := dev.withFilter(b.keys)
		if err != nil {
			dev.Close()
			closeAll()
			return nil, err
		}
		if matched == nil {
			dev.Close()
			continue
		}

		if debugEnabled() {
			name, err := matched.Name()
			if err != nil {
				name = "(unreadable name)"
			}
			dbg("opened input device %s: %q, %d filtered keys", path, name, len(matched.filter))
		}
		devices = append(devices, matched)
	}

	if len(devices) == 0 {
		return nil, ErrNoInputDevices
	}
	return devices, nil
}
