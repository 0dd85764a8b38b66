package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrWakeupNotSupported means the RTC device cannot raise wake
	// interrupts, so it is useless as a suspend alarm source.
	ErrWakeupNotSupported = errors.New("RTC device does not support wakeup alarms")

	// ErrInvalidRTCTime means the hardware reported broken-down time
	// fields that do not form a valid calendar instant.
	ErrInvalidRTCTime = errors.New("invalid RTC time")

	// ErrAlarmOutOfRange means the requested wake instant falls outside
	// the range the RTC hardware registers can represent.
	ErrAlarmOutOfRange = errors.New("alarm time outside RTC range")
)

// Overridable for tests.
var (
	adjtimePath  = "/etc/adjtime"
	rtcSysfsBase = "/sys/class/rtc"
)

// rtcAlarmFired is RTC_AF: the alarm-interrupt bit in the status word
// returned by reading the RTC device. Other bits (update, periodic
// interrupts) are ignored.
const rtcAlarmFired = 0x20

// detectClockMode reads the third line of /etc/adjtime, which states
// whether the hardware clock runs on UTC or local time. Any read or
// parse failure falls back to UTC; this is never fatal.
func detectClockMode() (*time.Location, error) {
	data, err := os.ReadFile(adjtimePath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("%s: missing clock mode line", adjtimePath)
	}
	switch lines[2] {
	case "UTC":
		return time.UTC, nil
	case "LOCAL":
		return time.Local, nil
	default:
		return nil, fmt.Errorf("%s: unrecognized clock mode %q", adjtimePath, lines[2])
	}
}

// wakeupSupported checks the RTC's power-management attribute in sysfs.
func wakeupSupported(devPath string) (bool, error) {
	name := filepath.Base(devPath)
	data, err := os.ReadFile(filepath.Join(rtcSysfsBase, name, "device/power/wakeup"))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(data)) == "enabled", nil
}

// RtcClock drives a hardware real-time clock able to wake the system
// from suspend-to-RAM. The clock mode (UTC or local) is resolved once
// at construction.
type RtcClock struct {
	fd   int
	path string
	loc  *time.Location
}

// NewRtcClock opens the RTC device and verifies it can act as a wake
// source. Construction fails permanently if wakeup is unsupported.
func NewRtcClock(path string) (*RtcClock, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open RTC device %s: %w", path, err)
	}

	supported, err := wakeupSupported(path)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("check wakeup support of %s: %w", path, err)
	}
	if !supported {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrWakeupNotSupported)
	}

	loc, err := detectClockMode()
	if err != nil {
		warnf("unable to detect RTC clock mode, assuming UTC: %v", err)
		loc = time.UTC
	}

	dbg("using RTC %s with clock mode %v", path, loc)
	return &RtcClock{fd: fd, path: path, loc: loc}, nil
}

func (c *RtcClock) Close() error {
	return unix.Close(c.fd)
}

// now reads the RTC's broken-down time and converts it to an instant
// using the resolved clock mode.
func (c *RtcClock) now() (time.Time, error) {
	rt, err := unix.IoctlGetRTCTime(c.fd)
	if err != nil {
		return time.Time{}, fmt.Errorf("read RTC time from %s: %w", c.path, err)
	}
	return rtcToTime(rt, c.loc)
}

// rtcToTime converts hardware broken-down fields to an instant. The
// result is validated by reading the fields back: the kernel normalizes
// impossible dates (e.g. Feb 30) instead of rejecting them, and a
// drained RTC battery can report anything.
func rtcToTime(rt *unix.RTCTime, loc *time.Location) (time.Time, error) {
	t := time.Date(int(rt.Year)+1900, time.Month(rt.Mon)+1, int(rt.Mday),
		int(rt.Hour), int(rt.Min), int(rt.Sec), 0, loc)

	if t.Year() != int(rt.Year)+1900 || t.Month() != time.Month(rt.Mon)+1 ||
		t.Day() != int(rt.Mday) || t.Hour() != int(rt.Hour) ||
		t.Minute() != int(rt.Min) || t.Second() != int(rt.Sec) {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d:%02d",
			ErrInvalidRTCTime, rt.Year+1900, rt.Mon+1, rt.Mday, rt.Hour, rt.Min, rt.Sec)
	}
	return t, nil
}

// timeToRTC converts an instant back to hardware broken-down fields in
// loc. Fields the wake alarm does not use are set to -1.
func timeToRTC(t time.Time, loc *time.Location) unix.RTCTime {
	t = t.In(loc)
	return unix.RTCTime{
		Sec:   int32(t.Second()),
		Min:   int32(t.Minute()),
		Hour:  int32(t.Hour()),
		Mday:  int32(t.Day()),
		Mon:   int32(t.Month()) - 1,
		Year:  int32(t.Year()) - 1900,
		Wday:  -1,
		Yday:  -1,
		Isdst: -1,
	}
}

// SetAlarm programs a one-shot wake alarm for duration (whole seconds)
// from the RTC's current time.
func (c *RtcClock) SetAlarm(duration time.Duration) (*RtcAlarm, error) {
	now, err := c.now()
	if err != nil {
		return nil, err
	}

	target := now.Add(duration.Truncate(time.Second))
	if target.Year() < 1900 || target.Year() > 2099 {
		return nil, fmt.Errorf("%w: %v", ErrAlarmOutOfRange, target)
	}

	alarm := unix.RTCWkAlrm{
		Enabled: 1,
		Pending: 0,
		Time:    timeToRTC(target, c.loc),
	}
	if err := unix.IoctlSetRTCWkAlrm(c.fd, &alarm); err != nil {
		return nil, fmt.Errorf("program wake alarm on %s: %w", c.path, err)
	}

	dbg("RTC wake alarm armed for %v", target)
	return &RtcAlarm{clock: c}, nil
}

// RtcAlarm is a handle to the currently armed hardware wake alarm.
type RtcAlarm struct {
	clock *RtcClock
}

// Fd returns the RTC device descriptor; it becomes readable when any
// RTC interrupt fires.
func (a *RtcAlarm) Fd() int {
	return a.clock.fd
}

// Wait blocks until the alarm-fired bit appears in the RTC interrupt
// status word. Update and periodic interrupt bits are ignored and the
// read resumes.
func (a *RtcAlarm) Wait() error {
	// The status word is an unsigned long: 4 bytes on the 32-bit
	// targets, 8 on development machines.
	var buf [8]byte
	for {
		n, err := unix.Read(a.clock.fd, buf[:])
		switch {
		case err == unix.EAGAIN:
			if err := pollIn(a.clock.fd); err != nil {
				return fmt.Errorf("wait for RTC interrupt: %w", err)
			}
			continue
		case err != nil:
			return fmt.Errorf("read RTC interrupt status from %s: %w", a.clock.path, err)
		}

		var status uint64
		switch n {
		case 8:
			status = binary.NativeEndian.Uint64(buf[:])
		case 4:
			status = uint64(binary.NativeEndian.Uint32(buf[:4]))
		default:
			return fmt.Errorf("read RTC interrupt status from %s: short read (%d bytes)", a.clock.path, n)
		}

		if status&rtcAlarmFired != 0 {
			return nil
		}
	}
}

// Unset clears the enabled flag on the current alarm record, leaving no
// stray hardware alarm armed.
func (a *RtcAlarm) Unset() error {
	alarm, err := unix.IoctlGetRTCWkAlrm(a.clock.fd)
	if err != nil {
		return fmt.Errorf("read wake alarm from %s: %w", a.clock.path, err)
	}
	alarm.Enabled = 0
	if err := unix.IoctlSetRTCWkAlrm(a.clock.fd, alarm); err != nil {
		return fmt.Errorf("disable wake alarm on %s: %w", a.clock.path, err)
	}
	return nil
}
