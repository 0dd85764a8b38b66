package main

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Timer produces wake alarms from one of two mutually exclusive
// backends: a kernel repeating timer (timerfd on CLOCK_MONOTONIC) or a
// hardware RTC wake alarm. The RTC backend survives suspend-to-RAM and
// is selected only when suspend is requested; timerfd with
// CLOCK_BOOTTIME_ALARM would be the modern answer, but the target
// devices ship kernels that predate it.
type Timer struct {
	fd  int       // timerfd; unused when rtc is set
	rtc *RtcClock // nil for the monotonic backend
}

// NewMonotonicTimer creates the kernel repeating-timer backend.
func NewMonotonicTimer() (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("create monotonic timer: %w", err)
	}
	return &Timer{fd: fd}, nil
}

// NewRealtimeAlarmTimer creates the RTC one-shot wake-alarm backend on
// the given RTC device.
func NewRealtimeAlarmTimer(path string) (*Timer, error) {
	rtc, err := NewRtcClock(path)
	if err != nil {
		return nil, err
	}
	return &Timer{fd: -1, rtc: rtc}, nil
}

// Set arms the timer for duration and returns the armed Alarm. Arming
// replaces any previous programming: at most one Alarm per Timer is
// live at a time, and the caller must Unset it on every exit path.
func (t *Timer) Set(duration time.Duration) (*Alarm, error) {
	if t.rtc != nil {
		alarm, err := t.rtc.SetAlarm(duration)
		if err != nil {
			return nil, fmt.Errorf("set RTC wake alarm for %s: %w", duration, err)
		}
		return &Alarm{fd: alarm.Fd(), rtc: alarm}, nil
	}

	ts := unix.NsecToTimespec(duration.Nanoseconds())
	spec := unix.ItimerSpec{Interval: ts, Value: ts}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return nil, fmt.Errorf("arm timer for %s: %w", duration, err)
	}
	return &Alarm{fd: t.fd}, nil
}

func (t *Timer) Close() error {
	if t.rtc != nil {
		return t.rtc.Close()
	}
	return unix.Close(t.fd)
}

// Alarm is a handle to one currently armed timer or RTC alarm.
type Alarm struct {
	fd  int
	rtc *RtcAlarm // nil when backed by a timerfd
}

// Fd returns the descriptor whose readiness signals expiry.
func (a *Alarm) Fd() int {
	return a.fd
}

// Wait blocks until the alarm fires, consuming exactly one tick.
func (a *Alarm) Wait() error {
	if a.rtc != nil {
		return a.rtc.Wait()
	}

	// The expiration counter read drains any backlog; a single read
	// reports one logical tick no matter how many expiries piled up.
	var buf [8]byte
	for {
		n, err := unix.Read(a.fd, buf[:])
		switch {
		case err == unix.EAGAIN:
			if err := pollIn(a.fd); err != nil {
				return fmt.Errorf("wait for timer expiry: %w", err)
			}
		case err != nil:
			return fmt.Errorf("read timer expirations: %w", err)
		case n != len(buf):
			return fmt.Errorf("read timer expirations: short read (%d bytes)", n)
		default:
			return nil
		}
	}
}

// Unset disarms the underlying timer or alarm so it cannot fire for a
// stale wait.
func (a *Alarm) Unset() error {
	if a.rtc != nil {
		return a.rtc.Unset()
	}
	var spec unix.ItimerSpec
	if err := unix.TimerfdSettime(a.fd, 0, &spec, nil); err != nil {
		return fmt.Errorf("disarm timer: %w", err)
	}
	return nil
}

// pollIn blocks until fd is readable, retrying on EINTR.
func pollIn(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	return pollWait(fds)
}

// pollWait blocks with no timeout until at least one descriptor in fds
// is ready, retrying on EINTR. Revents is filled in place.
func pollWait(fds []unix.PollFd) error {
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
