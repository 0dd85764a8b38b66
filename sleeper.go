package main

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Overridable for tests.
var powerStatePath = "/sys/power/state"

// WakeupReason says which wake source ended a Sleeper.Wait call.
type WakeupReason int

const (
	// IntervalTick: the interval timer expired.
	IntervalTick WakeupReason = iota
	// ExitKeyPressed: a filtered key was pressed on a wakeup device.
	ExitKeyPressed
)

// Wakeup is the result of one Wait call. Key is meaningful only for
// ExitKeyPressed.
type Wakeup struct {
	Reason WakeupReason
	Key    KeyCode
}

func (w Wakeup) String() string {
	if w.Reason == ExitKeyPressed {
		return fmt.Sprintf("exit key %s pressed", w.Key)
	}
	return "interval tick"
}

// Sleeper blocks until the next of {interval tick, exit key press,
// suspend cycle} and reports which. It exclusively owns its Timer and
// KeyDevices; nothing here is safe for concurrent use.
type Sleeper struct {
	timer    *Timer
	duration time.Duration
	keys     []*KeyDevice // registration order; also the tie-break order
	suspend  bool
	grace    time.Duration
}

func NewSleeper(duration time.Duration, timer *Timer) *Sleeper {
	return &Sleeper{timer: timer, duration: duration}
}

// WakeupKeys registers key devices whose filtered presses end the wait.
// Registration order is the descriptor evaluation order in Wait.
func (s *Sleeper) WakeupKeys(devices []*KeyDevice) *Sleeper {
	s.keys = append(s.keys, devices...)
	return s
}

// Suspend requests suspend-to-RAM while sleeping.
func (s *Sleeper) Suspend(yes bool) *Sleeper {
	s.suspend = yes
	return s
}

// SuspendGrace delays each suspend transition by period, leaving a
// window for in-flight work (and a chance to press an exit key).
func (s *Sleeper) SuspendGrace(period time.Duration) *Sleeper {
	s.grace = period
	return s
}

func (s *Sleeper) Duration() time.Duration {
	return s.duration
}

// Close releases the timer and all registered key devices.
func (s *Sleeper) Close() error {
	err := s.timer.Close()
	for _, kd := range s.keys {
		if cerr := kd.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// suspendToMemory requests suspend-to-RAM. The write blocks until the
// OS resumes after some wake source (RTC alarm, key, ...) fires.
func (s *Sleeper) suspendToMemory() error {
	dbg("suspending to RAM")
	f, err := os.OpenFile(powerStatePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("suspend to RAM: %w", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("mem")); err != nil {
		return fmt.Errorf("suspend to RAM: write %s: %w", powerStatePath, err)
	}
	return nil
}

// Wait arms the interval timer and blocks until one wake source fires.
//
// The wait set is [T, K1..Kn, G]: the interval timer, the key devices
// in registration order, and (with suspend and a non-zero grace period)
// a one-shot grace timer. Ready descriptors are always evaluated in
// that fixed order, which makes simultaneous readiness deterministic:
// the interval timer wins over keys, keys win over the grace timer.
//
// On every exit path the armed alarm is released, so the interval timer
// cannot fire for a stale wait; a disarm failure during unwind is
// logged, never propagated.
func (s *Sleeper) Wait() (Wakeup, error) {
	alarm, err := s.timer.Set(s.duration)
	if err != nil {
		return Wakeup{}, fmt.Errorf("set up interval timer: %w", err)
	}
	defer func() {
		if err := alarm.Unset(); err != nil {
			warnf("failed to disable alarm: %v", err)
		}
	}()

	fds := make([]unix.PollFd, 0, len(s.keys)+2)
	fds = append(fds, unix.PollFd{Fd: int32(alarm.Fd()), Events: unix.POLLIN})
	for _, kd := range s.keys {
		fds = append(fds, unix.PollFd{Fd: int32(kd.Fd()), Events: unix.POLLIN})
	}

	suspendDue := false
	graceIdx := -1
	if s.suspend {
		if s.grace <= 0 {
			suspendDue = true
		} else {
			gfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
			if err != nil {
				return Wakeup{}, fmt.Errorf("create suspend grace timer: %w", err)
			}
			defer unix.Close(gfd)

			spec := unix.ItimerSpec{Value: unix.NsecToTimespec(s.grace.Nanoseconds())}
			if err := unix.TimerfdSettime(gfd, 0, &spec, nil); err != nil {
				return Wakeup{}, fmt.Errorf("arm suspend grace timer for %s: %w", s.grace, err)
			}
			dbg("deferring suspend by %s grace period", s.grace)
			graceIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(gfd), Events: unix.POLLIN})
		}
	}

	for {
		if suspendDue {
			if err := s.suspendToMemory(); err != nil {
				return Wakeup{}, err
			}
			suspendDue = false
		}

		if err := pollWait(fds); err != nil {
			return Wakeup{}, fmt.Errorf("wait for wake sources: %w", err)
		}

		for i := range fds {
			if fds[i].Revents == 0 {
				continue
			}

			switch {
			case i == 0:
				if err := alarm.Wait(); err != nil {
					return Wakeup{}, err
				}
				return Wakeup{Reason: IntervalTick}, nil

			case i == graceIdx:
				if err := drainTimerfd(int(fds[i].Fd)); err != nil {
					return Wakeup{}, fmt.Errorf("acknowledge grace timer: %w", err)
				}
				suspendDue = true

			default:
				code, ok, err := s.keys[i-1].NextKeyPress()
				if err != nil {
					return Wakeup{}, fmt.Errorf("fetch key press event: %w", err)
				}
				if ok {
					return Wakeup{Reason: ExitKeyPressed, Key: code}, nil
				}
			}
		}
	}
}

// drainTimerfd consumes a non-blocking timerfd's expiration counter.
func drainTimerfd(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}
