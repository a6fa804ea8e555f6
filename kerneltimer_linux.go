//go:build linux

package fdloop

import (
	"golang.org/x/sys/unix"
)

// kernelTimer programs the kernel to wake the Loop at the next pending
// deadline, using a single timerfd. The Loop keeps at most one arming
// outstanding and rearms after every scheduling change, every timer
// dispatch batch, and every iteration start.
type kernelTimer struct {
	fd int
}

func newKernelTimer() (*kernelTimer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, newKernelError("timerfd_create", err)
	}
	return &kernelTimer{fd: fd}, nil
}

// handle returns the readable descriptor usable by the Backend.
func (t *kernelTimer) handle() int { return t.fd }

// after arms a one-shot timer relative to the current monotonic time, so it
// expires seconds from now; seconds of 0 fires as soon as the kernel can
// schedule it.
func (t *kernelTimer) after(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	spec := unix.ItimerSpec{
		Value: durationToTimespec(seconds),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return newKernelError("timerfd_settime", err)
	}
	return nil
}

// disarm cancels any pending wake.
func (t *kernelTimer) disarm() error {
	var spec unix.ItimerSpec
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return newKernelError("timerfd_settime", err)
	}
	return nil
}

// readTicks consumes the expiration counter. Multiple expirations between
// reads collapse to "at least one"; the count is never exposed.
func (t *kernelTimer) readTicks() error {
	var buf [8]byte
	for {
		_, err := unix.Read(t.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return newKernelError("read(timerfd)", err)
		}
	}
}

func (t *kernelTimer) close() error {
	return closeFD("close(timerfd)", t.fd)
}

// durationToTimespec converts a non-negative seconds value (as used by the
// public API) to a kernel Timespec. Values that are zero, or that the
// floating point conversion rounds to zero or below, become 1ns.
func durationToTimespec(seconds float64) unix.Timespec {
	if seconds <= 0 {
		// Arm for "as soon as possible": the kernel treats a zero relative
		// value as "disarm", so use the smallest representable positive
		// interval instead.
		return unix.NsecToTimespec(1)
	}
	ns := int64(seconds * 1e9)
	if ns <= 0 {
		ns = 1
	}
	return unix.NsecToTimespec(ns)
}
