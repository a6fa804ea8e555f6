//go:build linux

package fdloop

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// WakeupAdaptor is a Loop-owned singleton built on a single eventfd: any
// thread can call signal to wake a Loop blocked in its Backend, without
// touching Loop-owned data. The Loop does not watch the descriptor
// automatically; callers decide how to react to wake-ups via Watch(a.Fd()).
type WakeupAdaptor struct {
	fd int
}

func newWakeupAdaptor(_ *Loop) (*WakeupAdaptor, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, newKernelError("eventfd", err)
	}
	return &WakeupAdaptor{fd: fd}, nil
}

// Fd returns the readable descriptor suitable for Loop.Watch.
func (a *WakeupAdaptor) Fd() int { return a.fd }

// Signal increments the kernel counter by n (n of 0 is treated as 1), waking any
// Loop blocked in its Backend with this descriptor watched. Safe to call
// from any thread, concurrently, including from a signal handler context
// this package does not itself install.
func (a *WakeupAdaptor) Signal(n uint64) error {
	if n < 1 {
		n = 1
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], n)
	_, err := unix.Write(a.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			// The kernel counter is saturated near max uint64; treat as a
			// resource exhaustion error rather than silently dropping the
			// wake-up.
			return newResourceError("eventfd write", "wakeup counter saturated")
		}
		return newKernelError("write(eventfd)", err)
	}
	return nil
}

// Drain non-blockingly reads and resets the kernel counter, returning the
// coalesced count accumulated since the last drain (0 if nothing pending).
func (a *WakeupAdaptor) Drain() (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(a.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, newKernelError("read(eventfd)", err)
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

func (a *WakeupAdaptor) close() error {
	return closeFD("close(eventfd)", a.fd)
}
