//go:build linux

package fdloop

import (
	"golang.org/x/sys/unix"
)

// closeFD closes one of the package's own kernel descriptors (epoll,
// timerfd, signalfd, pidfd, eventfd), wrapping any failure as a
// KernelError. Shared by every Backend and adaptor teardown path so
// close-error reporting stays consistent.
func closeFD(op string, fd int) error {
	if fd < 0 {
		return nil
	}
	return newKernelError(op, unix.Close(fd))
}
