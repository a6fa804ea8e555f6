//go:build linux

package fdloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend implements Backend and ModifyingBackend using Linux epoll.
// It is not safe for concurrent use: like the rest of the dispatch engine,
// it is owned exclusively by the Loop's single execution context.
type epollBackend struct {
	epfd int
	regs map[int]epollReg
	buf  []unix.EpollEvent
}

type epollReg struct {
	mask Mask
	cb   func(Mask)
}

func newEpollBackend() (*epollBackend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newKernelError("epoll_create1", err)
	}
	return &epollBackend{
		epfd: fd,
		regs: make(map[int]epollReg),
		buf:  make([]unix.EpollEvent, 128),
	}, nil
}

func (b *epollBackend) Watch(fd int, mask Mask, cb func(Mask)) error {
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return newKernelError("epoll_ctl(ADD)", err)
	}
	b.regs[fd] = epollReg{mask: mask, cb: cb}
	return nil
}

func (b *epollBackend) Modify(fd int, mask Mask) (bool, error) {
	reg, ok := b.regs[fd]
	if !ok {
		return false, nil
	}
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return false, newKernelError("epoll_ctl(MOD)", err)
	}
	reg.mask = mask
	b.regs[fd] = reg
	return true, nil
}

func (b *epollBackend) Unwatch(fd int) bool {
	if _, ok := b.regs[fd]; !ok {
		return false
	}
	delete(b.regs, fd)
	// Teardown races with the user closing fd are routine; errors here are
	// swallowed per the propagation policy for unwatch during teardown.
	_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return true
}

func (b *epollBackend) RunOnce(timeout *float64) (int, error) {
	ms := -1
	if timeout != nil {
		if *timeout < 0 {
			ms = 0
		} else {
			ms = int(*timeout * float64(time.Second/time.Millisecond))
		}
	}
	n, err := unix.EpollWait(b.epfd, b.buf, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, newKernelError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		fd := int(b.buf[i].Fd)
		reg, ok := b.regs[fd]
		if !ok || reg.cb == nil {
			continue
		}
		reg.cb(epollToMask(b.buf[i].Events))
	}
	return n, nil
}

func (b *epollBackend) Close() error {
	return closeFD("close(epollfd)", b.epfd)
}

func maskToEpoll(m Mask) uint32 {
	var e uint32
	if m&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if m&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	if m&Prio != 0 {
		e |= unix.EPOLLPRI
	}
	if m&RDHup != 0 {
		e |= unix.EPOLLRDHUP
	}
	if m&Edge != 0 {
		e |= unix.EPOLLET
	}
	return e
}

func epollToMask(e uint32) Mask {
	var m Mask
	if e&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if e&unix.EPOLLPRI != 0 {
		m |= Prio
	}
	if e&unix.EPOLLRDHUP != 0 {
		m |= RDHup
	}
	if e&unix.EPOLLERR != 0 {
		m |= Err
	}
	if e&unix.EPOLLHUP != 0 {
		m |= Hup
	}
	return m
}
