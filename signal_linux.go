//go:build linux

package fdloop

import (
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SignalCallback is the strict dispatch ABI for signal delivery: count is
// the coalesced number of occurrences of signum observed in one drain,
// always >= 1.
type SignalCallback func(l *Loop, signum int, count int, data any)

// SignalSubscription is the handle returned by Loop.Signal. One
// subscription may cover several signal numbers; cancelling it detaches
// all of them, but only where the adaptor's map still points at this
// subscription (another registration may have since replaced one of the
// signums).
type SignalSubscription struct {
	adaptor *SignalAdaptor
	sigs    []int
	cb      SignalCallback
	data    any
	active  bool
}

// Cancel detaches this subscription's signal numbers from the adaptor.
// Idempotent.
func (s *SignalSubscription) Cancel() bool {
	if !s.active {
		return false
	}
	s.active = false
	return s.adaptor.cancel(s)
}

// IsActive reports whether the subscription is still registered.
func (s *SignalSubscription) IsActive() bool { return s.active }

// SignalAdaptor delivers process signals on the Loop via a single
// signalfd, maintaining an accumulated process-wide blocked-signal mask
// that only ever grows.
type SignalAdaptor struct {
	loop    *Loop
	fd      int
	mask    unix.Sigset_t
	handler map[int]*SignalSubscription
}

func newSignalAdaptor(l *Loop) (*SignalAdaptor, error) {
	a := &SignalAdaptor{
		loop:    l,
		fd:      -1,
		handler: make(map[int]*SignalSubscription),
	}
	return a, nil
}

func sigsetAdd(set *unix.Sigset_t, sig int) {
	set.Val[(sig-1)/64] |= 1 << uint((sig-1)%64)
}

// register installs cb for every signal number in sigs, replacing any
// existing handler for that signum, and (re)opens the signalfd with the
// extended mask.
func (a *SignalAdaptor) register(sigs []int, cb SignalCallback, data any) (*SignalSubscription, error) {
	if len(sigs) == 0 {
		return nil, newUsageError("signal", "at least one signal number is required")
	}
	if cb == nil {
		return nil, newUsageError("signal", "callback is required")
	}

	sub := &SignalSubscription{sigs: append([]int(nil), sigs...), cb: cb, data: data, active: true}

	for _, sig := range sigs {
		old, hadOld := a.handler[sig]
		a.handler[sig] = sub
		sigsetAdd(&a.mask, sig)
		if hadOld && old != sub {
			// The old subscription stays active while it still owns any
			// signum, so its Cancel can detach the ones left.
			old.active = false
			for _, s := range old.sigs {
				if a.handler[s] == old {
					old.active = true
					break
				}
			}
		}
	}
	sub.adaptor = a

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &a.mask, nil); err != nil {
		return nil, newKernelError("pthread_sigmask", err)
	}

	newFd, err := unix.Signalfd(a.fd, &a.mask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return nil, newKernelError("signalfd", err)
	}
	if a.fd < 0 {
		a.fd = newFd
		if _, err := a.loop.watch(a.fd, watchSpec{
			read: func(l *Loop, _ int, _ *Watcher) { a.onReadable(l) },
		}); err != nil {
			_ = unix.Close(a.fd)
			a.fd = -1
			return nil, err
		}
	}

	return sub, nil
}

// cancel removes sigs from the adaptor's map where they still point at
// sub, leaving the process-wide blocked set unchanged (it monotonically
// grows per the adaptor contract).
func (a *SignalAdaptor) cancel(sub *SignalSubscription) bool {
	removed := false
	for _, sig := range sub.sigs {
		if cur, ok := a.handler[sig]; ok && cur == sub {
			delete(a.handler, sig)
			removed = true
		}
	}
	return removed
}

// onReadable drains every pending signalfd record to EAGAIN, tallies
// occurrences per signum, then invokes at most one callback per signum in
// ascending order with the coalesced count.
func (a *SignalAdaptor) onReadable(l *Loop) {
	counts := make(map[int]int)
	var info unix.SignalfdSiginfo
	buf := (*[unsafe.Sizeof(info)]byte)(unsafe.Pointer(&info))[:]

	for {
		n, err := unix.Read(a.fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			l.logf(LevelWarn, "signal", "read(signalfd): %v", err)
			break
		}
		if n < int(unsafe.Sizeof(info)) {
			continue
		}
		counts[int(info.Signo)]++
	}

	if len(counts) == 0 {
		return
	}
	signums := make([]int, 0, len(counts))
	for sig := range counts {
		signums = append(signums, sig)
	}
	sort.Ints(signums)

	for _, sig := range signums {
		sub, ok := a.handler[sig]
		if !ok {
			continue
		}
		sub.cb(l, sig, counts[sig], sub.data)
	}
}

func (a *SignalAdaptor) close() error {
	err := closeFD("close(signalfd)", a.fd)
	a.fd = -1
	return err
}
