//go:build linux

package fdloop

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// PidCallback is the strict dispatch ABI for process-exit notifications.
// status is nil when the subscription was registered with reap=false.
type PidCallback func(l *Loop, pid int, status *unix.WaitStatus, data any)

// PidSubscription is a one-shot handle for a single pid's exit
// notification.
type PidSubscription struct {
	adaptor *PidAdaptor
	pid     int
	fd      int
	cb      PidCallback
	data    any
	reap    bool
	active  bool
	watcher *Watcher
}

// Cancel removes the Watcher and drops the process descriptor. Idempotent.
func (s *PidSubscription) Cancel() bool {
	if !s.active {
		return false
	}
	s.active = false
	return s.adaptor.cancel(s)
}

// IsActive reports whether the subscription is still registered.
func (s *PidSubscription) IsActive() bool { return s.active }

// PidAdaptor delivers process-exit notifications via pidfd_open, one
// subscription per pid, replacing any prior subscription for the same
// pid on re-registration.
type PidAdaptor struct {
	loop *Loop
	subs map[int]*PidSubscription
}

func newPidAdaptor(l *Loop) *PidAdaptor {
	return &PidAdaptor{loop: l, subs: make(map[int]*PidSubscription)}
}

func (a *PidAdaptor) register(pid int, cb PidCallback, data any, reap bool) (*PidSubscription, error) {
	if cb == nil {
		return nil, newUsageError("pid", "callback is required")
	}

	if old, ok := a.subs[pid]; ok {
		old.Cancel()
	}

	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, newKernelError("pidfd_open", err)
	}

	sub := &PidSubscription{adaptor: a, pid: pid, fd: fd, cb: cb, data: data, reap: reap, active: true}

	// Not one-shot at the Watcher level: a "no status yet" wait4 result
	// (wpid == 0) must leave the pidfd armed for the next readiness event
	// rather than have the generic dispatch contract tear it down after
	// the first one. onReadable calls sub.Cancel() itself at each of the
	// subscription's defined terminal outcomes.
	w, err := a.loop.watch(fd, watchSpec{
		read:    func(l *Loop, _ int, _ *Watcher) { a.onReadable(l, sub) },
		errorCB: func(l *Loop, _ int, _ *Watcher) { a.onReadable(l, sub) },
	})
	if err != nil {
		_ = closeFD("close(pidfd)", fd)
		return nil, err
	}
	sub.watcher = w

	a.subs[pid] = sub
	return sub, nil
}

// onReadable fires on pidfd readability (process exit) or error readiness
// (e.g. the pid was never our child). When reap is requested it performs a
// non-blocking WEXITED wait; if nothing is available yet it waits for the
// next readiness rather than dispatching early.
func (a *PidAdaptor) onReadable(l *Loop, sub *PidSubscription) {
	if !sub.active {
		return
	}

	if !sub.reap {
		sub.Cancel()
		sub.cb(l, sub.pid, nil, sub.data)
		return
	}

	var status unix.WaitStatus
	wpid, err := unix.Wait4(sub.pid, &status, unix.WNOHANG, nil)
	if err != nil {
		sub.Cancel()
		if errors.Is(err, unix.ECHILD) {
			err = newStateError("pid", fmt.Sprintf("pid %d is not a waitable child", sub.pid), fmt.Errorf("%w: %w", ErrNotAChild, err))
		}
		l.logf(LevelError, "pid", "wait4(%d): %v", sub.pid, err)
		return
	}
	if wpid == 0 {
		// No status yet; wait for the next readiness event.
		return
	}

	sub.Cancel()
	sub.cb(l, sub.pid, &status, sub.data)
}

func (a *PidAdaptor) cancel(sub *PidSubscription) bool {
	if cur, ok := a.subs[sub.pid]; !ok || cur != sub {
		return false
	}
	delete(a.subs, sub.pid)
	if sub.watcher != nil {
		sub.watcher.Cancel()
	}
	_ = closeFD("close(pidfd)", sub.fd)
	return true
}

func (a *PidAdaptor) closeAll() {
	for _, sub := range a.subs {
		sub.Cancel()
	}
}
