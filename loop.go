package fdloop

import (
	"fmt"
	"time"
)

// Loop is the policy layer combining the Scheduler, the kernel timer, a
// Backend, and the Watcher table. Exactly one execution context owns a
// Loop; all callbacks run on that context. There is no internal task
// scheduler and no parallelism inside the Loop.
type Loop struct {
	backend  Backend
	modifier ModifyingBackend // non-nil iff backend implements ModifyingBackend
	clock    *clock
	sched    *scheduler
	timer    *kernelTimer

	watchers map[int]*Watcher

	// running is true from construction until Stop is called, and Run sets
	// it back to true when it starts. It does not track "are we inside
	// Run": a bare RunOnce is a complete operation in its own right and
	// must enter the Backend even if Run is never called. After Stop, the
	// remainder of the current iteration and any subsequent RunOnce calls
	// skip the Backend wait until Run is called again.
	running bool
	log     *logger
	metrics *Metrics

	signal *SignalAdaptor
	wakeup *WakeupAdaptor
	pid    *PidAdaptor
}

// New constructs a Loop. By default it builds an epoll Backend, a
// monotonic Clock, and a timerfd-backed KernelTimer, and registers an
// internal Watcher on the kernel timer's descriptor.
func New(opts ...LoopOption) (*Loop, error) {
	cfg := resolveLoopOptions(opts)

	l := &Loop{
		watchers: make(map[int]*Watcher),
		log:      cfg.logger,
		running:  true,
	}
	if cfg.metrics {
		l.metrics = newMetrics()
	}

	if cfg.backend != nil {
		l.backend = cfg.backend
	} else {
		b, err := newEpollBackend()
		if err != nil {
			return nil, err
		}
		l.backend = b
	}
	if m, ok := l.backend.(ModifyingBackend); ok {
		l.modifier = m
	}

	l.clock = newClock()
	l.sched = newScheduler(l.clock)

	timer, err := newKernelTimer()
	if err != nil {
		_ = l.backend.Close()
		return nil, err
	}
	l.timer = timer

	if _, err := l.watch(timer.handle(), watchSpec{
		read: func(_ *Loop, _ int, _ *Watcher) {
			l.onTimerReadable()
		},
	}); err != nil {
		_ = timer.close()
		_ = l.backend.Close()
		return nil, err
	}

	return l, nil
}

// watchSpec mirrors the public WatchOption surface as a plain struct, used
// internally so Watch and the adaptors share one code path.
type watchSpec struct {
	read          ReadCallback
	write         WriteCallback
	errorCB       ErrorCallback
	data          any
	edgeTriggered bool
	oneShot       bool
}

// WatchOption configures a single call to Loop.Watch.
type WatchOption func(*watchSpec)

// WithRead installs the read callback and enables read dispatch.
func WithRead(cb ReadCallback) WatchOption {
	return func(s *watchSpec) { s.read = cb }
}

// WithWrite installs the write callback and enables write dispatch.
func WithWrite(cb WriteCallback) WatchOption {
	return func(s *watchSpec) { s.write = cb }
}

// WithError installs the error callback and enables error dispatch.
func WithError(cb ErrorCallback) WatchOption {
	return func(s *watchSpec) { s.errorCB = cb }
}

// WithData attaches an arbitrary user datum to the Watcher.
func WithData(data any) WatchOption {
	return func(s *watchSpec) { s.data = data }
}

// WithEdgeTriggered requests edge-triggered delivery; user callbacks must
// drain their descriptor to EAGAIN.
func WithEdgeTriggered(edge bool) WatchOption {
	return func(s *watchSpec) { s.edgeTriggered = edge }
}

// WithOneShot requests the Watcher be cancelled automatically after its
// first dispatch.
func WithOneShot(oneShot bool) WatchOption {
	return func(s *watchSpec) { s.oneShot = oneShot }
}

// Watch (re)registers fd with the Loop. If an existing Watcher is present
// for fd, the Loop atomically cancels the old one before installing the
// new one: registering the same descriptor twice replaces rather than
// errors, which is the behavior the Signal and Pid adaptors depend on.
func (l *Loop) Watch(fd int, opts ...WatchOption) (*Watcher, error) {
	var spec watchSpec
	for _, o := range opts {
		o(&spec)
	}
	return l.watch(fd, spec)
}

func (l *Loop) watch(fd int, spec watchSpec) (*Watcher, error) {
	if fd < 0 {
		return nil, newUsageError("watch", "fd must be non-negative")
	}
	if old, ok := l.watchers[fd]; ok {
		l.unwatchWatcher(old)
	}

	w := &Watcher{
		loop:          l,
		fd:            fd,
		data:          spec.data,
		readCB:        spec.read,
		writeCB:       spec.write,
		errorCB:       spec.errorCB,
		readEnabled:   true,
		writeEnabled:  true,
		errorEnabled:  true,
		edgeTriggered: spec.edgeTriggered,
		oneShot:       spec.oneShot,
	}

	if err := l.backend.Watch(fd, w.interest(), func(m Mask) { l.dispatch(fd, m) }); err != nil {
		return nil, err
	}
	w.active = true
	l.watchers[fd] = w
	return w, nil
}

// Unwatch removes the Watcher registered for fd. Idempotent; unknown
// handles return false without side effects.
func (l *Loop) Unwatch(fd int) bool {
	w, ok := l.watchers[fd]
	if !ok {
		return false
	}
	return l.unwatchWatcher(w)
}

func (l *Loop) unwatchWatcher(w *Watcher) bool {
	if !w.active {
		return false
	}
	w.active = false
	delete(l.watchers, w.fd)
	l.backend.Unwatch(w.fd)
	return true
}

// resyncWatcher re-applies a Watcher's interest mask to the Backend. Per
// the one-shot re-arm design note, this must force a kernel-level re-arm
// even when the effective bits are unchanged, so Modify is always called
// rather than elided; callers whose Backend lacks Modify fall back to an
// unwatch+watch round trip.
func (l *Loop) resyncWatcher(w *Watcher) {
	mask := w.interest()
	if l.modifier != nil {
		if ok, err := l.modifier.Modify(w.fd, mask); err == nil && ok {
			return
		}
	}
	l.backend.Unwatch(w.fd)
	_ = l.backend.Watch(w.fd, mask, func(m Mask) { l.dispatch(w.fd, m) })
}

// dispatch is the frozen dispatch contract for a single readiness event.
func (l *Loop) dispatch(fd int, mask Mask) {
	if l.metrics != nil {
		start := time.Now()
		defer func() { l.metrics.recordDispatchSeconds(time.Since(start).Seconds()) }()
	}

	w, ok := l.watchers[fd]
	if !ok {
		return
	}
	if w.fd != fd {
		// Identity mismatch: the table slot no longer belongs to this fd.
		l.unwatchWatcher(w)
		return
	}

	if mask&Err != 0 {
		if w.errorCB != nil && w.errorEnabled {
			w.errorCB(l, fd, w)
			if w.oneShot {
				l.unwatchWatcher(w)
			}
			return
		}
		mask |= Readable | Writable
	}
	if mask&Hup != 0 {
		mask |= Readable
	}

	readTrig := mask&Readable != 0
	writeTrig := mask&Writable != 0

	if readTrig && w.readCB != nil && w.readEnabled {
		w.readCB(l, fd, w)
	}

	// Re-check table identity between read and write dispatch: the read
	// callback may have cancelled or replaced this Watcher.
	if cur, ok := l.watchers[fd]; !ok || cur != w {
		return
	}

	if writeTrig && w.writeCB != nil && w.writeEnabled {
		w.writeCB(l, fd, w)
	}

	if w.oneShot {
		if cur, ok := l.watchers[fd]; ok && cur == w {
			l.unwatchWatcher(w)
		}
	}
}

// onTimerReadable is the internal Watcher callback bound to the kernel
// timer's descriptor: it drains ticks, ticks the Clock, dispatches due
// timers, and rearms the kernel timer.
func (l *Loop) onTimerReadable() {
	_ = l.timer.readTicks()
	l.clock.tick()
	l.sched.popExpired(l.clock.nowNs())
	l.rearmTimer()
}

// rearmTimer arms the kernel timer for the next pending deadline, or
// disarms it if the scheduler is empty.
func (l *Loop) rearmTimer() {
	deadline, ok := l.sched.nextDeadlineNs()
	if !ok {
		_ = l.timer.disarm()
		return
	}
	remaining := l.clock.remainingNs(deadline)
	seconds := float64(remaining) / 1e9
	_ = l.timer.after(seconds)
}

// After schedules cb to run after the given number of seconds (clamped to
// zero for negative values) and rearms the kernel timer.
func (l *Loop) After(seconds float64, cb func(l *Loop)) uint64 {
	id := l.sched.afterNs(secondsToNs(seconds), func() { cb(l) })
	l.rearmTimer()
	return id
}

// At schedules cb to run at the given absolute monotonic deadline in
// seconds, using the same timebase as Clock.nowNs, and rearms the kernel
// timer.
func (l *Loop) At(deadlineSeconds float64, cb func(l *Loop)) uint64 {
	id := l.sched.atNs(Deadline(secondsToNs(deadlineSeconds)), func() { cb(l) })
	l.rearmTimer()
	return id
}

// CancelTimer cancels a pending timer by id, idempotently, and rearms the
// kernel timer.
func (l *Loop) CancelTimer(id uint64) bool {
	if !l.sched.cancel(id) {
		return false
	}
	l.rearmTimer()
	return true
}

// Signal lazily constructs the Loop's SignalAdaptor and registers a
// handler for the given signal numbers.
func (l *Loop) Signal(cb SignalCallback, data any, sigs ...int) (*SignalSubscription, error) {
	if l.signal == nil {
		s, err := newSignalAdaptor(l)
		if err != nil {
			return nil, err
		}
		l.signal = s
	}
	return l.signal.register(sigs, cb, data)
}

// Waker lazily constructs the Loop's singleton WakeupAdaptor.
func (l *Loop) Waker() (*WakeupAdaptor, error) {
	if l.wakeup == nil {
		w, err := newWakeupAdaptor(l)
		if err != nil {
			return nil, err
		}
		l.wakeup = w
	}
	return l.wakeup, nil
}

// Pid lazily constructs the Loop's PidAdaptor and registers a one-shot
// subscription for the given pid.
func (l *Loop) Pid(pid int, cb PidCallback, data any, reap bool) (*PidSubscription, error) {
	if pid <= 0 {
		return nil, newUsageError("pid", "pid must be a positive integer")
	}
	if l.pid == nil {
		l.pid = newPidAdaptor(l)
	}
	return l.pid.register(pid, cb, data, reap)
}

// Run runs the Loop until Stop is called or a user callback panics.
func (l *Loop) Run() error {
	l.running = true
	for l.running {
		if err := l.RunOnce(nil); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce executes a single iteration: tick the clock, dispatch due
// timers, rearm the kernel timer, then block in the Backend for at most
// timeout seconds (nil blocks indefinitely, 0 polls). It will not re-enter
// the Backend wait if Stop was called earlier in the same iteration.
func (l *Loop) RunOnce(timeout *float64) error {
	l.clock.tick()
	l.sched.popExpired(l.clock.nowNs())
	l.rearmTimer()

	if !l.running {
		return nil
	}

	_, err := l.backend.RunOnce(timeout)
	return err
}

// Stop clears the running flag. Any dispatches already in flight in the
// current iteration still complete; the Loop simply will not enter the
// next Backend wait.
func (l *Loop) Stop() {
	l.running = false
}

// Close tears down the Loop's owned resources: the kernel timer, the
// backend, and the lazily-constructed adaptors. It does not close any
// user-provided descriptor.
func (l *Loop) Close() error {
	if l.wakeup != nil {
		_ = l.wakeup.close()
	}
	if l.signal != nil {
		_ = l.signal.close()
	}
	if l.pid != nil {
		l.pid.closeAll()
	}
	_ = l.timer.close()
	return l.backend.Close()
}

func secondsToNs(seconds float64) int64 {
	if seconds < 0 {
		seconds = 0
	}
	return int64(seconds * 1e9)
}

// logf is a small internal helper so call sites don't need to check for a
// nil logger.
func (l *Loop) logf(level LogLevel, category string, format string, args ...any) {
	if l.log == nil {
		return
	}
	l.log.logf(level, category, fmt.Sprintf(format, args...))
}
