// Package fdloop is a single-threaded, Linux-native event loop: a
// readiness/timer core composing epoll, timerfd, signalfd, eventfd, and
// pidfd behind one dispatch contract.
//
// # Architecture
//
// A [Loop] owns a [Backend] (epoll by default), a kernel timer (timerfd),
// a [Watcher] table, and three lazily-constructed adaptors:
// [SignalAdaptor] (signalfd), [WakeupAdaptor] (eventfd), and [PidAdaptor]
// (pidfd). Exactly one execution context drives a Loop; there is no
// internal task scheduler and no parallelism inside it. Multiplexing
// across threads means one Loop per thread — Loops share no state.
//
// # Dispatch order
//
// Within one readiness event on one descriptor, the Loop resolves the
// [Watcher] for the fd, then applies a fixed order: error (if an error
// callback is installed, exclusively; otherwise promoted to read+write),
// hang-up (forces read), read, then write. The Watcher table is
// re-checked for identity between the read and write steps, since the
// read callback may have cancelled or replaced the Watcher. A one-shot
// Watcher is cancelled once its dispatch completes.
//
// # Usage
//
//	loop, err := fdloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	w, err := loop.Watch(fd, fdloop.WithRead(func(l *fdloop.Loop, fd int, w *fdloop.Watcher) {
//	    // drain fd
//	}))
//
//	loop.After(0.1, func(l *fdloop.Loop) {
//	    fmt.Println("fired after 100ms")
//	    l.Stop()
//	})
//
//	if err := loop.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error types
//
// Errors are classified as [UsageError] (caller mistake, synchronous),
// [KernelError] (wrapped syscall failure), [StateError] (a Pid
// subscription's reap discovers the pid is not a waitable child), and
// [ResourceError] (a kernel-backed resource, such as the Wakeup counter,
// is exhausted). All wrap their underlying cause via [errors.Unwrap]
// where one exists.
package fdloop
