package fdloop

// Backend is the readiness mechanism abstracted behind a duck-typed
// interface, so the Loop's dispatch policy never depends on the underlying
// kernel facility. The default backend uses epoll; a test backend may
// synthesize readiness without touching the kernel at all.
type Backend interface {
	// Watch registers fd with the given interest mask. cb is invoked with
	// the readiness mask reported by the kernel whenever fd becomes ready.
	Watch(fd int, mask Mask, cb func(Mask)) error

	// Unwatch de-registers fd. It must tolerate the descriptor already
	// having vanished from the kernel's readiness set (e.g. ENOENT/EBADF)
	// silently, never returning an error. The result reports whether fd was
	// registered with this Backend.
	Unwatch(fd int) bool

	// RunOnce blocks until at least one readiness event is available or
	// timeout elapses, then invokes the registered callbacks. A nil
	// timeout blocks indefinitely; a zero timeout polls. The returned
	// count is implementation-defined and callers must not rely on it.
	RunOnce(timeout *float64) (int, error)

	// Close releases the backend's kernel resources.
	Close() error
}

// ModifyingBackend is an optional capability: a Backend may implement it to
// replace an existing registration's interest mask without an
// unwatch+watch round trip. When a Backend does not implement it, the Loop
// falls back to Unwatch followed by Watch.
type ModifyingBackend interface {
	Modify(fd int, mask Mask) (bool, error)
}
