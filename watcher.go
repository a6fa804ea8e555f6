package fdloop

// ReadCallback, WriteCallback, and ErrorCallback are the strict dispatch
// ABIs for a Watcher's three callback slots.
type (
	ReadCallback  func(l *Loop, fd int, w *Watcher)
	WriteCallback func(l *Loop, fd int, w *Watcher)
	ErrorCallback func(l *Loop, fd int, w *Watcher)
)

// Watcher is a mutable per-descriptor handle holding callbacks, enable
// bits, flags, and a user datum. All mutators synchronously reflect into
// the Backend via the owning Loop; a Watcher never talks to the Backend
// directly.
type Watcher struct {
	loop *Loop
	fd   int
	data any

	readCB  ReadCallback
	writeCB WriteCallback
	errorCB ErrorCallback

	readEnabled  bool
	writeEnabled bool
	errorEnabled bool

	edgeTriggered bool
	oneShot       bool

	active bool
}

// Fd returns the descriptor this Watcher is registered against.
func (w *Watcher) Fd() int { return w.fd }

// Data returns the user datum stored on the Watcher.
func (w *Watcher) Data() any { return w.data }

// SetData replaces the user datum stored on the Watcher.
func (w *Watcher) SetData(v any) { w.data = v }

// IsActive reports whether the Watcher is still registered with the Loop.
func (w *Watcher) IsActive() bool { return w.active }

// OnRead installs (or, passed nil, removes) the read callback. Removing the
// callback disables read dispatch; installing one does not re-enable a
// direction that was explicitly disabled.
func (w *Watcher) OnRead(cb ReadCallback) {
	w.readCB = cb
	if cb == nil {
		w.readEnabled = false
	}
	w.sync()
}

// OnWrite installs (or removes) the write callback, per the OnRead rules.
func (w *Watcher) OnWrite(cb WriteCallback) {
	w.writeCB = cb
	if cb == nil {
		w.writeEnabled = false
	}
	w.sync()
}

// OnError installs (or removes) the error callback, per the OnRead rules.
// Error readiness is reported by the Backend regardless of interest bits;
// ErrorEnabled only gates whether the callback is invoked.
func (w *Watcher) OnError(cb ErrorCallback) {
	w.errorCB = cb
	if cb == nil {
		w.errorEnabled = false
	}
	w.sync()
}

// EnableRead/DisableRead toggle read dispatch without touching the callback.
func (w *Watcher) EnableRead() {
	w.readEnabled = true
	w.sync()
}

func (w *Watcher) DisableRead() {
	w.readEnabled = false
	w.sync()
}

// EnableWrite/DisableWrite toggle write dispatch without touching the callback.
func (w *Watcher) EnableWrite() {
	w.writeEnabled = true
	w.sync()
}

func (w *Watcher) DisableWrite() {
	w.writeEnabled = false
	w.sync()
}

// EnableError/DisableError toggle error dispatch without touching the callback.
func (w *Watcher) EnableError() {
	w.errorEnabled = true
	w.sync()
}

func (w *Watcher) DisableError() {
	w.errorEnabled = false
	w.sync()
}

// SetEdgeTriggered toggles edge-triggered delivery. In edge mode, user
// callbacks must drain their descriptor to EAGAIN; the Loop performs no
// auto-drain.
func (w *Watcher) SetEdgeTriggered(edge bool) {
	w.edgeTriggered = edge
	w.sync()
}

// SetOneShot toggles one-shot delivery: after the first dispatch (read,
// write, or error), the Watcher is cancelled automatically.
func (w *Watcher) SetOneShot(oneShot bool) {
	w.oneShot = oneShot
	w.sync()
}

// Cancel removes the Watcher's registration. Idempotent; returns whether it
// actually removed the registration.
func (w *Watcher) Cancel() bool {
	if !w.active {
		return false
	}
	return w.loop.unwatchWatcher(w)
}

// interest derives the backend interest mask from the Watcher's current
// configuration, per the Watcher invariant in the data model.
func (w *Watcher) interest() Mask {
	var m Mask
	if w.readEnabled && w.readCB != nil {
		m |= Readable
	}
	if w.writeEnabled && w.writeCB != nil {
		m |= Writable
	}
	if w.edgeTriggered {
		m |= Edge
	}
	if w.oneShot {
		m |= OneShot
	}
	return m
}

// sync pushes the current interest mask to the Backend, if the Watcher is
// still registered. One-shot re-arm and in-callback mutation both funnel
// through here, so a modify always reflects the latest configuration.
func (w *Watcher) sync() {
	if w.active {
		w.loop.resyncWatcher(w)
	}
}
