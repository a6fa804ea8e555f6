package fdloop

// fakeBackend is a Backend (and ModifyingBackend) that never touches the
// kernel: tests drive readiness by calling deliver directly. This lets
// dispatch-contract tests exercise Loop policy deterministically, without
// depending on real epoll scheduling.
type fakeBackend struct {
	regs    map[int]fakeReg
	modifyN int
	closed  bool
}

type fakeReg struct {
	mask Mask
	cb   func(Mask)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{regs: make(map[int]fakeReg)}
}

func (b *fakeBackend) Watch(fd int, mask Mask, cb func(Mask)) error {
	b.regs[fd] = fakeReg{mask: mask, cb: cb}
	return nil
}

func (b *fakeBackend) Modify(fd int, mask Mask) (bool, error) {
	reg, ok := b.regs[fd]
	if !ok {
		return false, nil
	}
	reg.mask = mask
	b.regs[fd] = reg
	b.modifyN++
	return true, nil
}

func (b *fakeBackend) Unwatch(fd int) bool {
	if _, ok := b.regs[fd]; !ok {
		return false
	}
	delete(b.regs, fd)
	return true
}

func (b *fakeBackend) RunOnce(timeout *float64) (int, error) {
	return 0, nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

// deliver synthesizes a readiness event for fd as though the kernel had
// reported mask, routed through whatever callback is currently registered.
func (b *fakeBackend) deliver(fd int, mask Mask) {
	reg, ok := b.regs[fd]
	if !ok || reg.cb == nil {
		return
	}
	reg.cb(mask)
}
