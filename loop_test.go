package fdloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// runFor drives RunOnce with a short poll timeout until the Loop stops or
// the deadline elapses, matching the single-threaded "one execution
// context" model: the test goroutine IS the Loop's owning context.
func runFor(t *testing.T, l *Loop, max time.Duration) {
	t.Helper()
	l.running = true
	deadline := time.Now().Add(max)
	timeout := 0.01
	for l.running && time.Now().Before(deadline) {
		require.NoError(t, l.RunOnce(&timeout))
	}
}

func TestTimerOrderAndCancel(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []string
	l.After(0.010, func(l *Loop) { order = append(order, "A") })
	x := l.After(0.020, func(l *Loop) { order = append(order, "X") })
	l.After(0.030, func(l *Loop) { order = append(order, "B") })
	l.CancelTimer(x)
	l.After(0.060, func(l *Loop) {
		order = append(order, "stop")
		l.Stop()
	})

	runFor(t, l, 2*time.Second)

	require.Equal(t, []string{"A", "B", "stop"}, order)
}

func TestPipeReadable(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	l, err := New()
	require.NoError(t, err)
	defer l.Close()
	defer r.Close()

	var got string
	_, err = l.Watch(int(r.Fd()), WithRead(func(l *Loop, fd int, watcher *Watcher) {
		buf := make([]byte, 4096)
		n, _ := unix.Read(fd, buf)
		got = string(buf[:n])
		watcher.Cancel()
		l.Stop()
	}))
	require.NoError(t, err)

	l.After(0.020, func(*Loop) {
		_, _ = w.Write([]byte("hello"))
	})

	runFor(t, l, 2*time.Second)
	require.Equal(t, "hello", got)
}

func TestOneShotNeverFiresTwiceAcrossIterations(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	counter := 0
	_, err = l.Watch(int(r.Fd()), WithRead(func(l *Loop, fd int, watcher *Watcher) {
		counter++
		buf := make([]byte, 1)
		_, _ = unix.Read(fd, buf)
	}), WithOneShot(true))
	require.NoError(t, err)

	l.After(0.020, func(*Loop) { _, _ = w.Write([]byte("a")) })
	l.After(0.040, func(*Loop) { _, _ = w.Write([]byte("b")) })
	l.After(0.080, func(l *Loop) { l.Stop() })

	runFor(t, l, 2*time.Second)
	require.Equal(t, 1, counter)
}

func TestErrorSuppressesReadAndWrite(t *testing.T) {
	l, fb := newTestLoop(t)

	var readCalled, writeCalled, errorCalled bool
	w, err := l.Watch(42,
		WithRead(func(*Loop, int, *Watcher) { readCalled = true }),
		WithWrite(func(*Loop, int, *Watcher) { writeCalled = true }),
		WithError(func(*Loop, int, *Watcher) { errorCalled = true }),
	)
	require.NoError(t, err)

	fb.deliver(w.Fd(), Err|Readable|Writable)

	require.True(t, errorCalled)
	require.False(t, readCalled)
	require.False(t, writeCalled)
}

func TestHupForcesRead(t *testing.T) {
	l, fb := newTestLoop(t)

	var readCalled bool
	w, err := l.Watch(43, WithRead(func(*Loop, int, *Watcher) { readCalled = true }))
	require.NoError(t, err)

	fb.deliver(w.Fd(), Hup)

	require.True(t, readCalled)
}

func TestReadCallbackCancellingWatcherSkipsWrite(t *testing.T) {
	l, fb := newTestLoop(t)

	var writeCalled bool
	var w *Watcher
	var err error
	w, err = l.Watch(44,
		WithRead(func(*Loop, int, *Watcher) { w.Cancel() }),
		WithWrite(func(*Loop, int, *Watcher) { writeCalled = true }),
	)
	require.NoError(t, err)

	fb.deliver(w.Fd(), Readable|Writable)

	require.False(t, writeCalled)
	require.False(t, w.IsActive())
}

func TestStopInsideTimerPreventsBackendWaitThisIteration(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	l.After(0, func(l *Loop) { l.Stop() })

	l.running = true
	timeout := 1.0
	start := time.Now()
	require.NoError(t, l.RunOnce(&timeout))
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.False(t, l.running)
}
