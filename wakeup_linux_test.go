//go:build linux

package fdloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestWakeupDrainCoalescesAndResets(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	waker, err := l.Waker()
	require.NoError(t, err)

	require.NoError(t, waker.Signal(1))
	require.NoError(t, waker.Signal(1))
	require.NoError(t, waker.Signal(3))

	n, err := waker.Drain()
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, uint64(5))

	n, err = waker.Drain()
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)
}

func TestWakeupSignalIsCallableConcurrently(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	waker, err := l.Waker()
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return waker.Signal(1)
		})
	}
	require.NoError(t, g.Wait())

	n, err := waker.Drain()
	require.NoError(t, err)
	require.Equal(t, uint64(8), n)
}

func TestWakeupWakesBlockedLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	waker, err := l.Waker()
	require.NoError(t, err)

	woken := false
	_, err = l.Watch(waker.Fd(), WithRead(func(l *Loop, fd int, w *Watcher) {
		_, _ = waker.Drain()
		woken = true
		l.Stop()
	}))
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = waker.Signal(1)
	}()

	l.running = true
	for l.running {
		require.NoError(t, l.RunOnce(nil))
	}
	require.True(t, woken)
}
