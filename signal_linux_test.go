//go:build linux

package fdloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSignalReplacementAndCancel(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	const sig = int(unix.SIGUSR1)

	type event struct {
		tag  string
		data any
	}
	var events []event

	sub1, err := l.Signal(func(l *Loop, signum int, count int, data any) {
		events = append(events, event{"H1", data})
	}, "A", sig)
	require.NoError(t, err)

	raise := func() { _ = unix.Kill(os.Getpid(), unix.Signal(sig)) }

	raise()
	deadline := time.Now().Add(2 * time.Second)
	timeout := 0.01
	for len(events) < 1 && time.Now().Before(deadline) {
		require.NoError(t, l.RunOnce(&timeout))
	}

	sub2, err := l.Signal(func(l *Loop, signum int, count int, data any) {
		events = append(events, event{"H2", data})
	}, "NEW", sig)
	require.NoError(t, err)
	require.False(t, sub1.IsActive())

	raise()
	deadline = time.Now().Add(2 * time.Second)
	for len(events) < 2 && time.Now().Before(deadline) {
		require.NoError(t, l.RunOnce(&timeout))
	}

	require.True(t, sub2.Cancel())
	require.False(t, sub2.Cancel())

	raise()
	deadline = time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, l.RunOnce(&timeout))
	}

	require.Equal(t, []event{{"H1", "A"}, {"H2", "NEW"}}, events)
}
