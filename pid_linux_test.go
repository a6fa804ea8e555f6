//go:build linux

package fdloop

import (
	"bytes"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPidSubscriptionReapsExitedChild(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	done := make(chan *unix.WaitStatus, 1)
	_, err = l.Pid(cmd.Process.Pid, func(l *Loop, pid int, status *unix.WaitStatus, data any) {
		done <- status
		l.Stop()
	}, nil, true)
	require.NoError(t, err)

	runFor(t, l, 2*time.Second)

	select {
	case status := <-done:
		require.NotNil(t, status)
		require.True(t, status.Exited())
		require.Equal(t, 0, status.ExitStatus())
	default:
		t.Fatal("pid subscription never fired")
	}
}

func TestPidSubscriptionWithoutReapDeliversNilStatus(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	defer cmd.Wait()

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var gotStatus *unix.WaitStatus
	fired := false
	_, err = l.Pid(cmd.Process.Pid, func(l *Loop, pid int, status *unix.WaitStatus, data any) {
		gotStatus = status
		fired = true
		l.Stop()
	}, nil, false)
	require.NoError(t, err)

	runFor(t, l, 2*time.Second)

	require.True(t, fired)
	require.Nil(t, gotStatus)
}

func TestPidSubscriptionNotAChildLogsAndCancels(t *testing.T) {
	// Spawn a subshell that backgrounds a short-lived grandchild and reaps
	// it itself, so the grandchild's pid is never waitable by this test
	// process. This exercises the ECHILD path in onReadable.
	cmd := exec.Command("sh", "-c", "sleep 0.3 & echo $!; wait")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	require.NoError(t, cmd.Start())
	defer cmd.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for stdout.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	grandchildPid, err := strconv.Atoi(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)

	var buf bytes.Buffer
	l, err := New(WithLogger(NewLogger(&buf, LevelDebug)))
	require.NoError(t, err)
	defer l.Close()

	fired := false
	sub, err := l.Pid(grandchildPid, func(l *Loop, pid int, status *unix.WaitStatus, data any) {
		fired = true
	}, nil, true)
	require.NoError(t, err)

	runFor(t, l, 2*time.Second)

	require.False(t, fired)
	require.False(t, sub.IsActive())
	require.Contains(t, buf.String(), "pid is not a waitable child")
	require.Contains(t, buf.String(), "category=pid")
}

func TestPidSubscriptionReplacementCancelsPrevious(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	first, err := l.Pid(cmd.Process.Pid, func(l *Loop, pid int, status *unix.WaitStatus, data any) {
		t.Error("first subscription should never fire after replacement")
	}, nil, true)
	require.NoError(t, err)

	second, err := l.Pid(cmd.Process.Pid, func(l *Loop, pid int, status *unix.WaitStatus, data any) {
	}, nil, true)
	require.NoError(t, err)

	require.False(t, first.IsActive())
	require.True(t, second.IsActive())
}
