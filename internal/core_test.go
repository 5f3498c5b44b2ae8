package internal

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pilotx/pilotx/internal/options"
)

// refusedPort returns a local port with nothing listening on it.
func refusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newUnreachableOptions(t *testing.T) options.PilotOptions {
	t.Helper()
	opts := *options.DefaultOptions()
	opts.PilotID = "pilot-1"
	opts.SchedulerHost = "127.0.0.1"
	opts.SchedulerPort = refusedPort(t)
	opts.SlotType = "none"
	opts.WorkDir = t.TempDir()
	return opts
}

func TestRunExitsWithAPIEnabled(t *testing.T) {
	opts := newUnreachableOptions(t)
	opts.APIEnabled = true
	opts.BindIP = "127.0.0.1"
	opts.BindPort = 0
	opts.PilotReconnectAttempts = 1
	opts.PilotReconnectBackoff = 0

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), "0.0.0-test", opts)
	}()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "failure to recover scheduler connection")
	case <-time.After(30 * time.Second):
		t.Fatal("run did not exit after giving up on the scheduler")
	}
}

func TestRunCanceledDuringBackoff(t *testing.T) {
	opts := newUnreachableOptions(t)
	opts.PilotReconnectAttempts = 5
	opts.PilotReconnectBackoff = 60

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "0.0.0-test", opts)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not exit on cancellation during the reconnect backoff")
	}
}
