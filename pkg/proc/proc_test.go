package proc

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pilotx/pilotx/pkg/events"
)

func TestStartPayloadExitCode(t *testing.T) {
	c := New()
	defer func() { require.NoError(t, c.Close()) }()

	p, err := c.StartPayload(context.Background(), Spec{
		Command: []string{"sh", "-c", "exit 3"},
		WorkDir: t.TempDir(),
	}, events.NilPublisher[Event]{})
	require.NoError(t, err)

	select {
	case exit := <-p.Waiter.Exits:
		require.Equal(t, 3, exit.Code)
	case err := <-p.Waiter.Errs:
		t.Fatalf("unexpected waiter error: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for payload exit")
	}
}

func TestStartPayloadOutput(t *testing.T) {
	c := New()
	defer func() { require.NoError(t, c.Close()) }()

	lines := make(chan Event, 8)
	p, err := c.StartPayload(context.Background(), Spec{
		Command: []string{"sh", "-c", "echo hello from the payload"},
		WorkDir: t.TempDir(),
	}, events.ChannelPublisher(lines))
	require.NoError(t, err)

	select {
	case e := <-lines:
		require.NotNil(t, e.Log)
		require.Equal(t, StdoutType, e.Log.StdType)
		require.Equal(t, "hello from the payload", e.Log.Message)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for payload output")
	}

	select {
	case exit := <-p.Waiter.Exits:
		require.Equal(t, 0, exit.Code)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for payload exit")
	}
}

func TestSignalPayload(t *testing.T) {
	c := New()
	defer func() { require.NoError(t, c.Close()) }()

	p, err := c.StartPayload(context.Background(), Spec{
		Command: []string{"sleep", "60"},
		WorkDir: t.TempDir(),
	}, events.NilPublisher[Event]{})
	require.NoError(t, err)

	require.NoError(t, c.SignalPayload(context.Background(), p.PID, syscall.SIGKILL))

	select {
	case exit := <-p.Waiter.Exits:
		require.Equal(t, 128+int(syscall.SIGKILL), exit.Code)
	case err := <-p.Waiter.Errs:
		t.Fatalf("unexpected waiter error: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for payload exit")
	}
}

func TestStartPayloadEmptyCommand(t *testing.T) {
	c := New()
	defer func() { require.NoError(t, c.Close()) }()

	_, err := c.StartPayload(context.Background(), Spec{}, events.NilPublisher[Event]{})
	require.Error(t, err)
}
