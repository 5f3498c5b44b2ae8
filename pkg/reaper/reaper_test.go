package reaper

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActive(t *testing.T) {
	// The test process is never PID 1.
	require.False(t, Active())
}

func TestReapCollectsChild(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 5")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if code, exited := reap(pid); exited {
			require.Equal(t, 5, code)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("child was never reaped")
}
