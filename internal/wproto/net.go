package wproto

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// PilotReconnectAttempts is the max attempts a pilot has to reconnect.
	PilotReconnectAttempts = 5
	// PilotReconnectBackoffValue in seconds.
	PilotReconnectBackoffValue = 5
	// PilotReconnectBackoff is the time between attempts, with the exception of the first.
	PilotReconnectBackoff = PilotReconnectBackoffValue * time.Second
	// PilotReconnectWait is the max time the scheduler should wait for a pilot before
	// considering it dead. The pilot waits (PilotReconnectWait - PilotReconnectBackoff)
	// before stopping attempts and PilotReconnectWait before crashing.
	PilotReconnectWait = PilotReconnectAttempts * PilotReconnectBackoff
)

// ErrPilotMustReconnect is returned by the scheduler when the pilot is past
// the reconnect period and must restart its session.
var ErrPilotMustReconnect = errors.New("pilot is past reconnect period, it must restart")
