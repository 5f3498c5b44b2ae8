package task

import (
	"context"
	"syscall"

	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/proc"
	"github.com/pilotx/pilotx/pkg/rucio"
)

// PayloadRuntime is our interface for launching and signaling payload
// processes.
type PayloadRuntime interface {
	StartPayload(
		ctx context.Context, spec proc.Spec, p events.Publisher[proc.Event],
	) (*proc.Payload, error)

	SignalPayload(ctx context.Context, pid int, sig syscall.Signal) error
}

// Stager is our interface for staging task input data in from grid storage.
type Stager interface {
	Download(
		ctx context.Context, req rucio.DownloadRequest, p events.Publisher[rucio.Event],
	) error
}
