// Package proc implements the payload runtime: it launches task payloads as
// local processes in their own process groups, streams their output as events
// and lets callers signal and await them.
package proc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/syncx/waitgroupx"
)

// Spec describes a payload process to launch.
type Spec struct {
	// Command is the payload argv. The first element is the executable.
	Command []string
	// Env holds KEY=VALUE pairs appended to the pilot's own environment.
	Env []string
	// WorkDir is the working directory of the payload. It must exist.
	WorkDir string
}

// ExitStatus is the terminal result of a payload process.
type ExitStatus struct {
	Code int
}

// Waiter exposes the exit of a payload. Exactly one message arrives on one of
// the two channels.
type Waiter struct {
	Exits <-chan ExitStatus
	Errs  <-chan error
}

// Payload is a handle to a launched payload process.
type Payload struct {
	PID       int
	StartTime time.Time
	Waiter    Waiter
}

// Client launches and tracks payload processes.
type Client struct {
	log *logrus.Entry

	mu       sync.Mutex
	wg       waitgroupx.Group
	payloads map[int]*os.Process
}

// New returns a new payload runtime client.
func New() *Client {
	return &Client{
		log:      logrus.WithField("component", "proc"),
		wg:       waitgroupx.WithContext(context.Background()),
		payloads: make(map[int]*os.Process),
	}
}

// Close the client, killing any payloads still running.
func (c *Client) Close() error {
	c.mu.Lock()
	for pid := range c.payloads {
		if err := unix.Kill(-pid, syscall.SIGKILL); err != nil && err != unix.ESRCH {
			c.log.WithError(err).Warnf("failed to kill payload group %d", pid)
		}
	}
	c.mu.Unlock()
	c.wg.Close()
	return nil
}

// StartPayload launches the payload described by the spec, publishing its
// stdout and stderr lines to the given publisher. The returned handle can be
// awaited through its Waiter.
func (c *Client) StartPayload(
	ctx context.Context, spec Spec, p events.Publisher[Event],
) (*Payload, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("payload command must not be empty")
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...) // #nosec G204
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.Env...)
	// The payload gets its own process group so signals reach its children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening payload stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening payload stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting payload %s: %w", spec.Command[0], err)
	}
	pid := cmd.Process.Pid

	c.mu.Lock()
	c.payloads[pid] = cmd.Process
	c.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	c.wg.Go(func(ctx context.Context) {
		defer readers.Done()
		c.shipOutput(ctx, stdout, StdoutType, p)
	})
	c.wg.Go(func(ctx context.Context) {
		defer readers.Done()
		c.shipOutput(ctx, stderr, StderrType, p)
	})

	exits := make(chan ExitStatus, 1)
	errs := make(chan error, 1)
	c.wg.Go(func(_ context.Context) {
		defer func() {
			c.mu.Lock()
			delete(c.payloads, pid)
			c.mu.Unlock()
		}()

		// Wait closes the pipes, so drain them fully first.
		readers.Wait()
		switch err := cmd.Wait().(type) {
		case nil:
			exits <- ExitStatus{Code: 0}
		case *exec.ExitError:
			ws, ok := err.Sys().(syscall.WaitStatus)
			if !ok {
				errs <- fmt.Errorf("payload exited with unreadable status: %w", err)
				return
			}
			if ws.Signaled() {
				exits <- ExitStatus{Code: 128 + int(ws.Signal())}
				return
			}
			exits <- ExitStatus{Code: ws.ExitStatus()}
		default:
			errs <- fmt.Errorf("waiting on payload: %w", err)
		}
	})

	return &Payload{
		PID:       pid,
		StartTime: time.Now().UTC(),
		Waiter:    Waiter{Exits: exits, Errs: errs},
	}, nil
}

// SignalPayload delivers the signal to the payload's process group.
func (c *Client) SignalPayload(ctx context.Context, pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil {
		return fmt.Errorf("signaling payload group %d with %s: %w", pid, sig, err)
	}
	return nil
}

func (c *Client) shipOutput(
	ctx context.Context, r io.Reader, stdType string, p events.Publisher[Event],
) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := p.Publish(ctx, NewLogEvent(stdType, scanner.Text())); err != nil {
			c.log.WithError(err).Warn("dropping payload output")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.WithError(err).Debug("payload output closed")
	}
}
