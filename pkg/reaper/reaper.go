// Package reaper lets the pilot act as a container init process. When the
// pilot lands as PID 1, it re-execs itself as a child, forwards signals to it
// and reaps any zombies orphaned by payload process trees.
package reaper

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// childEnvVar marks the re-execed child so it skips init duties itself.
const childEnvVar = "PILOTX_REAPER_CHILD"

// Active reports whether this process should take on init duties before doing
// anything else.
func Active() bool {
	return os.Getpid() == 1 && os.Getenv(childEnvVar) == ""
}

// Run re-execs the current binary as a child and babysits it: signals are
// forwarded to the child and terminated orphans are reaped. It returns the
// child's exit code once it exits.
func Run() (int, error) {
	log.WithField("component", "reaper").Info("running as init, re-execing the pilot")

	cmd := exec.Command(os.Args[0], os.Args[1:]...) // #nosec G204
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), childEnvVar+"=1")

	signals := make(chan os.Signal, 32)
	signal.Notify(signals)
	defer signal.Stop(signals)

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "starting child process")
	}
	childPID := cmd.Process.Pid

	for sig := range signals {
		switch sig {
		case syscall.SIGCHLD:
			if code, exited := reap(childPID); exited {
				return code, nil
			}
		default:
			usig, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			if err := unix.Kill(childPID, usig); err != nil && err != unix.ESRCH {
				log.WithError(err).Warnf("forwarding %s to child", sig)
			}
		}
	}
	return 0, errors.New("signal channel closed unexpectedly")
}

// reap collects every terminated child without blocking. It returns the exit
// code and true once the supervised child itself has exited.
func reap(childPID int) (int, bool) {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil || pid <= 0:
			return 0, false
		case pid == childPID:
			if status.Signaled() {
				return 128 + int(status.Signal()), true
			}
			return status.ExitStatus(), true
		}
	}
}
