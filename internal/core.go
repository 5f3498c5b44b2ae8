package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pilotx/pilotx/internal/detect"
	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/task"
	"github.com/pilotx/pilotx/internal/tasks"
	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/proc"
	"github.com/pilotx/pilotx/pkg/rucio"
	"github.com/pilotx/pilotx/pkg/syncx/errgroupx"
)

// taskEventBufferSize is the number of task events buffered while the
// scheduler connection is down.
const taskEventBufferSize = 4096

// Run runs a new pilot with the provided options.
func Run(parent context.Context, version string, opts options.PilotOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printableConfig, err := opts.Printable()
	if err != nil {
		return err
	}
	log.Infof("pilot configuration: %s", printableConfig)

	log.Trace("detecting devices")
	devices, err := detect.Detect(opts.SlotType)
	if err != nil {
		return fmt.Errorf("failed to detect devices: %w", err)
	}
	log.Info("detected compute devices:")
	for _, d := range devices {
		log.Infof("\t%s", d.String())
	}

	log.Trace("setting up the payload runtime and the stager")
	runtime := proc.New()
	defer func() {
		if err := runtime.Close(); err != nil {
			log.WithError(err).Warn("closing payload runtime")
		}
	}()

	stager := rucio.New(rucio.Options{
		Home:         opts.Rucio.Home,
		ConfigFile:   opts.Rucio.ConfigFile,
		TemplateFile: opts.Rucio.TemplateFile,
		Account:      opts.Rucio.Account,
		Binary:       opts.Rucio.Binary,
		Timeout:      opts.Rucio.Timeout,
	})
	if err := stager.EnsureConfig(); err != nil {
		log.WithError(err).Warn("data-transfer client config unavailable, stage-in may fail")
	}

	// The manager and its event feed outlive individual scheduler connections
	// so running tasks survive scheduler blips.
	taskEvents := make(chan task.Event, taskEventBufferSize)
	manager, err := tasks.New(opts, devices, runtime, stager,
		events.ChannelPublisher(taskEvents))
	if err != nil {
		return fmt.Errorf("failed to create task manager: %w", err)
	}
	defer manager.Close()

	wg := errgroupx.WithContext(ctx)

	log.Trace("starting main pilot process")
	wg.Go(func(ctx context.Context) error {
		connectionFailureWindowBegin := time.Now()
		connectionFailureCount := 0
		for {
			p := New(ctx, version, opts, devices, manager, taskEvents)
			switch err := p.Wait().(type) {
			case SchedulerConnectionError:
				now := time.Now()
				if connectionFailureWindowBegin.Before(now.Add(-time.Minute)) {
					connectionFailureWindowBegin = now
					connectionFailureCount = 0
				}
				connectionFailureCount++
				if connectionFailureCount >= opts.PilotReconnectAttempts {
					onConnectionLost(ctx, opts)
					return fmt.Errorf("failure to recover scheduler connection: %w", err)
				}
				log.WithError(err).Error("attempting reconnect after delay...")
				select {
				case <-time.After(time.Duration(opts.PilotReconnectBackoff) * time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			default:
				return err
			}
		}
	})

	if opts.APIEnabled {
		log.Trace("starting pilot apiserver")
		api := newPilotAPIServer(version, opts, manager)
		wg.Go(func(_ context.Context) error {
			if err := api.serve(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("api server crashed: %w", err)
			}
			return nil
		})
		wg.Go(func(ctx context.Context) error {
			<-ctx.Done()
			if err := api.close(); err != nil {
				return errors.Wrap(err, "closing api server")
			}
			return ctx.Err()
		})
	}

	return wg.Wait()
}

func onConnectionLost(ctx context.Context, opts options.PilotOptions) {
	cmd := opts.Hooks.OnConnectionLost
	if len(cmd) == 0 {
		return
	}
	out, err := exec.CommandContext(ctx, cmd[0], cmd[1:]...).CombinedOutput() //nolint:gosec
	if err != nil {
		log.
			WithError(err).
			WithField("output", string(out)).
			Error("error running connection failure hook")
	}
}
