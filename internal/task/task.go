// Package task manages the lifecycle of a single task on the pilot: staging
// its input data in, running its payload process and relaying its output and
// state changes back to the scheduler.
package task

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/pilotx/pilotx/internal/device"
	"github.com/pilotx/pilotx/internal/tproto"
	"github.com/pilotx/pilotx/internal/wproto"
	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/proc"
	"github.com/pilotx/pilotx/pkg/rucio"
	"github.com/pilotx/pilotx/pkg/syncx/waitgroupx"
)

// Task is a layer for managing a single task. It is constructed by starting a
// new task and, once constructed, provides an interface to interact with the
// task while it runs.
type Task struct {
	// Configuration details. Set in initialization and never modified after.
	taskID  tproto.ID
	pilotID string
	spec    *tproto.Spec
	devices []device.Device

	// System dependencies. Also set in initialization and never modified after.
	log     *logrus.Entry
	runtime PayloadRuntime
	stager  Stager
	pub     events.Publisher[Event]

	// Internal state. Access should be protected.
	mu       sync.RWMutex
	state    tproto.State // Updated throughout run, access protected.
	signals  chan syscall.Signal
	exit     *wproto.TaskStateChanged // Always set if the task exits.
	exitOnce sync.Once

	wg   waitgroupx.Group // A task-scoped goroutine group.
	done chan struct{}    // Closed after the group terminates and we finalize our state.
}

// Start a task asynchronously and receive a handle to interact with it.
func Start(
	req wproto.StartTask,
	runtime PayloadRuntime,
	stager Stager,
	pub events.Publisher[Event],
) *Task {
	t := &Task{
		taskID:  req.Task.ID,
		pilotID: req.Task.PilotID,
		spec:    &req.Spec,
		devices: req.Task.Devices,
		log: logrus.WithFields(logrus.Fields{
			"component": "task",
			"task-id":   req.Task.ID,
		}),
		runtime: runtime,
		stager:  stager,
		pub:     pub,
		state:   req.Task.State,
		signals: make(chan syscall.Signal, 32),
		done:    make(chan struct{}),

		wg: waitgroupx.WithContext(context.Background()),
	}

	t.wg.Go(func(ctx context.Context) {
		defer t.wg.Cancel()
		t.finalize(ctx, t.run(ctx))
	})

	go func() {
		t.wg.Wait()
		close(t.done)
	}()

	return t
}

// Summary returns a snapshot of the task state.
func (t *Task) Summary() tproto.Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summary()
}

// Detach the monitoring loops, abandoning the payload process.
func (t *Task) Detach() {
	t.log.Trace("detach called")
	t.wg.Cancel()
	t.Wait()
}

// Close the task by killing its payload and awaiting its exit.
func (t *Task) Close() {
	t.log.Trace("close called")
	t.Signal(context.TODO(), syscall.SIGKILL)
	t.Wait()
}

// Signal asynchronously delivers the signal. Delivery failures are surfaced in logs.
func (t *Task) Signal(ctx context.Context, s syscall.Signal) {
	select {
	case t.signals <- s:
	case <-ctx.Done():
		t.log.Warnf("ignoring signal on task due to cancellation: %v", s)
	default:
		t.log.Warnf("ignoring signal on task with too many pending signals: %v", s)
	}
}

// Wait until the task exits. Always returns a TaskStateChanged unless canceled
// by Detach.
func (t *Task) Wait() *wproto.TaskStateChanged {
	<-t.done
	return t.exit
}

// run the task. If the context is canceled, the task is detached as is and the
// context error is returned. If the task is killed before the payload starts,
// run is canceled and an abort is returned. Once the payload is started, run
// just monitors it until it exits.
func (t *Task) run(parent context.Context) (err error) {
	t.log.Trace("entering run")
	ctx, cancel := context.WithCancel(parent) // run-scoped cancellable context.
	defer cancel()

	killed := atomic.NewBool(false)
	defer func() {
		if killed.Load() {
			t.log.Trace("converting error to task aborted, since we were killed")
			err = &wproto.TaskFailure{
				FailureType: wproto.TaskAborted,
				ErrMsg:      fmt.Sprintf("task killed before the payload started: %v", err),
			}
		}
	}()

	// Until the payload is started, just catch kill signals, note it, and cancel run.
	t.log.Trace("launching signal-to-context shimmer")
	siggroup := waitgroupx.WithContext(ctx)
	siggroup.Go(func(ctx context.Context) {
		defer siggroup.Cancel()
		for {
			select {
			case signal := <-t.signals:
				switch signal {
				case syscall.SIGKILL:
					t.log.Tracef("signal %s, canceling run-scoped context", signal)
					killed.Store(true)
					cancel()
					return
				default:
					t.log.Warnf("ignoring signal other than SIGKILL %s before running", signal)
				}
			case <-ctx.Done():
				t.log.Trace("signal-to-context shimmer exited")
				return
			}
		}
	})

	t.log.Trace("staging input data in")
	if err = t.transition(ctx, tproto.Staging, nil, nil); err != nil {
		return err
	}
	if err = os.MkdirAll(t.spec.RunSpec.WorkDir, 0o755); err != nil {
		return wproto.NewTaskFailure(wproto.StageInError, err)
	}
	if err = t.stager.Download(ctx, rucio.DownloadRequest{
		DIDs: didsOf(t.spec.Inputs),
		Dir:  t.spec.RunSpec.WorkDir,
	}, t.shimStageEvents()); err != nil {
		return wproto.NewTaskFailure(wproto.StageInError, err)
	}

	t.log.Trace("starting payload process")
	if err = t.transition(ctx, tproto.Starting, nil, nil); err != nil {
		return err
	}
	payload, err := t.runtime.StartPayload(ctx, proc.Spec{
		Command: t.spec.RunSpec.Command,
		Env:     t.spec.RunSpec.Env,
		WorkDir: t.spec.RunSpec.WorkDir,
	}, t.shimProcEvents())
	if err != nil {
		return err
	}
	t.spec = nil // Evict the spec from memory due to their potential memory consumption.

	// Ensure we don't miss kill signals received after StartPayload but before
	// we stopped shimming them to context cancellations.
	t.log.Trace("joining signal-to-context shimmer")
	siggroup.Close()
	if killed.Load() {
		t.log.Trace("killing payload started while we were being canceled")
		if sErr := t.runtime.SignalPayload(ctx, payload.PID, syscall.SIGKILL); sErr != nil {
			t.log.WithError(sErr).Debug("couldn't clean up payload")
		}
	}
	killed.Store(false)

	if err := t.running(ctx, wproto.TaskStarted{
		PID:       payload.PID,
		StartTime: payload.StartTime,
	}); err != nil {
		return err
	}

	return t.wait(ctx, payload)
}

func (t *Task) wait(ctx context.Context, payload *proc.Payload) error {
	t.log.Trace("in monitoring loop")
	for {
		select {
		case exit := <-payload.Waiter.Exits:
			t.log.Trace("payload exited")
			if failure := wproto.NewTaskExit(wproto.ExitCode(exit.Code)); failure != nil {
				return failure
			}
			return nil

		case err := <-payload.Waiter.Errs:
			t.log.Trace("payload waiter failed")
			return fmt.Errorf("failed while waiting for payload to exit: %w", err)

		case signal := <-t.signals:
			t.log.Tracef("payload signaled: %s", signal)
			if err := t.runtime.SignalPayload(ctx, payload.PID, signal); err != nil {
				t.log.WithError(err).Errorf(
					"failed to signal %v with %v", payload.PID, signal,
				)
			}

		case <-ctx.Done():
			t.log.Trace("task context canceled")
			return ctx.Err()
		}
	}
}

func (t *Task) finalize(ctx context.Context, err error) {
	t.log.Trace("finalizing task exit")
	if ctx.Err() != nil {
		// There is a chance that cancellation and some other error raced,
		// meaning we have a valid error and a canceled context. In this case,
		// we just go ahead with the detach flow.
		t.log.
			WithError(err).
			WithField("ctx-err", ctx.Err()).
			Warnf("orphaning task")
		return
	}

	var stop wproto.TaskStopped
	switch err := err.(type) {
	case nil:
		stop = wproto.TaskStopped{Failure: nil}
	case *wproto.TaskFailure:
		stop = wproto.TaskStopped{Failure: err}
	default:
		stop = wproto.TaskErrorStopped(err)
	}

	if err := t.terminated(ctx, stop); err != nil {
		t.log.WithError(err).Error("finalizing task")
	}
}

func (t *Task) summary() tproto.Task {
	devices := make([]device.Device, len(t.devices))
	copy(devices, t.devices)
	return tproto.Task{
		ID:      t.taskID,
		PilotID: t.pilotID,
		State:   t.state,
		Devices: devices,
	}
}

func (t *Task) transition(
	ctx context.Context,
	state tproto.State,
	start *wproto.TaskStarted,
	stop *wproto.TaskStopped,
) error {
	t.mu.Lock()
	t.log.WithField("stop", stop).Infof("transitioning state from %s to %s", t.state, state)
	next, err := t.summary().Transition(state)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = next.State
	tsc := &wproto.TaskStateChanged{
		Task:        t.summary(),
		TaskStarted: start,
		TaskStopped: stop,
	}
	if t.state == tproto.Terminated {
		t.exitOnce.Do(func() { t.exit = tsc })
	}
	t.mu.Unlock()

	return t.pub.Publish(ctx, Event{StateChange: tsc})
}

func (t *Task) running(ctx context.Context, start wproto.TaskStarted) error {
	return t.transition(ctx, tproto.Running, &start, nil)
}

func (t *Task) terminated(ctx context.Context, stop wproto.TaskStopped) error {
	return t.transition(ctx, tproto.Terminated, nil, &stop)
}

func (t *Task) shimProcEvents() events.Publisher[proc.Event] {
	return events.FuncPublisher[proc.Event](func(ctx context.Context, e proc.Event) error {
		switch {
		case e.Log != nil:
			return t.pub.Publish(ctx, Event{Log: &wproto.TaskLog{
				TaskID:    t.taskID,
				Timestamp: e.Log.Timestamp,
				Level:     &e.Log.Level,
				StdType:   e.Log.StdType,
				Message:   e.Log.Message,
			}})

		default:
			panic(fmt.Sprintf("unsupported payload event: %+v", e))
		}
	})
}

func (t *Task) shimStageEvents() events.Publisher[rucio.Event] {
	return events.FuncPublisher[rucio.Event](func(ctx context.Context, e rucio.Event) error {
		switch {
		case e.Log != nil:
			return t.pub.Publish(ctx, Event{Log: &wproto.TaskLog{
				TaskID:    t.taskID,
				Timestamp: e.Log.Timestamp,
				Level:     &e.Log.Level,
				StdType:   proc.StdoutType,
				Message:   e.Log.Message,
			}})

		case e.Stats != nil:
			return t.pub.Publish(ctx, Event{StatsRecord: &wproto.TaskStatsRecord{
				EndStats:  e.Stats.EndTime != nil,
				TaskID:    t.taskID,
				Kind:      e.Stats.Kind,
				StartTime: e.Stats.StartTime,
				EndTime:   e.Stats.EndTime,
			}})

		default:
			panic(fmt.Sprintf("unsupported stage-in event: %+v", e))
		}
	})
}

func didsOf(refs []tproto.DataRef) []string {
	dids := make([]string, 0, len(refs))
	for _, ref := range refs {
		dids = append(dids, ref.DID)
	}
	return dids
}
