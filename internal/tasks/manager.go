// Package tasks manages the set of tasks assigned to the pilot. It is able to
// start and signal them and tracks some updates to their state.
package tasks

import (
	"container/ring"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/pilotx/pilotx/internal/device"
	"github.com/pilotx/pilotx/internal/options"
	"github.com/pilotx/pilotx/internal/task"
	"github.com/pilotx/pilotx/internal/tproto"
	"github.com/pilotx/pilotx/internal/wproto"
	"github.com/pilotx/pilotx/pkg/events"
	"github.com/pilotx/pilotx/pkg/syncx/waitgroupx"
)

// RecentExitsCacheSize is the number of cached stops we keep, before
// forgetting about them.
const RecentExitsCacheSize = 32

// Manager manages tasks. It is able to start and signal them and tracks some
// updates to their state.
type Manager struct {
	// Configuration details. Set in initialization and never modified after.
	opts    options.PilotOptions
	devices []device.Device

	// System dependencies. Also set in initialization and never modified after.
	log     *log.Entry
	runtime task.PayloadRuntime
	stager  task.Stager
	pub     events.Publisher[task.Event]

	// Internal state. Access should be protected.
	tasks       map[tproto.ID]*task.Task
	recentExits *ring.Ring
	wg          waitgroupx.Group
	mu          sync.RWMutex
}

// New returns a new task manager.
func New(
	opts options.PilotOptions,
	devices []device.Device,
	runtime task.PayloadRuntime,
	stager task.Stager,
	pub events.Publisher[task.Event],
) (*Manager, error) {
	return &Manager{
		opts:        opts,
		devices:     devices,
		log:         log.WithField("component", "task-manager"),
		runtime:     runtime,
		stager:      stager,
		pub:         pub,
		tasks:       make(map[tproto.ID]*task.Task),
		recentExits: ring.New(RecentExitsCacheSize),
		wg:          waitgroupx.WithContext(context.Background()), // Manager-scoped group.
	}, nil
}

// RevalidateTasks rectifies a list of tasks the manager is expected to know
// about with what the manager does know about, and returns updates about the
// expected tasks. Payload processes do not survive a pilot restart, so after
// one every expected task resolves to its cached exit or a missing failure.
func (m *Manager) RevalidateTasks(
	ctx context.Context, expectedSurvivors []tproto.Task,
) ([]wproto.TaskRevalidateAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]wproto.TaskRevalidateAck, 0, len(expectedSurvivors))
	for _, expectedSurvivor := range expectedSurvivors {
		tid := expectedSurvivor.ID

		// If the task is still there, assume nothing has changed.
		t, ok := m.tasks[tid]
		if ok {
			result = append(result, wproto.TaskRevalidateAck{Task: t.Summary()})
			continue
		}

		// If there is a termination message for it, for any reason, go ahead
		// and ack that.
		var ack *wproto.TaskRevalidateAck
		m.recentExits.Do(func(v any) {
			if v == nil {
				return
			}

			savedStop := v.(*wproto.TaskStateChanged)
			if tid != savedStop.Task.ID {
				return
			}

			ack = &wproto.TaskRevalidateAck{
				Task:    savedStop.Task,
				Failure: savedStop.TaskStopped.Failure,
			}
		})
		if ack != nil {
			result = append(result, *ack)
			continue
		}

		// Else fall back to a missing message.
		result = append(result, wproto.TaskRevalidateAck{
			Task: tproto.Task{ID: tid},
			Failure: &wproto.TaskFailure{
				FailureType: wproto.RestoreError,
				ErrMsg:      "failed to restore task on scheduler blip",
			},
		})
	}
	return result, nil
}

// StartTask starts a task according to the provided spec, relaying its state
// changes via events.
func (m *Manager) StartTask(ctx context.Context, req wproto.StartTask) error {
	m.log.Tracef("starting task %s", req.Task.ID)
	if !validateDevices(m.devices, req.Task.Devices) {
		return fmt.Errorf("devices specified in task spec not found on pilot")
	}

	req.Spec = overwriteSpec(req.Spec, req.Task, m.opts)

	m.mu.Lock()
	if m.tasks[req.Task.ID] != nil {
		m.mu.Unlock()
		return fmt.Errorf("task already created: %s", req.Task.ID)
	}
	t := task.Start(req, m.runtime, m.stager, m.pub)
	m.tasks[req.Task.ID] = t
	m.mu.Unlock()

	m.wg.Go(func(_ context.Context) {
		exit := t.Wait()
		m.mu.Lock()
		if exit != nil {
			m.recentExits = m.recentExits.Prev()
			m.recentExits.Value = exit
		}
		delete(m.tasks, req.Task.ID)
		m.mu.Unlock()
	})
	return nil
}

// SignalTask signals a task.
func (m *Manager) SignalTask(ctx context.Context, msg wproto.SignalTask) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[msg.TaskID]
	if !ok {
		exit := m.recentExit(msg.TaskID, task.ErrMissing)
		m.log.Warnf("resending stop for missing task: %v", exit)
		if err := m.pub.Publish(ctx, task.Event{StateChange: exit}); err != nil {
			m.log.WithError(err).Errorf("failed to resend stop")
		}
		return
	}

	t.Signal(ctx, msg.Signal)
}

// TaskSummaries returns a snapshot of every managed task.
func (m *Manager) TaskSummaries() []tproto.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]tproto.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		summaries = append(summaries, t.Summary())
	}
	return summaries
}

// Detach from all running tasks without affecting them.
func (m *Manager) Detach() {
	m.mu.RLock()
	for _, t := range m.tasks {
		t := t
		m.wg.Go(func(_ context.Context) {
			t.Detach()
		})
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

// Close all managed tasks by sending them a SIGKILL and wait for them to close.
func (m *Manager) Close() {
	m.mu.RLock()
	for _, t := range m.tasks {
		t := t
		m.wg.Go(func(_ context.Context) {
			t.Close()
		})
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

// NumTasks returns the number of tasks being managed.
func (m *Manager) NumTasks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

func (m *Manager) recentExit(
	tid tproto.ID,
	fallback *wproto.TaskFailure,
) *wproto.TaskStateChanged {
	var stop *wproto.TaskStateChanged
	m.recentExits.Do(func(v any) {
		if v == nil {
			return
		}

		savedStop := v.(*wproto.TaskStateChanged)
		if tid != savedStop.Task.ID {
			return
		}
		stop = savedStop
	})

	if stop != nil {
		return stop
	}
	return &wproto.TaskStateChanged{
		Task: tproto.Task{
			ID:    tid,
			State: tproto.Terminated,
		},
		TaskStopped: &wproto.TaskStopped{
			Failure: fallback,
		},
	}
}

// overwriteSpec fills in the parts of the task spec the pilot owns: the task
// working directory under the shared filesystem root and the pilot-provided
// environment.
func overwriteSpec(
	spec tproto.Spec, t tproto.Task, opts options.PilotOptions,
) tproto.Spec {
	if !filepath.IsAbs(spec.RunSpec.WorkDir) {
		spec.RunSpec.WorkDir = filepath.Join(opts.WorkDir, spec.RunSpec.WorkDir)
	}
	if spec.RunSpec.WorkDir == opts.WorkDir {
		spec.RunSpec.WorkDir = filepath.Join(opts.WorkDir, t.ID.String())
	}

	spec.RunSpec.Env = append(spec.RunSpec.Env,
		task.PilotIDEnvVar+"="+opts.PilotID,
		task.TaskIDEnvVar+"="+t.ID.String(),
		task.SchedulerIPEnvVar+"="+opts.SchedulerHost,
	)
	return spec
}

func validateDevices(available, requested []device.Device) bool {
	for _, d := range requested {
		if !containsDevice(available, d) {
			return false
		}
	}
	return true
}

func containsDevice(ds []device.Device, d device.Device) bool {
	for _, candidate := range ds {
		if candidate.ID == d.ID && candidate.Type == d.Type {
			return true
		}
	}
	return false
}
