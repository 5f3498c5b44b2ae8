// Package tproto contains the types that describe tasks as they are shared
// between the scheduler and the pilot.
package tproto

import (
	"github.com/pilotx/pilotx/internal/device"
)

// ID is the unique ID of a task among all tasks.
type ID string

func (id ID) String() string {
	return string(id)
}

// Task tracks a single task assigned to this pilot.
type Task struct {
	ID      ID              `json:"id"`
	PilotID string          `json:"pilot_id"`
	State   State           `json:"state"`
	Devices []device.Device `json:"devices"`
}

// Transition returns a copy of the task moved to the new state, erroring on
// transitions the state machine forbids.
func (t Task) Transition(state State) (Task, error) {
	if err := t.State.checkTransition(state); err != nil {
		return t, err
	}
	t.State = state
	return t, nil
}

// DataRef identifies a dataset or file in grid storage by its scoped name.
type DataRef struct {
	// DID is the data identifier, in "scope:name" form.
	DID string `json:"did"`
}

func (d DataRef) String() string {
	return d.DID
}

// RunSpec describes how to execute a task's payload.
type RunSpec struct {
	// Command is the payload argv. The first element is the executable.
	Command []string `json:"command"`
	// Env holds KEY=VALUE pairs added to the payload environment.
	Env []string `json:"env"`
	// WorkDir overrides the task working directory under the pilot's shared
	// filesystem root. Relative paths are resolved against it.
	WorkDir string `json:"work_dir"`
}

// Spec is the full description the scheduler sends to run a task.
type Spec struct {
	TaskType string    `json:"task_type"`
	RunSpec  RunSpec   `json:"run_spec"`
	Inputs   []DataRef `json:"inputs"`
}
