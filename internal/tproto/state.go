package tproto

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/pilotx/pilotx/pkg/check"
)

// State represents the current state of a task.
type State string

func (s State) String() string {
	return string(s)
}

// Before returns whether our state comes before or is equal to another.
// Callers have an implicit assumption that states always transition in order.
func (s State) Before(other State) bool {
	ordering := []State{
		Assigned,
		Staging,
		Starting,
		Running,
		Terminated,
	}

	selfPos := slices.Index(ordering, s)
	otherPos := slices.Index(ordering, other)

	return selfPos <= otherPos
}

const (
	// Assigned state means the task has been assigned to a pilot but has not started yet.
	Assigned State = "ASSIGNED"
	// Staging state means the task's input data is being downloaded from grid storage.
	Staging State = "STAGING"
	// Starting state means the inputs are in place and the payload is being started.
	Starting State = "STARTING"
	// Running state means the payload process is running.
	Running State = "RUNNING"
	// Terminated state means the payload has exited or has been aborted.
	Terminated State = "TERMINATED"
	// Unknown state is a null value.
	Unknown State = ""
)

var validTransitions = map[State]map[State]bool{
	Assigned:   {Staging: true, Terminated: true},
	Staging:    {Starting: true, Terminated: true},
	Starting:   {Running: true, Terminated: true},
	Running:    {Terminated: true},
	Terminated: {},
	Unknown:    {},
}

func (s State) checkTransition(new State) error {
	valid, ok := validTransitions[s][new]
	return check.True(valid && ok,
		"cannot transition from %s to %s", s, new)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s State) MarshalText() (text []byte, err error) {
	return []byte(s), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *State) UnmarshalText(text []byte) error {
	parsed := State(text)
	if _, ok := validTransitions[parsed]; !ok {
		return errors.Errorf("invalid task state: %s", text)
	}
	*s = parsed
	return nil
}
