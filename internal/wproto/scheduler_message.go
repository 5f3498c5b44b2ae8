// Package wproto defines the wire messages exchanged between the pilot and
// the scheduler over their websocket link. Messages are union types; exactly
// one field should be set per message.
package wproto

import (
	"syscall"

	"github.com/pilotx/pilotx/internal/tproto"
)

// SchedulerMessage is a union type for all messages sent to pilots.
type SchedulerMessage struct {
	SchedulerSetPilotOptions *SchedulerSetPilotOptions
	StartTask                *StartTask
	SignalTask               *SignalTask
}

// SchedulerInfo contains the scheduler information the pilot has connected to.
type SchedulerInfo struct {
	Version     string `json:"version"`
	SchedulerID string `json:"scheduler_id"`
	ClusterName string `json:"cluster_name"`
}

// SchedulerSetPilotOptions is the first message sent to a pilot by the
// scheduler. It carries cluster-wide settings that are not pilot specific and
// the tasks the scheduler still believes to be running on this pilot.
type SchedulerSetPilotOptions struct {
	SchedulerInfo     SchedulerInfo
	TasksToRevalidate []tproto.Task
}

// StartTask notifies the pilot to run a task with the provided spec.
type StartTask struct {
	Task tproto.Task
	Spec tproto.Spec
}

// SignalTask notifies the pilot to send the requested signal to the task.
type SignalTask struct {
	TaskID tproto.ID
	Signal syscall.Signal
}
