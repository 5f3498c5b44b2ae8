package wproto

import (
	"fmt"
	"time"

	"github.com/pilotx/pilotx/internal/device"
	"github.com/pilotx/pilotx/internal/tproto"
)

// PilotMessage is a union type for all messages sent from pilots.
type PilotMessage struct {
	PilotStarted     *PilotStarted
	TaskStateChanged *TaskStateChanged
	TaskLog          *TaskLog
	TaskStatsRecord  *TaskStatsRecord
}

// PilotStarted notifies the scheduler that the pilot has started up.
type PilotStarted struct {
	Version          string
	Devices          []device.Device
	WorkDir          string
	TasksRevalidated []TaskRevalidateAck
}

// TaskRevalidateAck describes the outcome of revalidating one task the
// scheduler believed to be running here.
type TaskRevalidateAck struct {
	Task    tproto.Task
	Failure *TaskFailure
}

// TaskStateChanged notifies the scheduler that the pilot transitioned the
// task state.
type TaskStateChanged struct {
	Task tproto.Task

	TaskStarted *TaskStarted
	TaskStopped *TaskStopped
}

// TaskStarted notifies the scheduler that the pilot has started the payload
// process for a task.
type TaskStarted struct {
	PID       int
	StartTime time.Time
}

func (t TaskStarted) String() string {
	return fmt.Sprintf("payload process %d running", t.PID)
}

// TaskStopped notifies the scheduler that a task stopped on the pilot.
type TaskStopped struct {
	Failure *TaskFailure
}

func (t TaskStopped) String() string {
	if t.Failure == nil {
		return "task exited successfully with a zero exit code"
	}
	return t.Failure.Error()
}

// TaskLog notifies the scheduler that a new log message is available for the
// task.
type TaskLog struct {
	TaskID    tproto.ID
	Timestamp time.Time
	Level     *string
	StdType   string
	Message   string
}

// TaskStatsRecord notifies the scheduler about timings of a task phase, for
// now just data stage-in.
type TaskStatsRecord struct {
	EndStats  bool
	TaskID    tproto.ID
	Kind      string
	StartTime *time.Time
	EndTime   *time.Time
}
