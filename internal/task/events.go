package task

import "github.com/pilotx/pilotx/internal/wproto"

// Event is the union of all events emitted by a task. When used, only one
// should be set.
type Event struct {
	StateChange *wproto.TaskStateChanged
	Log         *wproto.TaskLog
	StatsRecord *wproto.TaskStatsRecord
}
