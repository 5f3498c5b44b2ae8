package task

import (
	"github.com/pilotx/pilotx/internal/wproto"
)

// ErrMissing indicates a task was missing when we tried to revalidate it after
// a restart. Payload processes do not survive the pilot, so every revalidated
// task ends up here.
var ErrMissing = &wproto.TaskFailure{
	FailureType: wproto.TaskMissing,
	ErrMsg:      "task is gone on revalidation",
}
