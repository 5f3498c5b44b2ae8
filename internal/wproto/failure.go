package wproto

import (
	"fmt"
)

// ExitCode is the process exit code of a payload.
type ExitCode int

// SuccessExitCode is the only exit code that counts as a successful task.
const SuccessExitCode = 0

// FailureType denotes the category of a task failure.
type FailureType string

const (
	// TaskFailed denotes that the payload ran and exited non-zero.
	TaskFailed FailureType = "task_failed"
	// TaskAborted denotes that the task was canceled before the payload finished.
	TaskAborted FailureType = "task_aborted"
	// TaskError denotes that the pilot hit an unexpected error while handling the task.
	TaskError FailureType = "task_error"
	// StageInError denotes that downloading the task's input data failed.
	StageInError FailureType = "stage_in_error"
	// TaskMissing denotes that the pilot was asked about a task it does not know.
	TaskMissing FailureType = "task_missing"
	// RestoreError denotes that a task could not be recovered after a scheduler blip.
	RestoreError FailureType = "restore_error"
)

// TaskFailure explains why a task did not complete successfully.
type TaskFailure struct {
	FailureType FailureType
	ErrMsg      string
	ExitCode    *ExitCode
}

// Error implements the error interface.
func (f TaskFailure) Error() string {
	if f.ExitCode == nil {
		return fmt.Sprintf("%s: %s", f.FailureType, f.ErrMsg)
	}
	return fmt.Sprintf("%s: %s (exit code %d)", f.FailureType, f.ErrMsg, *f.ExitCode)
}

// NewTaskFailure wraps an error as a task failure of the given type. A nil
// error returns nil so it can be used unconditionally on exit paths.
func NewTaskFailure(failureType FailureType, err error) *TaskFailure {
	if err == nil {
		return nil
	}
	return &TaskFailure{
		FailureType: failureType,
		ErrMsg:      err.Error(),
	}
}

// NewTaskExit converts a payload exit code to a task failure, or nil for a
// successful exit.
func NewTaskExit(code ExitCode) *TaskFailure {
	if code == SuccessExitCode {
		return nil
	}
	return &TaskFailure{
		FailureType: TaskFailed,
		ErrMsg:      fmt.Sprintf("payload failed with non-zero exit code: %d", code),
		ExitCode:    &code,
	}
}

// TaskErrorStopped is a shorthand for a TaskStopped caused by an unexpected
// pilot-side error.
func TaskErrorStopped(err error) TaskStopped {
	return TaskStopped{Failure: NewTaskFailure(TaskError, err)}
}
