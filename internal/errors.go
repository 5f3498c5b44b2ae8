package internal

import "fmt"

// SchedulerConnectionError is returned by the pilot when the websocket
// connection to the scheduler fails.
type SchedulerConnectionError struct {
	cause error
}

func (e SchedulerConnectionError) Unwrap() error {
	return e.cause
}

func (e SchedulerConnectionError) Error() string {
	return fmt.Sprintf("disconnected and unable to reconnect to scheduler: %s", e.cause.Error())
}
