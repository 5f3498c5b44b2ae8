package proc

import "time"

// Standard stream names attached to payload log events.
const (
	StdoutType = "stdout"
	StderrType = "stderr"
)

// LogEntry is a single line of payload output.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	StdType   string
	Message   string
}

// Event is the union of all events emitted while running a payload. Only one
// field is set per event.
type Event struct {
	Log *LogEntry
}

// NewLogEvent returns a log event for one line of payload output.
func NewLogEvent(stdType, message string) Event {
	return Event{Log: &LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     "INFO",
		StdType:   stdType,
		Message:   message,
	}}
}
