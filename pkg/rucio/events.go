package rucio

import "time"

// DownloadStatsKind tags stats events covering one download invocation.
const DownloadStatsKind = "RUCIO_DOWNLOAD"

// LogEntry is a single line of client output.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// StatsEntry marks the beginning or end of a transfer phase.
type StatsEntry struct {
	Kind      string
	StartTime *time.Time
	EndTime   *time.Time
}

// Event is the union of all events emitted during a transfer. Only one field
// is set per event.
type Event struct {
	Log   *LogEntry
	Stats *StatsEntry
}

// NewLogEvent returns a log event for one line of client output.
func NewLogEvent(level, message string) Event {
	return Event{Log: &LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}}
}

// NewBeginStatsEvent returns the stats event that opens a transfer phase.
func NewBeginStatsEvent(kind string) Event {
	now := time.Now().UTC()
	return Event{Stats: &StatsEntry{Kind: kind, StartTime: &now}}
}

// NewEndStatsEvent returns the stats event that closes a transfer phase.
func NewEndStatsEvent(kind string) Event {
	now := time.Now().UTC()
	return Event{Stats: &StatsEntry{Kind: kind, EndTime: &now}}
}
