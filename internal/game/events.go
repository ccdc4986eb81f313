package game

import (
	"fmt"
	"time"

	"github.com/coder/quartz"
)

// DefaultEventLimit is how many log entries a session retains.
const DefaultEventLimit = 50

// Event is a human readable entry in a session's log.
type Event struct {
	Timestamp time.Time
	Message   string
}

// EventLog keeps the newest limit events.
type EventLog struct {
	limit  int
	clock  quartz.Clock
	events []Event
}

// NewEventLog creates a log that timestamps entries with clock.
func NewEventLog(limit int, clock quartz.Clock) *EventLog {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return &EventLog{limit: limit, clock: clock}
}

// Addf appends a formatted entry, evicting the oldest past the limit.
func (l *EventLog) Addf(format string, args ...any) {
	l.events = append(l.events, Event{
		Timestamp: l.clock.Now(),
		Message:   fmt.Sprintf(format, args...),
	})
	if over := len(l.events) - l.limit; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
}

// Recent returns a copy of the newest n entries, oldest first. n <= 0 returns
// everything retained.
func (l *EventLog) Recent(n int) []Event {
	start := 0
	if n > 0 && len(l.events) > n {
		start = len(l.events) - n
	}
	out := make([]Event, len(l.events)-start)
	copy(out, l.events[start:])
	return out
}

// Len is the number of retained entries.
func (l *EventLog) Len() int {
	return len(l.events)
}

// Reset drops every entry.
func (l *EventLog) Reset() {
	l.events = nil
}
