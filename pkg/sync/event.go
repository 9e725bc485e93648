package sync

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// EventKind is the outcome of synchronizing a single entry.
type EventKind int

const (
	// Created means the entry didn't exist in the replica, and was copied.
	Created EventKind = iota

	// UpToDate means the replica already matched the source.
	UpToDate

	// Updated means the replica differed from the source, and was replaced.
	Updated

	// Deleted means the entry only existed in the replica, and was removed.
	Deleted

	// Error means the entry couldn't be synchronized. It's retried during the
	// next cycle.
	Error
)

func (kind EventKind) String() string {
	switch kind {
	case Created:
		return "created"
	case UpToDate:
		return "up-to-date"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Label returns the name shown for the event in logs, e.g. UP_TO_DATE.
func (kind EventKind) Label() string {
	return strings.ToUpper(strings.Replace(kind.String(), "-", "_", -1))
}

// Event describes what happened to a single path during synchronization.
type Event struct {
	Kind EventKind

	// Path is relative to the source and replica roots. The one exception is
	// the event for creating the replica root, which holds the replica path.
	Path string

	// Err is only set for Error events.
	Err error
}

// EventSink consumes the events emitted while synchronizing.
type EventSink interface {
	Handle(Event)
}

// SinkFunc is an adapter to allow the use of ordinary functions as event
// sinks.
type SinkFunc func(Event)

// Handle calls f(event).
func (f SinkFunc) Handle(event Event) {
	f(event)
}

// EventField is the log field that LogSink stores the event label in.
const EventField = "event"

// LogSink writes events to a logger. Errors are logged at the error level, and
// everything else at the info level.
type LogSink struct {
	Log logrus.FieldLogger
}

// Handle implements EventSink.
func (sink LogSink) Handle(event Event) {
	entry := sink.Log.WithField(EventField, event.Kind.Label())
	if event.Kind == Error {
		entry.WithError(event.Err).Error(event.Path)
		return
	}
	entry.Info(event.Path)
}

// Summary counts the events emitted during one synchronization.
type Summary struct {
	Created  int
	UpToDate int
	Updated  int
	Deleted  int
	Errors   int
}

func (summary *Summary) add(kind EventKind) {
	switch kind {
	case Created:
		summary.Created++
	case UpToDate:
		summary.UpToDate++
	case Updated:
		summary.Updated++
	case Deleted:
		summary.Deleted++
	case Error:
		summary.Errors++
	}
}

// Fields returns the summary in a form that can be attached to a log entry.
func (summary Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"created":  summary.Created,
		"upToDate": summary.UpToDate,
		"updated":  summary.Updated,
		"deleted":  summary.Deleted,
		"errors":   summary.Errors,
	}
}
