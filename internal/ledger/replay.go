package ledger

import "time"

type EventType string

const (
	EventCompleted   EventType = "COMPLETED"
	EventUncompleted EventType = "UNCOMPLETED"
)

// Event is one entry of a user's completion log.
type Event struct {
	Type EventType
	At   time.Time
}

// Replay folds a completion log, oldest first, into a snapshot.
// Unknown event types are skipped.
func Replay(events []Event) Stats {
	var s Stats
	for _, e := range events {
		switch e.Type {
		case EventCompleted:
			s = ApplyCompletion(s, e.At)
		case EventUncompleted:
			s = ApplyUncompletion(s)
		}
	}
	return s
}
