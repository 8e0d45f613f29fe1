package workflow

import "sync"

// EventKind distinguishes host events.
type EventKind int

const (
	EventOpenTab EventKind = iota
	EventAlert
)

// Event is something the host was asked to show.
type Event struct {
	Kind EventKind
	// Link is set for EventOpenTab.
	Link Link
	// Message is set for EventAlert.
	Message string
}

// IsOpenTab reports whether the event opens a document.
func (e Event) IsOpenTab() bool {
	return e.Kind == EventOpenTab
}

// EventQueue is a Host that queues events until a surface drains them,
// for surfaces that present results after the fact (a page render, a tool
// result).
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

// OpenTab queues a document to open.
func (q *EventQueue) OpenTab(link Link) {
	q.push(Event{Kind: EventOpenTab, Link: link})
}

// Alert queues an error message.
func (q *EventQueue) Alert(message string) {
	q.push(Event{Kind: EventAlert, Message: message})
}

func (q *EventQueue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// Drain returns and forgets every queued event.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}
