package realtime

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/domain"
)

// DefaultEventCap bounds how many events are retained per session.
// Clients that fall further behind must fall back to a full-state fetch.
const DefaultEventCap = 100

// EventLog is an append-only, capped, per-session sequence of outbound
// notifications. IDs are dense and monotonic; rotation discards the oldest
// entries but never renumbers survivors.
type EventLog struct {
	mu     sync.RWMutex
	cap    int
	nextID int64
	events []domain.Event
	clock  clockwork.Clock
}

func NewEventLog(capacity int, clock clockwork.Clock) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCap
	}
	return &EventLog{cap: capacity, clock: clock}
}

// Append assigns the next sequence ID and enqueue timestamp, stores the
// event and returns it. Oldest entries rotate out past the cap.
func (l *EventLog) Append(evt domain.Event) domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	evt.ID = l.nextID
	evt.Timestamp = l.clock.Now()
	l.nextID++

	l.events = append(l.events, evt)
	if len(l.events) > l.cap {
		l.events = append(l.events[:0:0], l.events[len(l.events)-l.cap:]...)
	}
	return evt
}

// Since returns the retained events with ID greater than sinceID, filtered
// and personalized for the given recipient, plus the ID of the newest
// retained event (0 when the log is empty). The returned slice is always a
// contiguous, order-preserving suffix of what was appended.
func (l *EventLog) Since(sinceID int64, role domain.Role, recipientID string) ([]domain.Event, int64) {
	l.mu.RLock()
	retained := l.events
	l.mu.RUnlock()

	var lastID int64
	if n := len(retained); n > 0 {
		lastID = retained[n-1].ID
	}

	out := make([]domain.Event, 0, len(retained))
	for _, evt := range retained {
		if evt.ID <= sinceID {
			continue
		}
		if !visibleTo(evt, role) {
			continue
		}
		out = append(out, evt.Personalized(role, recipientID))
	}
	return out, lastID
}

// LastID returns the ID of the newest retained event, or 0 when empty.
func (l *EventLog) LastID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return 0
	}
	return l.events[len(l.events)-1].ID
}

func visibleTo(evt domain.Event, role domain.Role) bool {
	if evt.HostOnly && role != domain.RoleHost {
		return false
	}
	if evt.ExcludeObservers && role == domain.RoleObserver {
		return false
	}
	return true
}
