// Package events provides the in-process publish/subscribe hub for record
// lifecycle events. Every event name maps to exactly one payload type, so
// publishers and subscribers agree on shape at compile time.
package events

import (
	"sync"
	"time"

	"github.com/jcarville/intelsync/internal/models"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventReportCreated    EventType = "report-created"
	EventReportUpdated    EventType = "report-updated"
	EventSyncStarted      EventType = "sync-started"
	EventSyncProgress     EventType = "sync-progress"
	EventSyncCompleted    EventType = "sync-completed"
	EventConflictDetected EventType = "conflict-detected"
	EventConflictResolved EventType = "conflict-resolved"
)

// Payload is the sealed union of event payloads. Each implementation binds
// itself to one EventType.
type Payload interface {
	EventType() EventType
}

// ReportCreated is published when a record enters the store.
type ReportCreated struct {
	Record *models.OfflineRecord
}

func (ReportCreated) EventType() EventType { return EventReportCreated }

// ReportUpdated is published on every user-visible record mutation.
type ReportUpdated struct {
	Record *models.OfflineRecord
}

func (ReportUpdated) EventType() EventType { return EventReportUpdated }

// SyncStarted is published when an orchestration run begins.
type SyncStarted struct {
	Eligible int
}

func (SyncStarted) EventType() EventType { return EventSyncStarted }

// SyncProgress is published as each record enters processing.
type SyncProgress struct {
	LocalID   string
	Processed int
	Total     int
}

func (SyncProgress) EventType() EventType { return EventSyncProgress }

// SyncCompleted carries the aggregate stats of a finished run.
type SyncCompleted struct {
	Stats models.SyncStats
}

func (SyncCompleted) EventType() EventType { return EventSyncCompleted }

// ConflictDetected is published when a record collides with a remote record.
type ConflictDetected struct {
	LocalID  string
	Conflict models.ConflictInfo
}

func (ConflictDetected) EventType() EventType { return EventConflictDetected }

// ConflictResolved is published after a resolution strategy has been applied.
type ConflictResolved struct {
	LocalID  string
	Strategy models.ResolutionStrategy
	Record   *models.OfflineRecord
}

func (ConflictResolved) EventType() EventType { return EventConflictResolved }

// Event wraps a payload with its emission time.
type Event struct {
	Type    EventType
	Time    time.Time
	Payload Payload
}

// Handler receives published events. Delivery is synchronous and in
// subscription order; handlers must not block.
type Handler func(Event)

// Notifier is the in-process hub. The zero value is not usable; construct
// with NewNotifier.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType]map[uint64]Handler
	all    map[uint64]Handler
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[EventType]map[uint64]Handler),
		all:  make(map[uint64]Handler),
	}
}

// Subscribe registers a handler for one event type and returns the function
// that removes the subscription. Unsubscribing twice is harmless.
func (n *Notifier) Subscribe(t EventType, h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	if n.subs[t] == nil {
		n.subs[t] = make(map[uint64]Handler)
	}
	n.subs[t][id] = h

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[t], id)
	}
}

// SubscribeAll registers a handler for every event type. Used by bridges
// such as the websocket feed.
func (n *Notifier) SubscribeAll(h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.all[id] = h

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.all, id)
	}
}

// Publish delivers the payload to every matching subscriber.
func (n *Notifier) Publish(p Payload) {
	ev := Event{Type: p.EventType(), Time: time.Now(), Payload: p}

	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.subs[ev.Type])+len(n.all))
	for _, h := range n.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range n.all {
		handlers = append(handlers, h)
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
