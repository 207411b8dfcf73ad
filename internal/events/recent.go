package events

import (
	"sync"
	"time"
)

// Record is one observed event retained for the recent-events API.
type Record struct {
	Kind     string    `json:"kind"`
	Event    Event     `json:"event"`
	Received time.Time `json:"received"`
}

// Recent subscribes to every event type on a bus and keeps the newest
// entries in a ring, so the API can expose lifecycle history without a
// streaming transport.
type Recent struct {
	mu      sync.RWMutex
	entries []Record
	head    int
	count   int

	unsubscribers []func()
}

// NewRecent creates a recorder over bus holding up to size events.
func NewRecent(bus *Bus, size int) *Recent {
	if size <= 0 {
		size = 256
	}
	r := &Recent{entries: make([]Record, size)}

	r.unsubscribers = []func(){
		bus.Subscribe(func(e StreamConnectedEvent) { r.record(e) }),
		bus.Subscribe(func(e StreamDisconnectedEvent) { r.record(e) }),
		bus.Subscribe(func(e StreamReconnectingEvent) { r.record(e) }),
		bus.Subscribe(func(e RecordingStartedEvent) { r.record(e) }),
		bus.Subscribe(func(e RecordingStoppedEvent) { r.record(e) }),
		bus.Subscribe(func(e IngestStoppedEvent) { r.record(e) }),
		bus.Subscribe(func(e DetectionSampleEvent) { r.record(e) }),
	}
	return r
}

// Close unsubscribes from the bus. Already recorded events stay readable.
func (r *Recent) Close() {
	for _, unsub := range r.unsubscribers {
		unsub()
	}
	r.unsubscribers = nil
}

func (r *Recent) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = Record{
		Kind:     Kind(ev),
		Event:    ev,
		Received: time.Now(),
	}
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// ReadRecent returns up to n of the newest records in chronological order.
// n <= 0 returns everything retained.
func (r *Recent) ReadRecent(n int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	all := make([]Record, r.count)
	if r.count < len(r.entries) {
		copy(all, r.entries[:r.count])
	} else {
		// Oldest record sits at head once the ring has wrapped.
		m := copy(all, r.entries[r.head:])
		copy(all[m:], r.entries[:r.head])
	}

	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Count returns the number of retained records.
func (r *Recent) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Kind returns the wire name of an event's type.
func Kind(ev Event) string {
	switch ev.(type) {
	case StreamConnectedEvent:
		return "stream-connected"
	case StreamDisconnectedEvent:
		return "stream-disconnected"
	case StreamReconnectingEvent:
		return "stream-reconnecting"
	case RecordingStartedEvent:
		return "recording-started"
	case RecordingStoppedEvent:
		return "recording-stopped"
	case IngestStoppedEvent:
		return "ingest-stopped"
	case DetectionSampleEvent:
		return "detection-sample"
	}
	return "unknown"
}
