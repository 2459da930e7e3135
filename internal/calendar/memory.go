package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bobuk/gcalbook/internal/contact"
)

// MemoryProvider keeps events in process. Creation checks for overlaps
// under its own lock, so it behaves like a backend with atomic
// conditional writes.
type MemoryProvider struct {
	mu     sync.Mutex
	events map[string]Appointment
	newID  func() string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		events: make(map[string]Appointment),
		newID:  uuid.NewString,
	}
}

func (m *MemoryProvider) AtomicCreate() bool { return true }

func (m *MemoryProvider) ListEvents(ctx context.Context, r TimeRange) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, ev := range m.events {
		if ev.Active() && ev.Range.Overlaps(r) {
			result = append(result, ev)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryProvider) FindEvents(ctx context.Context, key contact.Key, r TimeRange) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, ev := range m.events {
		if ev.Range.Overlaps(r) && key.Matches(ev.Email, ev.Phone) {
			result = append(result, ev)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryProvider) CreateEvent(ctx context.Context, a Appointment) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !a.Range.Valid() {
		return Appointment{}, fmt.Errorf("invalid range %s", a.Range)
	}
	if m.overlapsLocked(a.Range, "") {
		return Appointment{}, ErrConflict
	}
	a.ID = m.newID()
	a.Status = StatusActive
	a.Link = "memory://events/" + a.ID
	m.events[a.ID] = a
	return a, nil
}

func (m *MemoryProvider) UpdateEvent(ctx context.Context, eventID string, r TimeRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok || !ev.Active() {
		return ErrNotFound
	}
	if m.overlapsLocked(r, eventID) {
		return ErrConflict
	}
	ev.Range = r
	m.events[eventID] = ev
	return nil
}

func (m *MemoryProvider) CancelEvent(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	ev.Status = StatusCancelled
	m.events[eventID] = ev
	return nil
}

// Get returns a copy of a stored event.
func (m *MemoryProvider) Get(eventID string) (Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	return ev, ok
}

// All returns every stored event, cancelled ones included.
func (m *MemoryProvider) All() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Appointment, 0, len(m.events))
	for _, ev := range m.events {
		result = append(result, ev)
	}
	sortByStart(result)
	return result
}

func (m *MemoryProvider) overlapsLocked(r TimeRange, skipID string) bool {
	for id, ev := range m.events {
		if id != skipID && ev.Active() && ev.Range.Overlaps(r) {
			return true
		}
	}
	return false
}

func sortByStart(events []Appointment) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Range.Start.Before(events[j].Range.Start)
	})
}
