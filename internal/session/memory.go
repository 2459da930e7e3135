package session

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	pending map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]Ticket),
		pending: make(map[string]string),
	}
}

func (m *MemoryStore) Open(ctx context.Context, t Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLocked(t.SessionID, t.CreatedAt)
	t.Resolution = Pending
	m.tickets[t.ID] = t
	if t.SessionID != "" {
		m.pending[t.SessionID] = t.ID
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) Pending(ctx context.Context, sessionID string) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.pending[sessionID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return m.tickets[id], nil
}

func (m *MemoryStore) Resolve(ctx context.Context, id string, res Resolution, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if t.Resolution != Pending {
		return ErrNotPending
	}
	t.Resolution = res
	t.ResolvedAt = at
	m.tickets[id] = t
	if m.pending[t.SessionID] == id {
		delete(m.pending, t.SessionID)
	}
	return nil
}

func (m *MemoryStore) Reopen(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if t.Resolution != Accepted {
		return ErrNotReopenable
	}
	if _, busy := m.pending[t.SessionID]; busy && t.SessionID != "" {
		return ErrNotReopenable
	}
	t.Resolution = Pending
	t.ResolvedAt = time.Time{}
	m.tickets[id] = t
	if t.SessionID != "" {
		m.pending[t.SessionID] = id
	}
	return nil
}

func (m *MemoryStore) Supersede(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supersedeLocked(sessionID, at)
	return nil
}

func (m *MemoryStore) Purge(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, t := range m.tickets {
		if t.ExpiresAt.Before(before) {
			delete(m.tickets, id)
			if m.pending[t.SessionID] == id {
				delete(m.pending, t.SessionID)
			}
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) supersedeLocked(sessionID string, at time.Time) {
	if sessionID == "" {
		return
	}
	id, ok := m.pending[sessionID]
	if !ok {
		return
	}
	t := m.tickets[id]
	t.Resolution = Superseded
	t.ResolvedAt = at
	m.tickets[id] = t
	delete(m.pending, sessionID)
}
