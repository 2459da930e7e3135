package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/bobuk/gcalbook/internal/contact"
)

var (
	ErrConflict = errors.New("slot already taken")
	ErrNotFound = errors.New("event not found")
	ErrBackend  = errors.New("calendar backend failure")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Provider is the calendar backend the booking engine writes to. The
// backend is the only source of truth for appointments.
type Provider interface {
	// ListEvents returns active events overlapping r.
	ListEvents(ctx context.Context, r TimeRange) ([]Appointment, error)
	// FindEvents returns events of any status booked under key inside r.
	FindEvents(ctx context.Context, key contact.Key, r TimeRange) ([]Appointment, error)
	// CreateEvent stores a and returns it with the backend id and link
	// filled in.
	CreateEvent(ctx context.Context, a Appointment) (Appointment, error)
	UpdateEvent(ctx context.Context, eventID string, r TimeRange) error
	CancelEvent(ctx context.Context, eventID string) error
}

// Atomic is implemented by providers that detect overlaps themselves and
// create events atomically. Engines must serialize commits against any
// provider that does not report true.
type Atomic interface {
	AtomicCreate() bool
}

// IsAtomic reports whether p guarantees atomic conflict-checked creation.
func IsAtomic(p Provider) bool {
	a, ok := p.(Atomic)
	return ok && a.AtomicCreate()
}

type Appointment struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email,omitempty"`
	Phone   string    `json:"phone,omitempty"`
	Service string    `json:"service,omitempty"`
	Range   TimeRange `json:"range"`
	Status  Status    `json:"status"`
	Link    string    `json:"link,omitempty"`
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Summary is the event title written to the backend.
func (a Appointment) Summary() string {
	if a.Service == "" {
		return a.Name
	}
	return a.Service + " - " + a.Name
}

func (a Appointment) Key() contact.Key {
	return contact.New(a.Email, a.Phone)
}

func (a Appointment) Duration() time.Duration {
	return a.Range.Duration()
}
