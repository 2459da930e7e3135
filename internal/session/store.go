// Package session persists confirmation tickets: operations suspended
// while waiting for a yes/no from the user.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/bobuk/gcalbook/internal/calendar"
)

var (
	ErrNotFound   = errors.New("ticket not found")
	ErrNotPending = errors.New("ticket is not pending")
	// ErrNotReopenable means the ticket is not accepted, or its session
	// already has a newer pending ticket.
	ErrNotReopenable = errors.New("ticket cannot be reopened")
)

type Resolution string

const (
	Pending    Resolution = "pending"
	Accepted   Resolution = "accepted"
	Rejected   Resolution = "rejected"
	Expired    Resolution = "expired"
	Superseded Resolution = "superseded"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindMove   Kind = "move"
)

// Operation is everything needed to resume a suspended booking step.
type Operation struct {
	Kind     Kind          `json:"kind"`
	Name     string        `json:"name,omitempty"`
	Email    string        `json:"email,omitempty"`
	Phone    string        `json:"phone,omitempty"`
	Service  string        `json:"service,omitempty"`
	Date     string        `json:"date,omitempty"`
	Time     string        `json:"time,omitempty"`
	Duration time.Duration `json:"duration"`
	// EventID is the appointment being moved.
	EventID string `json:"event_id,omitempty"`
	// Attempt counts searches already spent on this request.
	Attempt int `json:"attempt"`
}

type Ticket struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	Operation  Operation          `json:"operation"`
	Proposed   calendar.TimeRange `json:"proposed"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
	Resolution Resolution         `json:"resolution"`
	ResolvedAt time.Time          `json:"resolved_at,omitempty"`
}

// ExpiredAt reports whether a still pending ticket has run out of time at
// now.
func (t Ticket) ExpiredAt(now time.Time) bool {
	return t.Resolution == Pending && !now.Before(t.ExpiresAt)
}

// Store implementations must make Open and Resolve atomic: Open
// supersedes any other pending ticket of the session, and Resolve only
// succeeds for a ticket that is still pending.
type Store interface {
	Open(ctx context.Context, t Ticket) error
	Get(ctx context.Context, id string) (Ticket, error)
	// Pending returns the pending ticket of a session or ErrNotFound.
	Pending(ctx context.Context, sessionID string) (Ticket, error)
	// Resolve moves a pending ticket to res, returning ErrNotPending when
	// another caller resolved it first.
	Resolve(ctx context.Context, id string, res Resolution, at time.Time) error
	// Supersede marks the pending ticket of a session, if any, superseded.
	Supersede(ctx context.Context, sessionID string, at time.Time) error
	// Reopen moves an accepted ticket back to pending when the write it
	// authorized failed.
	Reopen(ctx context.Context, id string) error
	// Purge deletes tickets that expired before the given instant and
	// returns how many were removed.
	Purge(ctx context.Context, before time.Time) (int, error)
	Close() error
}
