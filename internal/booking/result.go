package booking

import (
	"time"

	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/confirm"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

type Reason string

const (
	ReasonNoAvailability  Reason = "no-availability"
	ReasonNotFound        Reason = "not-found"
	ReasonAmbiguous       Reason = "ambiguous"
	ReasonOutOfHours      Reason = "out-of-hours"
	ReasonExpired         Reason = "expired"
	ReasonUserDeclined    Reason = "user-declined"
	ReasonParseError      Reason = "parse-error"
	ReasonBackendError    Reason = "backend-error"
	ReasonMissingFields   Reason = "missing-fields"
	ReasonUnknownService  Reason = "unknown-service"
	ReasonPastSlot        Reason = "past-slot"
	ReasonAlreadyResolved Reason = "already-resolved"
)

// Proposal is the alternative offered while a ticket is pending.
type Proposal struct {
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Confirmation is what the dialogue layer shows after a successful write.
type Confirmation struct {
	Message    string `json:"message"`
	OwnerLink  string `json:"owner_link,omitempty"`
	PublicLink string `json:"public_link,omitempty"`
}

type Result struct {
	Status       Status                `json:"status"`
	Reason       Reason                `json:"reason,omitempty"`
	Message      string                `json:"message,omitempty"`
	TicketID     string                `json:"ticket_id,omitempty"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty"`
	Proposed     *Proposal             `json:"proposed,omitempty"`
	Appointment  *calendar.Appointment `json:"appointment,omitempty"`
	Confirmation *Confirmation         `json:"confirmation,omitempty"`
	// Path lists the states the operation went through.
	Path []State `json:"-"`
}

// CreateRequest carries the raw strings from the dialogue layer. In every
// request Now is the reference instant for parsing, past-slot checks and
// ticket expiry; the engine never reads the wall clock.
type CreateRequest struct {
	SessionID string
	Name      string
	Email     string
	Phone     string
	Service   string
	Date      string
	Time      string
	// Duration defaults to the engine's default duration.
	Duration time.Duration
	Now      time.Time
}

type MoveRequest struct {
	SessionID string
	Email     string
	Phone     string
	Date      string
	Time      string
	// Duration defaults to the length of the appointment being moved.
	Duration time.Duration
	Now      time.Time
}

type CancelRequest struct {
	SessionID string
	Email     string
	Phone     string
	Now       time.Time
}

type ResolveRequest struct {
	TicketID string
	Decision confirm.Decision
	Now      time.Time
}
