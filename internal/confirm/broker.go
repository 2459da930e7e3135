// Package confirm implements the suspend/resume protocol: an operation
// that hit a conflict is parked as a ticket until the user accepts or
// rejects the proposed alternative.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/session"
)

const (
	DefaultTTL = 10 * time.Minute
	// DefaultRetention keeps expired tickets around so late answers are
	// still told they expired.
	DefaultRetention = 24 * time.Hour
)

var (
	ErrTicketNotFound  = errors.New("confirmation ticket not found")
	ErrExpired         = errors.New("confirmation ticket expired")
	ErrAlreadyResolved = errors.New("confirmation ticket already resolved")
)

type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// ParseDecision accepts the usual yes/no spellings.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted", "yes", "y", "ok", "approve":
		return Accept, nil
	case "reject", "rejected", "no", "n", "decline":
		return Reject, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

type Broker struct {
	store     session.Store
	ttl       time.Duration
	retention time.Duration
	newID     func() string
	logger    *zap.Logger
}

type Option func(*Broker)

func WithTTL(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.ttl = d
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.retention = d
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(b *Broker) { b.newID = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBroker(store session.Store, opts ...Option) *Broker {
	b := &Broker{
		store:  store,
		ttl:       DefaultTTL,
		retention: DefaultRetention,
		newID:     uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) TTL() time.Duration { return b.ttl }

// Suspend parks op with its proposed alternative. Any pending ticket of
// the same session is superseded in the same store operation.
func (b *Broker) Suspend(ctx context.Context, sessionID string, op session.Operation, proposed calendar.TimeRange, now time.Time) (session.Ticket, error) {
	t := session.Ticket{
		ID:         b.newID(),
		SessionID:  sessionID,
		Operation:  op,
		Proposed:   proposed,
		CreatedAt:  now,
		ExpiresAt:  now.Add(b.ttl),
		Resolution: session.Pending,
	}
	if err := b.store.Open(ctx, t); err != nil {
		return session.Ticket{}, fmt.Errorf("error opening ticket: %w", err)
	}
	b.logger.Info("operation suspended",
		zap.String("ticket_id", t.ID),
		zap.String("session_id", sessionID),
		zap.String("kind", string(op.Kind)),
		zap.Time("proposed", proposed.Start),
		zap.Time("expires_at", t.ExpiresAt))
	return t, nil
}

// Decide resolves a ticket. Expiry is evaluated against now, so a ticket
// past its deadline is marked expired here and ErrExpired is returned.
// The returned ticket carries the suspended operation for the caller to
// resume.
func (b *Broker) Decide(ctx context.Context, ticketID string, decision Decision, now time.Time) (session.Ticket, error) {
	t, err := b.store.Get(ctx, ticketID)
	if errors.Is(err, session.ErrNotFound) {
		return session.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return session.Ticket{}, fmt.Errorf("error loading ticket: %w", err)
	}

	if t.Resolution != session.Pending {
		if t.Resolution == session.Expired {
			return t, ErrExpired
		}
		return t, ErrAlreadyResolved
	}

	if t.ExpiredAt(now) {
		err := b.store.Resolve(ctx, t.ID, session.Expired, now)
		if err != nil && !errors.Is(err, session.ErrNotPending) {
			return t, fmt.Errorf("error expiring ticket: %w", err)
		}
		t.Resolution = session.Expired
		t.ResolvedAt = now
		b.logger.Info("ticket expired", zap.String("ticket_id", t.ID))
		return t, ErrExpired
	}

	res := session.Rejected
	if decision == Accept {
		res = session.Accepted
	}
	if err := b.store.Resolve(ctx, t.ID, res, now); err != nil {
		if errors.Is(err, session.ErrNotPending) {
			return t, ErrAlreadyResolved
		}
		return t, fmt.Errorf("error resolving ticket: %w", err)
	}
	t.Resolution = res
	t.ResolvedAt = now
	b.logger.Info("ticket resolved",
		zap.String("ticket_id", t.ID),
		zap.String("resolution", string(res)))
	return t, nil
}

// Supersede drops the session's pending ticket, if any.
func (b *Broker) Supersede(ctx context.Context, sessionID string, now time.Time) error {
	if sessionID == "" {
		return nil
	}
	return b.store.Supersede(ctx, sessionID, now)
}

// Pending returns the session's live pending ticket. A pending ticket
// whose deadline has passed is expired on the way and reported as
// ErrTicketNotFound.
func (b *Broker) Pending(ctx context.Context, sessionID string, now time.Time) (session.Ticket, error) {
	t, err := b.store.Pending(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return session.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return session.Ticket{}, err
	}
	if t.ExpiredAt(now) {
		if err := b.store.Resolve(ctx, t.ID, session.Expired, now); err != nil && !errors.Is(err, session.ErrNotPending) {
			return session.Ticket{}, err
		}
		return session.Ticket{}, ErrTicketNotFound
	}
	return t, nil
}

// Reopen puts an accepted ticket back to pending after the write it
// authorized failed, so the same answer can be retried.
func (b *Broker) Reopen(ctx context.Context, t session.Ticket) error {
	if err := b.store.Reopen(ctx, t.ID); err != nil {
		return fmt.Errorf("error reopening ticket %s: %w", t.ID, err)
	}
	b.logger.Info("ticket reopened", zap.String("ticket_id", t.ID))
	return nil
}

// Sweep deletes tickets that expired more than the retention period
// before now.
func (b *Broker) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := b.store.Purge(ctx, now.Add(-b.retention))
	if err != nil {
		return n, fmt.Errorf("error purging tickets: %w", err)
	}
	if n > 0 {
		b.logger.Info("purged tickets", zap.Int("count", n))
	}
	return n, nil
}
