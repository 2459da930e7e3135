// Package booking orchestrates create, move, cancel and the resumption of
// suspended operations against a calendar backend. Every write is
// preceded by a fresh availability check; conflicts turn into a proposed
// alternative that waits for the user's decision.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/availability"
	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/confirm"
	"github.com/bobuk/gcalbook/internal/contact"
	"github.com/bobuk/gcalbook/internal/policy"
	"github.com/bobuk/gcalbook/internal/session"
	"github.com/bobuk/gcalbook/internal/timeparse"
)

const (
	DefaultDuration      = time.Hour
	DefaultLookupHorizon = 90 * 24 * time.Hour
	DefaultService       = "General Consultation"

	// An accepted proposal that was taken meanwhile gets one more search.
	maxAttempts = 2
)

type Options struct {
	DefaultDuration time.Duration
	MaxProbe        int
	// LookupHorizon bounds how far ahead move and cancel look for the
	// customer's appointment.
	LookupHorizon time.Duration
	// Services is the accepted catalogue; empty accepts any name.
	Services       []string
	DefaultService string
	// SerializeCommits forces the final check and write under a mutex
	// even when the provider reports atomic creation.
	SerializeCommits bool
	Logger           *zap.Logger
	Tracer           trace.Tracer
}

type Engine struct {
	provider  calendar.Provider
	index     *availability.Index
	broker    *confirm.Broker
	parser    *timeparse.Parser
	policy    *policy.Policy
	opts      Options
	serialize bool
	commitMu  sync.Mutex
	logger    *zap.Logger
	tracer    trace.Tracer
}

func New(provider calendar.Provider, index *availability.Index, broker *confirm.Broker, parser *timeparse.Parser, opts Options) *Engine {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.MaxProbe <= 0 {
		opts.MaxProbe = availability.DefaultMaxProbe
	}
	if opts.LookupHorizon <= 0 {
		opts.LookupHorizon = DefaultLookupHorizon
	}
	if opts.DefaultService == "" {
		opts.DefaultService = DefaultService
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/bobuk/gcalbook/internal/booking")
	}
	return &Engine{
		provider:  provider,
		index:     index,
		broker:    broker,
		parser:    parser,
		policy:    index.Policy(),
		opts:      opts,
		serialize: opts.SerializeCommits || !calendar.IsAtomic(provider),
		logger:    opts.Logger,
		tracer:    opts.Tracer,
	}
}

func (e *Engine) Location() *time.Location      { return e.parser.Location() }
func (e *Engine) Parser() *timeparse.Parser     { return e.parser }
func (e *Engine) Broker() *confirm.Broker       { return e.broker }
func (e *Engine) Index() *availability.Index    { return e.index }
func (e *Engine) DefaultDuration() time.Duration { return e.opts.DefaultDuration }

// Serialized reports whether commits run under the engine's mutex.
func (e *Engine) Serialized() bool { return e.serialize }

// Create books a new appointment, or suspends with an alternative when
// the requested slot is taken.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.Create",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer func() { endSpan(span, res, err) }()

	r := newRun(StateValidating)
	if err := e.broker.Supersede(ctx, req.SessionID, req.Now); err != nil {
		return e.backendError(r, err)
	}

	var missing []string
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(req.Time) == "" {
		missing = append(missing, "time")
	}
	if contact.New(req.Email, req.Phone).Empty() {
		missing = append(missing, "email or phone")
	}
	if len(missing) > 0 {
		return e.reject(r, ReasonMissingFields, "Missing required field(s): "+strings.Join(missing, ", ")), nil
	}

	service, ok := e.service(req.Service)
	if !ok {
		return e.reject(r, ReasonUnknownService,
			fmt.Sprintf("Unknown service %q. Available: %s", req.Service, strings.Join(e.opts.Services, ", "))), nil
	}

	start, rejected, ok := e.parseSlot(r, req.Date, req.Time, req.Now)
	if !ok {
		return rejected, nil
	}
	d := req.Duration
	if d <= 0 {
		d = e.opts.DefaultDuration
	}

	appt := calendar.Appointment{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Service: service,
		Range:   calendar.NewRange(start, d),
	}
	op := session.Operation{
		Kind:     session.KindCreate,
		Name:     appt.Name,
		Email:    appt.Email,
		Phone:    appt.Phone,
		Service:  service,
		Date:     req.Date,
		Time:     req.Time,
		Duration: d,
		Attempt:  1,
	}

	r.to(StateChecking)
	return e.place(ctx, r, req.SessionID, op, appt, req.Now)
}

// Move shifts the customer's single upcoming appointment to a new slot,
// keeping its backend identity.
func (e *Engine) Move(ctx context.Context, req MoveRequest) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.Move",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer func() { endSpan(span, res, err) }()

	r := newRun(StateValidating)
	if err := e.broker.Supersede(ctx, req.SessionID, req.Now); err != nil {
		return e.backendError(r, err)
	}

	key := contact.New(req.Email, req.Phone)
	var missing []string
	if key.Empty() {
		missing = append(missing, "email or phone")
	}
	if strings.TrimSpace(req.Date) == "" {
		missing = append(missing, "new date")
	}
	if strings.TrimSpace(req.Time) == "" {
		missing = append(missing, "new time")
	}
	if len(missing) > 0 {
		return e.reject(r, ReasonMissingFields, "Missing required field(s): "+strings.Join(missing, ", ")), nil
	}

	start, rejected, ok := e.parseSlot(r, req.Date, req.Time, req.Now)
	if !ok {
		return rejected, nil
	}

	r.to(StateChecking)
	found, err := e.lookup(ctx, key, req.Now)
	if err != nil {
		return e.backendError(r, err)
	}
	switch len(found.active) {
	case 0:
		return e.reject(r, ReasonNotFound, fmt.Sprintf("No upcoming appointment found for %s.", key)), nil
	case 1:
	default:
		return e.reject(r, ReasonAmbiguous, ambiguousMessage(key, found.active, e.Location())), nil
	}

	existing := found.active[0]
	d := req.Duration
	if d <= 0 {
		d = existing.Duration()
	}
	appt := existing
	appt.Range = calendar.NewRange(start, d)
	op := session.Operation{
		Kind:     session.KindMove,
		Name:     existing.Name,
		Email:    existing.Email,
		Phone:    existing.Phone,
		Service:  existing.Service,
		Date:     req.Date,
		Time:     req.Time,
		Duration: d,
		EventID:  existing.ID,
		Attempt:  1,
	}
	return e.place(ctx, r, req.SessionID, op, appt, req.Now)
}

// Cancel soft-cancels the customer's single upcoming appointment. It is
// idempotent: when only cancelled appointments match, it reports success
// without touching the backend.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.Cancel",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer func() { endSpan(span, res, err) }()

	r := newRun(StateValidating)
	if err := e.broker.Supersede(ctx, req.SessionID, req.Now); err != nil {
		return e.backendError(r, err)
	}

	key := contact.New(req.Email, req.Phone)
	if key.Empty() {
		return e.reject(r, ReasonMissingFields, "Missing required field(s): email or phone"), nil
	}

	r.to(StateChecking)
	found, err := e.lookup(ctx, key, req.Now)
	if err != nil {
		return e.backendError(r, err)
	}

	switch {
	case len(found.active) == 0 && len(found.cancelled) > 0:
		a := found.cancelled[len(found.cancelled)-1]
		r.to(StateDone)
		return r.finish(Result{
			Status:      StatusApproved,
			Message:     "The appointment was already cancelled.",
			Appointment: &a,
		}), nil
	case len(found.active) == 0:
		return e.reject(r, ReasonNotFound, fmt.Sprintf("No upcoming appointment found for %s.", key)), nil
	case len(found.active) > 1:
		return e.reject(r, ReasonAmbiguous, ambiguousMessage(key, found.active, e.Location())), nil
	}

	a := found.active[0]
	r.to(StateCommitting)
	if err := e.provider.CancelEvent(ctx, a.ID); err != nil && !errors.Is(err, calendar.ErrNotFound) {
		return e.backendError(r, err)
	}
	a.Status = calendar.StatusCancelled
	r.to(StateDone)

	e.logger.Info("appointment cancelled",
		zap.String("event_id", a.ID),
		zap.Stringer("range", a.Range))
	conf := confirmation("Cancelled", a, e.Location())
	conf.PublicLink = ""
	return r.finish(Result{
		Status:       StatusApproved,
		Message:      conf.Message,
		Appointment:  &a,
		Confirmation: conf,
	}), nil
}

// ResolveConfirmation resumes a suspended operation with the user's
// decision.
func (e *Engine) ResolveConfirmation(ctx context.Context, req ResolveRequest) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.ResolveConfirmation",
		trace.WithAttributes(attribute.String("ticket.id", req.TicketID)))
	defer func() { endSpan(span, res, err) }()

	r := newRun(StateAwaitingConfirmation)
	t, err := e.broker.Decide(ctx, req.TicketID, req.Decision, req.Now)
	switch {
	case errors.Is(err, confirm.ErrTicketNotFound):
		return e.reject(r, ReasonNotFound, "No such confirmation request."), nil
	case errors.Is(err, confirm.ErrExpired):
		return e.reject(r, ReasonExpired, "The proposed slot is no longer reserved. Please start again."), nil
	case errors.Is(err, confirm.ErrAlreadyResolved):
		return e.reject(r, ReasonAlreadyResolved, "This confirmation request was already answered."), nil
	case err != nil:
		return e.backendError(r, err)
	}

	if req.Decision != confirm.Accept {
		return e.reject(r, ReasonUserDeclined, "Okay, the proposed slot was not booked."), nil
	}

	res, err = e.resume(ctx, r, t, req.Now)
	if res.Reason == ReasonBackendError {
		if rerr := e.broker.Reopen(ctx, t); rerr != nil {
			e.logger.Warn("could not reopen ticket after failed commit",
				zap.String("ticket_id", t.ID), zap.Error(rerr))
		}
	}
	return res, err
}

// resume runs the accepted operation of t against the proposed slot.
func (e *Engine) resume(ctx context.Context, r *run, t session.Ticket, now time.Time) (Result, error) {
	op := t.Operation
	appt := calendar.Appointment{
		ID:      op.EventID,
		Name:    op.Name,
		Email:   op.Email,
		Phone:   op.Phone,
		Service: op.Service,
		Range:   t.Proposed,
	}

	r.to(StateCommitting)
	stored, committed, err := e.commit(ctx, op, appt)
	if err != nil {
		return e.commitError(r, op, err)
	}
	if committed {
		r.to(StateDone)
		return e.approved(r, op, stored), nil
	}

	r.to(StateChecking)
	if op.Attempt >= maxAttempts {
		return e.reject(r, ReasonNoAvailability, "The proposed slot was taken in the meantime and no other slot is available."), nil
	}
	op.Attempt++
	e.logger.Info("accepted slot taken meanwhile, searching again",
		zap.String("ticket_id", t.ID),
		zap.Int("attempt", op.Attempt))
	return e.propose(ctx, r, t.SessionID, op, appt, now)
}

// DaySlots lists the free slots on the date named by dateExpr.
func (e *Engine) DaySlots(ctx context.Context, dateExpr string, d time.Duration, now time.Time) ([]calendar.TimeRange, error) {
	day, err := e.parser.ParseDate(dateExpr, now)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		d = e.opts.DefaultDuration
	}
	return e.index.DaySlots(ctx, day, d)
}

// place commits appt if its slot is free, otherwise proposes the next
// free slot.
func (e *Engine) place(ctx context.Context, r *run, sessionID string, op session.Operation, appt calendar.Appointment, now time.Time) (Result, error) {
	free, err := e.index.IsFree(ctx, appt.Range, op.EventID)
	if err != nil {
		return e.backendError(r, err)
	}
	if free {
		r.to(StateCommitting)
		stored, committed, err := e.commit(ctx, op, appt)
		if err != nil {
			return e.commitError(r, op, err)
		}
		if committed {
			r.to(StateDone)
			return e.approved(r, op, stored), nil
		}
		e.logger.Info("slot taken before commit", zap.Stringer("range", appt.Range))
		r.to(StateChecking)
	}
	return e.propose(ctx, r, sessionID, op, appt, now)
}

func (e *Engine) propose(ctx context.Context, r *run, sessionID string, op session.Operation, appt calendar.Appointment, now time.Time) (Result, error) {
	from := appt.Range.Start.Add(e.index.Step())
	slots, err := e.index.NextFreeSlots(ctx, from, appt.Range.Duration(), 1, e.opts.MaxProbe, op.EventID)
	if err != nil {
		return e.backendError(r, err)
	}
	requested := appt.Range.Start.In(e.Location())
	if len(slots) == 0 {
		return e.reject(r, ReasonNoAvailability, fmt.Sprintf(
			"The slot on %s at %s is taken and no alternative was found in the next %d slots.",
			requested.Format("2006-01-02"), requested.Format("15:04"), e.opts.MaxProbe)), nil
	}

	r.to(StateAwaitingConfirmation)
	t, err := e.broker.Suspend(ctx, sessionID, op, slots[0], now)
	if err != nil {
		return e.backendError(r, err)
	}
	p := proposal(slots[0], e.Location())
	expires := t.ExpiresAt
	return r.finish(Result{
		Status:    StatusPending,
		TicketID:  t.ID,
		ExpiresAt: &expires,
		Proposed:  p,
		Message: fmt.Sprintf("The slot on %s at %s is taken. The next available slot is %s at %s. Do you want it?",
			requested.Format("2006-01-02"), requested.Format("15:04"), p.Date, p.Time),
	}), nil
}

// commit re-checks the slot and writes. committed is false when the slot
// was taken between the check and the write.
func (e *Engine) commit(ctx context.Context, op session.Operation, appt calendar.Appointment) (stored calendar.Appointment, committed bool, err error) {
	if e.serialize {
		e.commitMu.Lock()
		defer e.commitMu.Unlock()
	}

	free, err := e.index.IsFree(ctx, appt.Range, op.EventID)
	if err != nil {
		return calendar.Appointment{}, false, err
	}
	if !free {
		return calendar.Appointment{}, false, nil
	}

	if op.Kind == session.KindMove {
		err := e.provider.UpdateEvent(ctx, op.EventID, appt.Range)
		if errors.Is(err, calendar.ErrConflict) {
			return calendar.Appointment{}, false, nil
		}
		if err != nil {
			return calendar.Appointment{}, false, err
		}
		appt.ID = op.EventID
		appt.Status = calendar.StatusActive
		e.logger.Info("appointment moved",
			zap.String("event_id", appt.ID),
			zap.Stringer("range", appt.Range))
		return appt, true, nil
	}

	stored, err = e.provider.CreateEvent(ctx, appt)
	if errors.Is(err, calendar.ErrConflict) {
		return calendar.Appointment{}, false, nil
	}
	if err != nil {
		return calendar.Appointment{}, false, err
	}
	e.logger.Info("appointment created",
		zap.String("event_id", stored.ID),
		zap.Stringer("range", stored.Range))
	return stored, true, nil
}

func (e *Engine) commitError(r *run, op session.Operation, err error) (Result, error) {
	if op.Kind == session.KindMove && errors.Is(err, calendar.ErrNotFound) {
		return e.reject(r, ReasonNotFound, "The appointment to move no longer exists."), nil
	}
	return e.backendError(r, err)
}

func (e *Engine) approved(r *run, op session.Operation, a calendar.Appointment) Result {
	verb := "Confirmed"
	if op.Kind == session.KindMove {
		verb = "Moved"
	}
	conf := confirmation(verb, a, e.Location())
	return r.finish(Result{
		Status:       StatusApproved,
		Message:      conf.Message,
		Appointment:  &a,
		Confirmation: conf,
	})
}

func (e *Engine) reject(r *run, reason Reason, msg string) Result {
	r.to(StateRejected)
	e.logger.Debug("request rejected",
		zap.String("reason", string(reason)),
		zap.String("message", msg))
	return r.finish(Result{Status: StatusRejected, Reason: reason, Message: msg})
}

func (e *Engine) backendError(r *run, err error) (Result, error) {
	r.to(StateRejected)
	e.logger.Error("calendar backend failure", zap.Error(err))
	return r.finish(Result{
		Status:  StatusRejected,
		Reason:  ReasonBackendError,
		Message: "The calendar is not reachable right now. Please try again.",
	}), fmt.Errorf("booking: %w", err)
}

// parseSlot turns the request's date and time into an instant that is in
// the future and inside opening hours.
func (e *Engine) parseSlot(r *run, dateExpr, timeExpr string, now time.Time) (time.Time, Result, bool) {
	start, err := e.parser.Combine(dateExpr, timeExpr, now)
	if err != nil {
		var pe *timeparse.ParseError
		reason := timeparse.ReasonUnrecognized
		if errors.As(err, &pe) {
			reason = pe.Reason
		}
		return time.Time{}, e.reject(r, ReasonParseError,
			fmt.Sprintf("Could not understand %q at %q (%s).", dateExpr, timeExpr, reason)), false
	}
	if start.Before(now) {
		return time.Time{}, e.reject(r, ReasonPastSlot,
			fmt.Sprintf("%s is in the past.", start.Format(timeparse.DateTimeLayout))), false
	}
	if err := e.policy.Check(start); err != nil {
		return time.Time{}, e.reject(r, ReasonOutOfHours,
			fmt.Sprintf("%s is not bookable: %v. Opening hours: %s.", start.Format(timeparse.DateTimeLayout), err, e.policy)), false
	}
	return start, Result{}, true
}

func (e *Engine) service(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return e.opts.DefaultService, true
	}
	if strings.EqualFold(name, e.opts.DefaultService) {
		return e.opts.DefaultService, true
	}
	if len(e.opts.Services) == 0 {
		return name, true
	}
	for _, s := range e.opts.Services {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

type lookupResult struct {
	active    []calendar.Appointment
	cancelled []calendar.Appointment
}

func (e *Engine) lookup(ctx context.Context, key contact.Key, now time.Time) (lookupResult, error) {
	window := calendar.NewRange(now, e.opts.LookupHorizon)
	events, err := e.provider.FindEvents(ctx, key, window)
	if err != nil {
		return lookupResult{}, err
	}
	var res lookupResult
	for _, ev := range events {
		if ev.Active() {
			res.active = append(res.active, ev)
		} else {
			res.cancelled = append(res.cancelled, ev)
		}
	}
	return res, nil
}

func ambiguousMessage(key contact.Key, events []calendar.Appointment, loc *time.Location) string {
	var when []string
	for _, ev := range events {
		when = append(when, ev.Range.Start.In(loc).Format(timeparse.DateTimeLayout))
	}
	return fmt.Sprintf("%d appointments found for %s (%s). Please specify which one.",
		len(events), key, strings.Join(when, ", "))
}

func endSpan(span trace.Span, res Result, err error) {
	span.SetAttributes(
		attribute.String("booking.status", string(res.Status)),
		attribute.String("booking.reason", string(res.Reason)))
	if res.TicketID != "" {
		span.SetAttributes(attribute.String("ticket.id", res.TicketID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
