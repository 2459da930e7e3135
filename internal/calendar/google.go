package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bobuk/gcalbook/internal/contact"
)

// Private extended property names. Stored normalized so lookups by
// contact key can be pushed down to the API.
const (
	propEmail   = "email_norm"
	propPhone   = "phone_norm"
	propName    = "customer_name"
	propService = "service"
)

type GoogleProvider struct {
	service    *gcal.Service
	calendarID string
	loc        *time.Location
}

func NewGoogleProvider(ctx context.Context, client *http.Client, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleProvider, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleProvider{
		service:    service,
		calendarID: calendarID,
		loc:        loc,
	}, nil
}

// Check verifies the configured calendar is reachable with the current
// credentials.
func (g *GoogleProvider) Check(ctx context.Context) error {
	_, err := g.service.CalendarList.Get(g.calendarID).Context(ctx).Do()
	if err != nil {
		return googleErr("failed to get calendar", err)
	}
	return nil
}

func (g *GoogleProvider) ListEvents(ctx context.Context, r TimeRange) ([]Appointment, error) {
	events, err := g.list(ctx, r, false, "")
	if err != nil {
		return nil, err
	}
	result := events[:0]
	for _, ev := range events {
		if ev.Active() && ev.Range.Overlaps(r) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (g *GoogleProvider) FindEvents(ctx context.Context, key contact.Key, r TimeRange) ([]Appointment, error) {
	var filters []string
	if key.Email != "" {
		filters = append(filters, propEmail+"="+key.Email)
	}
	if key.Phone != "" {
		filters = append(filters, propPhone+"="+key.Phone)
	}

	// The API ANDs property filters, so each identifier is its own query.
	seen := make(map[string]bool)
	var result []Appointment
	for _, filter := range filters {
		events, err := g.list(ctx, r, true, filter)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if seen[ev.ID] || !key.Matches(ev.Email, ev.Phone) {
				continue
			}
			seen[ev.ID] = true
			result = append(result, ev)
		}
	}
	sortByStart(result)
	return result, nil
}

func (g *GoogleProvider) CreateEvent(ctx context.Context, a Appointment) (Appointment, error) {
	private := map[string]string{
		propName:    a.Name,
		propService: a.Service,
	}
	key := a.Key()
	if key.Email != "" {
		private[propEmail] = key.Email
	}
	if key.Phone != "" {
		private[propPhone] = key.Phone
	}

	googleEvent := &gcal.Event{
		Summary:            a.Summary(),
		Description:        describe(a),
		Start:              g.dateTime(a.Range.Start),
		End:                g.dateTime(a.Range.End),
		ExtendedProperties: &gcal.EventExtendedProperties{Private: private},
	}
	if a.Email != "" {
		googleEvent.Attendees = []*gcal.EventAttendee{{Email: a.Email}}
	}

	createdEvent, err := g.service.Events.Insert(g.calendarID, googleEvent).Context(ctx).Do()
	if err != nil {
		return Appointment{}, googleErr("failed to create event", err)
	}
	a.ID = createdEvent.Id
	a.Link = createdEvent.HtmlLink
	a.Status = StatusActive
	return a, nil
}

// UpdateEvent patches only the times so attendees, links and the event
// id survive the move.
func (g *GoogleProvider) UpdateEvent(ctx context.Context, eventID string, r TimeRange) error {
	patch := &gcal.Event{
		Start: g.dateTime(r.Start),
		End:   g.dateTime(r.End),
	}
	_, err := g.service.Events.Patch(g.calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return googleErr("failed to update event", err)
	}
	return nil
}

// CancelEvent deletes the event. Google keeps deleted events with status
// "cancelled", which FindEvents still returns.
func (g *GoogleProvider) CancelEvent(ctx context.Context, eventID string) error {
	err := g.service.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
			return nil
		}
		return googleErr("failed to cancel event", err)
	}
	return nil
}

func (g *GoogleProvider) list(ctx context.Context, r TimeRange, showDeleted bool, privateFilter string) ([]Appointment, error) {
	call := g.service.Events.List(g.calendarID).
		TimeMin(r.Start.Format(time.RFC3339)).
		TimeMax(r.End.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(showDeleted).
		OrderBy("startTime")
	if privateFilter != "" {
		call = call.PrivateExtendedProperty(privateFilter)
	}

	var result []Appointment
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if ev, ok := g.fromGoogle(item); ok {
				result = append(result, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, googleErr("failed to list events", err)
	}
	return result, nil
}

func (g *GoogleProvider) fromGoogle(item *gcal.Event) (Appointment, bool) {
	// Free-time markers such as working location never block a slot.
	if item.Transparency == "transparent" || item.EventType == "workingLocation" {
		return Appointment{}, false
	}
	if item.Start == nil || item.End == nil {
		return Appointment{}, false
	}
	start, err := g.parseDateTime(item.Start)
	if err != nil {
		return Appointment{}, false
	}
	end, err := g.parseDateTime(item.End)
	if err != nil {
		return Appointment{}, false
	}

	ev := Appointment{
		ID:     item.Id,
		Name:   item.Summary,
		Range:  TimeRange{Start: start, End: end},
		Status: StatusActive,
		Link:   item.HtmlLink,
	}
	if item.Status == "cancelled" {
		ev.Status = StatusCancelled
	}
	if item.ExtendedProperties != nil {
		private := item.ExtendedProperties.Private
		ev.Email = private[propEmail]
		ev.Phone = private[propPhone]
		ev.Service = private[propService]
		if name := private[propName]; name != "" {
			ev.Name = name
		}
	}
	if ev.Email == "" && len(item.Attendees) > 0 {
		ev.Email = item.Attendees[0].Email
	}
	return ev, true
}

func (g *GoogleProvider) dateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{
		DateTime: t.In(g.loc).Format(time.RFC3339),
		TimeZone: g.loc.String(),
	}
}

// parseDateTime handles timed and all-day events; all-day events occupy
// the whole day in the calendar zone.
func (g *GoogleProvider) parseDateTime(dt *gcal.EventDateTime) (time.Time, error) {
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	return time.ParseInLocation("2006-01-02", dt.Date, g.loc)
}

func describe(a Appointment) string {
	var lines []string
	if a.Service != "" {
		lines = append(lines, "Service: "+a.Service)
	}
	lines = append(lines, "Name: "+a.Name)
	if a.Email != "" {
		lines = append(lines, "Email: "+a.Email)
	}
	if a.Phone != "" {
		lines = append(lines, "Phone: "+a.Phone)
	}
	return strings.Join(lines, "\n")
}

func googleErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusConflict:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
}
