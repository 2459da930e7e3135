package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/bobuk/gcalbook/internal/contact"
)

const (
	xPropEmail   = "X-GCALBOOK-EMAIL"
	xPropPhone   = "X-GCALBOOK-PHONE"
	xPropName    = "X-GCALBOOK-NAME"
	xPropService = "X-GCALBOOK-SERVICE"
	productID    = "-//gcalbook//booking engine//EN"
	icalDate     = "20060102"
)

type CalDAVProvider struct {
	client       *caldav.Client
	calendarPath string
	loc          *time.Location
	now          func() time.Time
}

func NewCalDAVProvider(ctx context.Context, serverURL, username, password, calendarPath string, loc *time.Location) (*CalDAVProvider, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV server URL: %w", err)
	}

	var httpClient webdav.HTTPClient = http.DefaultClient
	if username != "" && password != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}

	c, err := caldav.NewClient(httpClient, baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	calURL, err := url.Parse(calendarPath)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar URL: %w", err)
	}

	return &CalDAVProvider{
		client:       c,
		calendarPath: strings.TrimRight(calURL.Path, "/"),
		loc:          loc,
		now:          time.Now,
	}, nil
}

// Check confirms the calendar collection exists in its home set.
func (c *CalDAVProvider) Check(ctx context.Context) error {
	homeSet := path.Dir(c.calendarPath)
	calendars, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return fmt.Errorf("failed to find calendars: %w: %w", ErrBackend, err)
	}
	for _, cal := range calendars {
		if strings.TrimRight(cal.Path, "/") == c.calendarPath {
			return nil
		}
	}
	return fmt.Errorf("calendar not found at path %s: %w", c.calendarPath, ErrNotFound)
}

func (c *CalDAVProvider) ListEvents(ctx context.Context, r TimeRange) ([]Appointment, error) {
	events, err := c.query(ctx, r)
	if err != nil {
		return nil, err
	}
	var result []Appointment
	for _, ev := range events {
		if ev.Active() && ev.Range.Overlaps(r) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (c *CalDAVProvider) FindEvents(ctx context.Context, key contact.Key, r TimeRange) ([]Appointment, error) {
	events, err := c.query(ctx, r)
	if err != nil {
		return nil, err
	}
	var result []Appointment
	for _, ev := range events {
		if key.Matches(ev.Email, ev.Phone) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (c *CalDAVProvider) CreateEvent(ctx context.Context, a Appointment) (Appointment, error) {
	a.ID = "gcalbook-" + uuid.NewString()
	cal := newCalendar(c.eventComponent(a))
	object, err := c.client.PutCalendarObject(ctx, c.objectPath(a.ID), cal)
	if err != nil {
		return Appointment{}, fmt.Errorf("failed to create event: %w: %w", ErrBackend, err)
	}
	a.Status = StatusActive
	a.Link = c.objectPath(a.ID)
	if object != nil && object.Path != "" {
		a.Link = object.Path
	}
	return a, nil
}

// UpdateEvent rewrites DTSTART/DTEND on the stored object so the UID and
// any other properties stay intact.
func (c *CalDAVProvider) UpdateEvent(ctx context.Context, eventID string, r TimeRange) error {
	return c.modify(ctx, eventID, func(comp *ical.Component) {
		comp.Props.SetDateTime(ical.PropDateTimeStart, r.Start.In(c.loc))
		comp.Props.SetDateTime(ical.PropDateTimeEnd, r.End.In(c.loc))
	})
}

func (c *CalDAVProvider) CancelEvent(ctx context.Context, eventID string) error {
	return c.modify(ctx, eventID, func(comp *ical.Component) {
		comp.Props.SetText(ical.PropStatus, "CANCELLED")
	})
}

func (c *CalDAVProvider) modify(ctx context.Context, eventID string, change func(*ical.Component)) error {
	objectPath := c.objectPath(eventID)
	object, err := c.client.GetCalendarObject(ctx, objectPath)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}
		return fmt.Errorf("failed to get event: %w: %w", ErrBackend, err)
	}

	comp := findEvent(object.Data)
	if comp == nil {
		return fmt.Errorf("no VEVENT component in %s: %w", objectPath, ErrNotFound)
	}
	change(comp)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())

	if _, err := c.client.PutCalendarObject(ctx, objectPath, object.Data); err != nil {
		return fmt.Errorf("failed to update event: %w: %w", ErrBackend, err)
	}
	return nil
}

func (c *CalDAVProvider) query(ctx context.Context, r TimeRange) ([]Appointment, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: r.Start,
				End:   r.End,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w: %w", ErrBackend, err)
	}

	var result []Appointment
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			if ev, ok := c.fromComponent(comp); ok {
				result = append(result, ev)
			}
		}
	}
	sortByStart(result)
	return result, nil
}

func (c *CalDAVProvider) eventComponent(a Appointment) *ical.Component {
	event := ical.NewEvent()
	props := event.Props
	props.SetText(ical.PropUID, a.ID)
	props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())
	props.SetText(ical.PropSummary, a.Summary())
	props.SetText(ical.PropDescription, describe(a))
	props.SetDateTime(ical.PropDateTimeStart, a.Range.Start.In(c.loc))
	props.SetDateTime(ical.PropDateTimeEnd, a.Range.End.In(c.loc))
	props.SetText(ical.PropStatus, "CONFIRMED")
	props.SetText(xPropName, a.Name)
	if a.Service != "" {
		props.SetText(xPropService, a.Service)
	}
	key := a.Key()
	if key.Email != "" {
		props.SetText(xPropEmail, key.Email)
	}
	if key.Phone != "" {
		props.SetText(xPropPhone, key.Phone)
	}
	return event.Component
}

func (c *CalDAVProvider) fromComponent(comp *ical.Component) (Appointment, bool) {
	if strings.EqualFold(textProp(comp.Props, ical.PropTransparency), "TRANSPARENT") {
		return Appointment{}, false
	}
	r, ok := c.eventRange(comp)
	if !ok {
		return Appointment{}, false
	}

	ev := Appointment{
		ID:      textProp(comp.Props, ical.PropUID),
		Name:    textProp(comp.Props, xPropName),
		Email:   textProp(comp.Props, xPropEmail),
		Phone:   textProp(comp.Props, xPropPhone),
		Service: textProp(comp.Props, xPropService),
		Range:   r,
		Status:  StatusActive,
	}
	if ev.Name == "" {
		ev.Name = textProp(comp.Props, ical.PropSummary)
	}
	if strings.EqualFold(textProp(comp.Props, ical.PropStatus), "CANCELLED") {
		ev.Status = StatusCancelled
	}
	return ev, true
}

// eventRange resolves DTSTART with DTEND, DURATION or the implicit end:
// one day for a date, none for a date-time.
func (c *CalDAVProvider) eventRange(comp *ical.Component) (TimeRange, bool) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return TimeRange{}, false
	}
	// Dates are parsed here: some clients omit VALUE=DATE, which go-ical
	// then reads as a malformed date-time.
	if len(startProp.Value) == len(icalDate) {
		day, err := time.ParseInLocation(icalDate, startProp.Value, c.loc)
		if err != nil {
			return TimeRange{}, false
		}
		end := day.AddDate(0, 0, 1)
		if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
			if e, err := time.ParseInLocation(icalDate, endProp.Value, c.loc); err == nil && e.After(day) {
				end = e
			}
		} else if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
			if d, err := durProp.Duration(); err == nil && d > 0 {
				end = day.Add(d)
			}
		}
		return TimeRange{Start: day, End: end}, true
	}

	event := &ical.Event{Component: comp}
	start, err := event.DateTimeStart(c.loc)
	if err != nil {
		return TimeRange{}, false
	}
	end, err := event.DateTimeEnd(c.loc)
	if err != nil || end.Before(start) {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end}, true
}

// isNotFound spots a 404 from the server. go-webdav keeps its status error
// type internal; its message starts with the code and status text.
func isNotFound(err error) bool {
	prefix := fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound))
	for ; err != nil; err = errors.Unwrap(err) {
		if strings.HasPrefix(err.Error(), prefix) {
			return true
		}
	}
	return false
}

func (c *CalDAVProvider) objectPath(eventID string) string {
	return c.calendarPath + "/" + eventID + ".ics"
}

func newCalendar(event *ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, event)
	return cal
}

func findEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent {
			return comp
		}
	}
	return nil
}

func textProp(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}
