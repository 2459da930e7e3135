package booking

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bobuk/gcalbook/internal/calendar"
)

const templateLayout = "20060102T150405Z"

// PublicLink builds a Google Calendar "add to calendar" template link for
// a. It is shareable without access to the business calendar.
func PublicLink(a calendar.Appointment) string {
	dates := a.Range.Start.UTC().Format(templateLayout) + "/" + a.Range.End.UTC().Format(templateLayout)

	var details []string
	if a.Service != "" {
		details = append(details, "Service: "+a.Service)
	}
	details = append(details, "Name: "+a.Name)
	if a.Email != "" {
		details = append(details, "Email: "+a.Email)
	}
	if a.Phone != "" {
		details = append(details, "Phone: "+a.Phone)
	}

	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", a.Summary())
	q.Set("dates", dates)
	q.Set("details", strings.Join(details, "\n"))
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}

func confirmation(verb string, a calendar.Appointment, loc *time.Location) *Confirmation {
	start := a.Range.Start.In(loc)
	msg := fmt.Sprintf("%s %s for %s on %s at %s.",
		verb, serviceName(a), a.Name, start.Format("Monday, 02 January 2006"), start.Format("15:04"))
	return &Confirmation{
		Message:    msg,
		OwnerLink:  a.Link,
		PublicLink: PublicLink(a),
	}
}

func serviceName(a calendar.Appointment) string {
	if a.Service == "" {
		return "appointment"
	}
	return a.Service
}

func proposal(r calendar.TimeRange, loc *time.Location) *Proposal {
	start := r.Start.In(loc)
	return &Proposal{
		Date:  start.Format("2006-01-02"),
		Time:  start.Format("15:04"),
		Start: start,
		End:   r.End.In(loc),
	}
}
