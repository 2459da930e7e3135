package calendar

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

func newTestCalDAV(t *testing.T) *CalDAVProvider {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	stamp := time.Date(2025, 11, 28, 9, 0, 0, 0, time.UTC)
	return &CalDAVProvider{
		calendarPath: "/calendars/desk/work",
		loc:          loc,
		now:          func() time.Time { return stamp },
	}
}

func TestCalDAVEventRoundTrip(t *testing.T) {
	c := newTestCalDAV(t)
	a := Appointment{
		ID:      "gcalbook-1",
		Name:    "Alice",
		Email:   " Alice@Example.com ",
		Phone:   "+39 333 1234567",
		Service: "Haircut",
		Range:   NewRange(time.Date(2025, 12, 3, 14, 0, 0, 0, c.loc), time.Hour),
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(newCalendar(c.eventComponent(a))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	comp := findEvent(decoded)
	if comp == nil {
		t.Fatal("no VEVENT after decoding")
	}

	got, ok := c.fromComponent(comp)
	if !ok {
		t.Fatal("event was skipped")
	}
	if got.ID != a.ID || got.Name != "Alice" || got.Service != "Haircut" || got.Status != StatusActive {
		t.Fatalf("unexpected appointment %+v", got)
	}
	if got.Email != "alice@example.com" || got.Phone != "+393331234567" {
		t.Fatalf("contact key not normalized: %q %q", got.Email, got.Phone)
	}
	if !got.Range.Start.Equal(a.Range.Start) || !got.Range.End.Equal(a.Range.End) {
		t.Fatalf("range %v, want %v", got.Range, a.Range)
	}
}

func TestCalDAVStatusAndTransparency(t *testing.T) {
	c := newTestCalDAV(t)
	a := Appointment{ID: "x", Name: "Bob", Range: NewRange(time.Date(2025, 12, 3, 10, 0, 0, 0, c.loc), time.Hour)}

	comp := c.eventComponent(a)
	comp.Props.SetText(ical.PropStatus, "CANCELLED")
	got, ok := c.fromComponent(comp)
	if !ok || got.Active() {
		t.Fatalf("cancelled event should be kept but inactive: %+v", got)
	}

	comp = c.eventComponent(a)
	comp.Props.SetText(ical.PropTransparency, "TRANSPARENT")
	if _, ok := c.fromComponent(comp); ok {
		t.Fatal("transparent events do not block time")
	}

	comp = c.eventComponent(a)
	delete(comp.Props, xPropName)
	got, _ = c.fromComponent(comp)
	if got.Name != a.Summary() {
		t.Fatalf("name should fall back to the summary, got %q", got.Name)
	}
}

func TestCalDAVObjectPath(t *testing.T) {
	c := newTestCalDAV(t)
	if got := c.objectPath("gcalbook-1"); got != "/calendars/desk/work/gcalbook-1.ics" {
		t.Fatalf("object path %q", got)
	}
}

func decodeEvent(t *testing.T, lines ...string) *ical.Component {
	t.Helper()
	body := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//other client//EN", "BEGIN:VEVENT",
		"UID:external-1", "DTSTAMP:20251128T090000Z", "SUMMARY:Busy"}, lines...)
	body = append(body, "END:VEVENT", "END:VCALENDAR", "")
	cal, err := ical.NewDecoder(strings.NewReader(strings.Join(body, "\r\n"))).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	comp := findEvent(cal)
	if comp == nil {
		t.Fatal("no VEVENT")
	}
	return comp
}

func TestCalDAVImplicitEnd(t *testing.T) {
	c := newTestCalDAV(t)
	slot := NewRange(time.Date(2025, 12, 3, 14, 0, 0, 0, c.loc), time.Hour)

	cases := []struct {
		name  string
		lines []string
		end   time.Time
	}{
		{"duration", []string{"DTSTART:20251203T130000Z", "DURATION:PT1H"},
			time.Date(2025, 12, 3, 14, 0, 0, 0, time.UTC)},
		{"date value", []string{"DTSTART;VALUE=DATE:20251203"},
			time.Date(2025, 12, 4, 0, 0, 0, 0, c.loc)},
		{"bare date", []string{"DTSTART:20251203"},
			time.Date(2025, 12, 4, 0, 0, 0, 0, c.loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.fromComponent(decodeEvent(t, tc.lines...))
			if !ok {
				t.Fatal("event was skipped")
			}
			if !got.Range.End.Equal(tc.end) {
				t.Fatalf("end %v, want %v", got.Range.End, tc.end)
			}
			if !got.Range.Overlaps(slot) {
				t.Fatalf("%v should block %v", got.Range, slot)
			}
		})
	}
}

func TestCalDAVMissingObject(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		w.Write([]byte("no such object"))
	}))
	defer srv.Close()

	c, err := NewCalDAVProvider(context.Background(), srv.URL, "", "", "/calendars/desk/work/", time.UTC)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	err = c.CancelEvent(context.Background(), "gcalbook-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	status = http.StatusInternalServerError
	err = c.UpdateEvent(context.Background(), "gcalbook-missing", NewRange(time.Now(), time.Hour))
	if errors.Is(err, ErrNotFound) || !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}
