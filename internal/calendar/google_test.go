package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bobuk/gcalbook/internal/contact"
)

type fakeGoogle struct {
	mu      sync.Mutex
	events  []*gcal.Event
	queries []string
	patched map[string]*gcal.Event
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
		f.queries = append(f.queries, r.URL.RawQuery)
		filter := r.URL.Query().Get("privateExtendedProperty")
		var items []*gcal.Event
		for _, ev := range f.events {
			if filter != "" {
				kv := strings.SplitN(filter, "=", 2)
				if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private[kv[0]] != kv[1] {
					continue
				}
			}
			items = append(items, ev)
		}
		json.NewEncoder(w).Encode(&gcal.Events{Items: items})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/events"):
		var ev gcal.Event
		json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = "evt-new"
		ev.HtmlLink = "https://calendar.example/evt-new"
		f.events = append(f.events, &ev)
		json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodPatch:
		var ev gcal.Event
		json.NewDecoder(r.Body).Decode(&ev)
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		f.patched[id] = &ev
		json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodDelete:
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusGone)
			w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	default:
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"boom"}}`))
	}
}

func newFakeGoogle(t *testing.T, events ...*gcal.Event) (*GoogleProvider, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{events: events, patched: make(map[string]*gcal.Event)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	p, err := NewGoogleProvider(context.Background(), srv.Client(), "primary", loc, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p, fake
}

func TestGoogleListEventsSkipsFreeAndCancelled(t *testing.T) {
	p, _ := newFakeGoogle(t,
		&gcal.Event{Id: "a", Summary: "Checkup - Anna", Status: "confirmed",
			Start: &gcal.EventDateTime{DateTime: "2025-12-03T14:00:00+01:00"},
			End:   &gcal.EventDateTime{DateTime: "2025-12-03T15:00:00+01:00"}},
		&gcal.Event{Id: "b", Summary: "Home", Transparency: "transparent",
			Start: &gcal.EventDateTime{DateTime: "2025-12-03T14:00:00+01:00"},
			End:   &gcal.EventDateTime{DateTime: "2025-12-03T15:00:00+01:00"}},
		&gcal.Event{Id: "c", Summary: "Old", Status: "cancelled",
			Start: &gcal.EventDateTime{DateTime: "2025-12-03T14:00:00+01:00"},
			End:   &gcal.EventDateTime{DateTime: "2025-12-03T15:00:00+01:00"}},
	)

	loc := p.loc
	r := NewRange(time.Date(2025, 12, 3, 14, 0, 0, 0, loc), time.Hour)
	events, err := p.ListEvents(context.Background(), r)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].ID != "a" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestGoogleAllDayEventBlocksDay(t *testing.T) {
	p, _ := newFakeGoogle(t,
		&gcal.Event{Id: "h", Summary: "Closed",
			Start: &gcal.EventDateTime{Date: "2025-12-03"},
			End:   &gcal.EventDateTime{Date: "2025-12-04"}},
	)
	r := NewRange(time.Date(2025, 12, 3, 10, 0, 0, 0, p.loc), time.Hour)
	events, err := p.ListEvents(context.Background(), r)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("all-day event should block, got %+v", events)
	}
}

func TestGoogleCreateStoresContactKeys(t *testing.T) {
	p, fake := newFakeGoogle(t)
	start := time.Date(2025, 12, 3, 15, 0, 0, 0, p.loc)

	created, err := p.CreateEvent(context.Background(), Appointment{
		Name: "Anna Rossi", Email: "Anna@Example.com", Phone: "+39 333 1234",
		Service: "General Consultation", Range: NewRange(start, time.Hour),
	})
	if err != nil || created.ID != "evt-new" || created.Link != "https://calendar.example/evt-new" {
		t.Fatalf("create: %+v err=%v", created, err)
	}

	stored := fake.events[0]
	if stored.ExtendedProperties.Private[propEmail] != "anna@example.com" ||
		stored.ExtendedProperties.Private[propPhone] != "+393331234" {
		t.Fatalf("contact keys not normalized: %+v", stored.ExtendedProperties.Private)
	}
	if stored.Start.TimeZone != "Europe/Rome" || stored.Summary != "General Consultation - Anna Rossi" {
		t.Fatalf("unexpected event %+v", stored)
	}

	found, err := p.FindEvents(context.Background(), contact.New("", "+39 333 1234"), NewRange(start.Add(-time.Hour), 3*time.Hour))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].Name != "Anna Rossi" {
		t.Fatalf("unexpected find result %+v", found)
	}
	if !strings.Contains(fake.queries[len(fake.queries)-1], "showDeleted=true") {
		t.Fatalf("FindEvents must include cancelled events: %s", fake.queries[len(fake.queries)-1])
	}
}

func TestGoogleUpdateAndCancelErrors(t *testing.T) {
	p, fake := newFakeGoogle(t)
	ctx := context.Background()
	r := NewRange(time.Date(2025, 12, 4, 10, 0, 0, 0, p.loc), time.Hour)

	if err := p.UpdateEvent(ctx, "evt-1", r); err != nil {
		t.Fatalf("update: %v", err)
	}
	if fake.patched["evt-1"].Start.DateTime != "2025-12-04T10:00:00+01:00" {
		t.Fatalf("unexpected patch %+v", fake.patched["evt-1"].Start)
	}
	if err := p.CancelEvent(ctx, "gone"); err != nil {
		t.Fatalf("cancelling an already deleted event must succeed: %v", err)
	}
	if err := p.CancelEvent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.Check(ctx); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}
