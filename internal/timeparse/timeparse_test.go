package timeparse

import (
	"errors"
	"testing"
	"time"
)

func rome(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestParseDate(t *testing.T) {
	loc := rome(t)
	p := New(loc)
	// Friday.
	ref := time.Date(2025, 11, 28, 9, 0, 0, 0, loc)

	cases := []struct {
		in   string
		want string
	}{
		{"today", "2025-11-28"},
		{"Tomorrow", "2025-11-29"},
		{"the day after tomorrow", "2025-11-30"},
		{"overmorrow", "2025-11-30"},
		{"next week", "2025-12-05"},
		{"in 3 days", "2025-12-01"},
		{"in 1 day", "2025-11-29"},
		{"in 2 weeks", "2025-12-12"},
		{"next friday", "2025-12-05"},
		{"friday", "2025-11-28"},
		{"next tuesday", "2025-12-02"},
		{"Tue", "2025-12-02"},
		{"this monday", "2025-12-01"},
		{"2025-12-05", "2025-12-05"},
		{"2025/12/05", "2025-12-05"},
		{"2025.12.05", "2025-12-05"},
		{"28.11.2025", "2025-11-28"},
		{"28/11/2025", "2025-11-28"},
		{"28-11-2025", "2025-11-28"},
		{"28 11 2025", "2025-11-28"},
		{"05/12/2025", "2025-12-05"},
		{"28 November 2025", "2025-11-28"},
		{"28 nov 2025", "2025-11-28"},
		{"November 28, 2025", "2025-11-28"},
		{"Nov 28 2025", "2025-11-28"},
		{"December 5", "2025-12-05"},
		{"5th december", "2025-12-05"},
		{"November 27", "2026-11-27"},
		{"29 February", "2028-02-29"},
		{"6th", "2025-12-06"},
		{"on the 28th", "2025-11-28"},
		{"the 23rd", "2025-12-23"},
	}
	for _, tc := range cases {
		got, err := p.ParseDate(tc.in, ref)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", tc.in, err)
			continue
		}
		if got.Format(DateLayout) != tc.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tc.in, got.Format(DateLayout), tc.want)
		}
		if got.Location() != loc || got.Hour() != 0 {
			t.Errorf("ParseDate(%q) not anchored at local midnight: %v", tc.in, got)
		}
	}
}

func TestParseDateErrors(t *testing.T) {
	p := New(rome(t))
	ref := time.Date(2025, 11, 28, 9, 0, 0, 0, p.Location())

	cases := []struct {
		in     string
		reason Reason
	}{
		{"31 February 2025", ReasonOutOfRange},
		{"31.02.2025", ReasonOutOfRange},
		{"2025-13-01", ReasonOutOfRange},
		{"11/28/2025", ReasonAmbiguous},
		{"32nd", ReasonOutOfRange},
		{"someday", ReasonUnrecognized},
		{"", ReasonUnrecognized},
		{"28/11/25", ReasonUnrecognized},
	}
	for _, tc := range cases {
		_, err := p.ParseDate(tc.in, ref)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParseDate(%q): expected ParseError, got %v", tc.in, err)
			continue
		}
		if pe.Reason != tc.reason {
			t.Errorf("ParseDate(%q) reason = %s, want %s", tc.in, pe.Reason, tc.reason)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10", "10:00"},
		{"10:30", "10:30"},
		{"9.15", "09:15"},
		{"3pm", "15:00"},
		{"1 pm", "13:00"},
		{"3:30 PM", "15:30"},
		{"11am", "11:00"},
		{"12am", "00:00"},
		{"12pm", "12:00"},
		{"4 p.m.", "16:00"},
		{"noon", "12:00"},
		{"17h", "17:00"},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseClock(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	bad := map[string]Reason{
		"24:00":  ReasonOutOfRange,
		"10:60":  ReasonOutOfRange,
		"13pm":   ReasonOutOfRange,
		"0am":    ReasonOutOfRange,
		"later":  ReasonUnrecognized,
		"10:5pm": ReasonUnrecognized,
	}
	for in, reason := range bad {
		_, err := ParseClock(in)
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Reason != reason {
			t.Errorf("ParseClock(%q) = %v, want reason %s", in, err, reason)
		}
	}
}

func TestCombineTomorrowAfternoon(t *testing.T) {
	loc := rome(t)
	p := New(loc)
	ref := time.Date(2025, 11, 28, 9, 0, 0, 0, loc)

	got, err := p.Combine("tomorrow", "3pm", ref)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	want := time.Date(2025, 11, 29, 15, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseCombined(t *testing.T) {
	loc := rome(t)
	p := New(loc)
	ref := time.Date(2025, 11, 28, 9, 0, 0, 0, loc)

	cases := []struct {
		in   string
		want string
	}{
		{"tomorrow at 3pm", "2025-11-29 15:00"},
		{"next tuesday at 10:30", "2025-12-02 10:30"},
		{"28.11.2025 10:00", "2025-11-28 10:00"},
		{"28 11 2025 14", "2025-11-28 14:00"},
		{"December 5, 2025 @ 9", "2025-12-05 09:00"},
		{"tomorrow 3 pm", "2025-11-29 15:00"},
		{"friday noon", "2025-11-28 12:00"},
		{"2025-12-05 16:00", "2025-12-05 16:00"},
	}
	for _, tc := range cases {
		got, err := p.Parse(tc.in, ref)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if p.Format(got) != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.in, p.Format(got), tc.want)
		}
	}

	_, err := p.Parse("tomorrow", ref)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Input != "tomorrow" {
		t.Fatalf("date without time should fail, got %v", err)
	}
	_, err = p.Parse("31 February 2025 at 10", ref)
	if !errors.As(err, &pe) || pe.Reason != ReasonOutOfRange || pe.Input != "31 February 2025 at 10" {
		t.Fatalf("expected out-of-range for whole input, got %v", err)
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	loc := rome(t)
	p := New(loc)
	ref := time.Date(2025, 3, 29, 9, 0, 0, 0, loc)

	for _, expr := range []string{"tomorrow at 10", "in 5 days at 16:00", "next monday at 9am", "31 december at 11"} {
		first, err := p.Parse(expr, ref)
		if err != nil {
			t.Fatalf("Parse(%q): %v", expr, err)
		}
		again, err := p.Parse(p.Format(first), ref)
		if err != nil {
			t.Fatalf("reparse %q: %v", p.Format(first), err)
		}
		if !again.Equal(first) {
			t.Fatalf("round trip of %q: %v != %v", expr, again, first)
		}

		day, err := p.ParseDate(first.Format(DateLayout), ref)
		if err != nil {
			t.Fatalf("reparse date: %v", err)
		}
		clock, err := ParseClock(first.Format(ClockLayout))
		if err != nil {
			t.Fatalf("reparse clock: %v", err)
		}
		if !clock.On(day, loc).Equal(first) {
			t.Fatalf("split round trip of %q failed", expr)
		}
	}
}

func TestParseIsAnchoredToConfiguredZone(t *testing.T) {
	loc := rome(t)
	p := New(loc)
	// 23:30 UTC on the 28th is already the 29th in Rome.
	ref := time.Date(2025, 11, 28, 23, 30, 0, 0, time.UTC)

	got, err := p.Combine("today", "10", ref)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if got.Format(DateTimeLayout) != "2025-11-29 10:00" || got.Location() != loc {
		t.Fatalf("unexpected %v", got)
	}
}
