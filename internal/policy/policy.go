// Package policy decides whether an instant may start an appointment:
// opening hours, closed weekdays and holidays, all evaluated in the
// business time zone.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotBookable  = errors.New("not bookable")
	ErrClosedDay    = fmt.Errorf("closed on this weekday: %w", ErrNotBookable)
	ErrHoliday      = fmt.Errorf("holiday: %w", ErrNotBookable)
	ErrOutsideHours = fmt.Errorf("outside opening hours: %w", ErrNotBookable)
)

const (
	fixedLayout  = "2006-01-02"
	yearlyLayout = "01-02"
)

type Policy struct {
	open   time.Duration
	close  time.Duration
	closed map[time.Weekday]bool
	fixed  map[string]bool
	yearly map[string]bool
	loc    *time.Location
}

// New builds a policy. open and close are "HH:MM"; holidays are either
// "YYYY-MM-DD" for a single date or "MM-DD" for every year.
func New(open, close string, closedWeekdays, holidays []string, loc *time.Location) (*Policy, error) {
	if loc == nil {
		loc = time.UTC
	}
	p := &Policy{
		closed: make(map[time.Weekday]bool),
		fixed:  make(map[string]bool),
		yearly: make(map[string]bool),
		loc:    loc,
	}

	var err error
	if p.open, err = clockOffset(open); err != nil {
		return nil, fmt.Errorf("invalid open time: %w", err)
	}
	if p.close, err = clockOffset(close); err != nil {
		return nil, fmt.Errorf("invalid close time: %w", err)
	}
	if p.close <= p.open {
		return nil, fmt.Errorf("close time %s must be after open time %s", close, open)
	}

	for _, name := range closedWeekdays {
		wd, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		p.closed[wd] = true
	}

	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if _, err := time.Parse(fixedLayout, h); err == nil {
			p.fixed[h] = true
			continue
		}
		// Parse yearly dates against a leap year so 02-29 is accepted.
		if _, err := time.Parse("2006-"+yearlyLayout, "2024-"+h); err == nil {
			p.yearly[h] = true
			continue
		}
		return nil, fmt.Errorf("invalid holiday %q: expected YYYY-MM-DD or MM-DD", h)
	}
	return p, nil
}

// Default is the original deployment: weekdays 09:00-17:00 with the
// Italian winter holidays.
func Default(loc *time.Location) *Policy {
	p, err := New("09:00", "17:00",
		[]string{"saturday", "sunday"},
		[]string{"01-01", "12-08", "12-24", "12-25", "12-26"},
		loc)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Location() *time.Location { return p.loc }

// Check returns nil when t may start an appointment, otherwise an error
// wrapping ErrNotBookable.
func (p *Policy) Check(t time.Time) error {
	t = t.In(p.loc)
	if p.closed[t.Weekday()] {
		return ErrClosedDay
	}
	if p.fixed[t.Format(fixedLayout)] || p.yearly[t.Format(yearlyLayout)] {
		return ErrHoliday
	}
	tod := timeOfDay(t)
	if tod < p.open || tod >= p.close {
		return ErrOutsideHours
	}
	return nil
}

func (p *Policy) IsBookable(t time.Time) bool {
	return p.Check(t) == nil
}

// IsOpenDay reports whether the civil date of t is neither closed nor a
// holiday.
func (p *Policy) IsOpenDay(t time.Time) bool {
	t = t.In(p.loc)
	return !p.closed[t.Weekday()] && !p.fixed[t.Format(fixedLayout)] && !p.yearly[t.Format(yearlyLayout)]
}

// Hours returns the opening and closing instants on the civil date of day.
func (p *Policy) Hours(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(p.loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, p.loc)
	return wallClock(midnight, p.open), wallClock(midnight, p.close)
}

func (p *Policy) String() string {
	var closed []string
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if p.closed[wd] {
			closed = append(closed, wd.String())
		}
	}
	return fmt.Sprintf("%s-%s closed %s (%s)", formatOffset(p.open), formatOffset(p.close), strings.Join(closed, ","), p.loc)
}

// wallClock adds a time-of-day offset to midnight in wall-clock terms so
// DST transitions do not shift opening hours.
func wallClock(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, 0, 0, midnight.Location())
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

func clockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		if strings.TrimSpace(s) == "24:00" {
			return 24 * time.Hour, nil
		}
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}

func parseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if n == full || n == full[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", name)
}
