// Package timeparse turns free-form date and time expressions into
// timestamps anchored to one configured zone. It never reads the wall
// clock: every relative expression is resolved against a caller supplied
// reference instant.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Canonical layouts. Parsing a string formatted with these layouts yields
// the same instant it was formatted from.
const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04"
	DateTimeLayout = "2006-01-02 15:04"
)

type Reason string

const (
	ReasonAmbiguous    Reason = "ambiguous"
	ReasonUnrecognized Reason = "unrecognized"
	ReasonOutOfRange   Reason = "out-of-range"
)

type ParseError struct {
	Reason Reason
	Input  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

func fail(reason Reason, input string) error {
	return &ParseError{Reason: reason, Input: input}
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at clock c on the civil date of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

type Parser struct {
	loc *time.Location
}

func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

func (p *Parser) Location() *time.Location { return p.loc }

var (
	inNRe       = regexp.MustCompile(`^in (\d+) (day|days|week|weeks)$`)
	weekdayRe   = regexp.MustCompile(`^(?:(next|this|coming) )?([a-z]+)$`)
	numericRe   = regexp.MustCompile(`^(\d{1,4})[./\- ](\d{1,2})[./\- ](\d{1,4})$`)
	dayMonthRe  = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?(?: of)? ([a-z]+)\.?(?:,? (\d{4}))?$`)
	monthDayRe  = regexp.MustCompile(`^([a-z]+)\.? (\d{1,2})(?:st|nd|rd|th)?(?:,? (\d{4}))?$`)
	ordinalRe   = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)$`)
	clock24Re   = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?(?: ?h)?$`)
	clock12Re   = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))? ?([ap])\.?m\.?$`)
	trailTimeRe = regexp.MustCompile(`^(.*\S) (\d{1,2}(?:[:.]\d{2})? ?(?:[ap]\.?m\.?)?|noon|midnight)$`)
	spacesRe    = regexp.MustCompile(`\s+`)
)

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func normalize(expr string) string {
	s := strings.ToLower(strings.TrimSpace(expr))
	s = spacesRe.ReplaceAllString(s, " ")
	s = strings.TrimRight(s, "?!")
	for _, prefix := range []string{"on the ", "on ", "the "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

// ParseDate resolves a date expression to midnight of that civil date in
// the parser zone.
func (p *Parser) ParseDate(expr string, ref time.Time) (time.Time, error) {
	s := normalize(expr)
	if s == "" {
		return time.Time{}, fail(ReasonUnrecognized, expr)
	}
	ref = ref.In(p.loc)
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, p.loc)

	if t, ok := p.relative(s, today); ok {
		return t, nil
	}
	if m := numericRe.FindStringSubmatch(s); m != nil {
		return p.numeric(m, expr)
	}
	if t, ok, err := p.monthName(s, today, expr); ok {
		return t, err
	}
	if m := ordinalRe.FindStringSubmatch(s); m != nil {
		return p.ordinal(m[1], today, expr)
	}
	return time.Time{}, fail(ReasonUnrecognized, expr)
}

func (p *Parser) relative(s string, today time.Time) (time.Time, bool) {
	switch s {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "day after tomorrow", "overmorrow":
		return today.AddDate(0, 0, 2), true
	case "next week":
		return today.AddDate(0, 0, 7), true
	}

	if m := inNRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return today.AddDate(0, 0, n), true
	}

	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		wd, ok := weekdays[m[2]]
		if !ok {
			return time.Time{}, false
		}
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if m[1] == "next" && ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

func (p *Parser) numeric(m []string, input string) (time.Time, error) {
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	c, _ := strconv.Atoi(m[3])

	if len(m[1]) == 4 {
		return p.date(a, b, c, input)
	}
	if len(m[3]) != 4 {
		return time.Time{}, fail(ReasonUnrecognized, input)
	}
	// Day first. A reading that only works month first is reported rather
	// than silently swapped.
	if t, err := p.date(c, b, a, input); err == nil {
		return t, nil
	}
	if _, err := p.date(c, a, b, input); err == nil {
		return time.Time{}, fail(ReasonAmbiguous, input)
	}
	return time.Time{}, fail(ReasonOutOfRange, input)
}

func (p *Parser) monthName(s string, today time.Time, input string) (time.Time, bool, error) {
	var dayStr, monthStr, yearStr string
	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		dayStr, monthStr, yearStr = m[1], m[2], m[3]
	} else if m := monthDayRe.FindStringSubmatch(s); m != nil {
		monthStr, dayStr, yearStr = m[1], m[2], m[3]
	} else {
		return time.Time{}, false, nil
	}

	month, ok := months[monthStr]
	if !ok {
		return time.Time{}, false, nil
	}
	day, _ := strconv.Atoi(dayStr)

	if yearStr != "" {
		year, _ := strconv.Atoi(yearStr)
		t, err := p.date(year, int(month), day, input)
		return t, true, err
	}

	// Without a year pick the soonest valid occurrence, which for 29
	// February may be a few years ahead.
	for year := today.Year(); year <= today.Year()+4; year++ {
		t, err := p.date(year, int(month), day, input)
		if err == nil && !t.Before(today) {
			return t, true, nil
		}
	}
	return time.Time{}, true, fail(ReasonOutOfRange, input)
}

func (p *Parser) ordinal(dayStr string, today time.Time, input string) (time.Time, error) {
	day, _ := strconv.Atoi(dayStr)
	if day < 1 || day > 31 {
		return time.Time{}, fail(ReasonOutOfRange, input)
	}
	for i := 0; i < 12; i++ {
		first := time.Date(today.Year(), today.Month()+time.Month(i), 1, 0, 0, 0, 0, p.loc)
		t, err := p.date(first.Year(), int(first.Month()), day, input)
		if err == nil && !t.Before(today) {
			return t, nil
		}
	}
	return time.Time{}, fail(ReasonOutOfRange, input)
}

// date builds a civil date and rejects values time.Date would normalize,
// such as 31 February.
func (p *Parser) date(year, month, day int, input string) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fail(ReasonOutOfRange, input)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, p.loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fail(ReasonOutOfRange, input)
	}
	return t, nil
}

// ParseClock parses a time-of-day expression.
func ParseClock(expr string) (Clock, error) {
	s := normalize(expr)
	switch s {
	case "noon", "midday":
		return Clock{Hour: 12}, nil
	case "midnight":
		return Clock{}, nil
	}

	if m := clock12Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return Clock{}, fail(ReasonOutOfRange, expr)
		}
		hour %= 12
		if m[3] == "p" {
			hour += 12
		}
		return Clock{Hour: hour, Minute: minute}, nil
	}

	if m := clock24Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour > 23 || minute > 59 {
			return Clock{}, fail(ReasonOutOfRange, expr)
		}
		return Clock{Hour: hour, Minute: minute}, nil
	}
	return Clock{}, fail(ReasonUnrecognized, expr)
}

// Combine parses separate date and time expressions into one instant.
func (p *Parser) Combine(dateExpr, timeExpr string, ref time.Time) (time.Time, error) {
	day, err := p.ParseDate(dateExpr, ref)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := ParseClock(timeExpr)
	if err != nil {
		return time.Time{}, err
	}
	return clock.On(day, p.loc), nil
}

// Parse handles a combined expression such as "tomorrow at 3pm",
// "28.11.2025 10:00" or "next friday @ 9". A date without a time is an
// error since an appointment needs both.
func (p *Parser) Parse(expr string, ref time.Time) (time.Time, error) {
	if t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(expr), p.loc); err == nil {
		return t, nil
	}

	s := normalize(expr)
	var datePart, timePart string
	switch {
	case strings.Contains(s, " at "):
		i := strings.LastIndex(s, " at ")
		datePart, timePart = s[:i], s[i+len(" at "):]
	case strings.Contains(s, "@"):
		i := strings.LastIndex(s, "@")
		datePart, timePart = s[:i], s[i+1:]
	default:
		m := trailTimeRe.FindStringSubmatch(s)
		if m == nil {
			return time.Time{}, fail(ReasonUnrecognized, expr)
		}
		datePart, timePart = m[1], m[2]
	}

	datePart = strings.TrimSuffix(strings.TrimSpace(datePart), ",")
	day, err := p.ParseDate(datePart, ref)
	if err != nil {
		return time.Time{}, rewrap(err, expr)
	}
	clock, err := ParseClock(timePart)
	if err != nil {
		return time.Time{}, rewrap(err, expr)
	}
	return clock.On(day, p.loc), nil
}

// rewrap reports a part failure against the whole input.
func rewrap(err error, input string) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return fail(pe.Reason, input)
	}
	return err
}

// Format renders t with the canonical layout in the parser zone.
func (p *Parser) Format(t time.Time) string {
	return t.In(p.loc).Format(DateTimeLayout)
}
