package calendar

import "time"

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewRange(start time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: start, End: start.Add(d)}
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r TimeRange) Valid() bool {
	return r.End.After(r.Start)
}

// Overlaps is symmetric; adjacent ranges do not overlap.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Shift moves the range so it starts at start, keeping its length.
func (r TimeRange) Shift(start time.Time) TimeRange {
	return NewRange(start, r.Duration())
}

func (r TimeRange) In(loc *time.Location) TimeRange {
	return TimeRange{Start: r.Start.In(loc), End: r.End.In(loc)}
}

func (r TimeRange) String() string {
	return r.Start.Format("2006-01-02 15:04") + "–" + r.End.Format("15:04")
}
