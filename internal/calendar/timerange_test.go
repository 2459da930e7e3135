package calendar

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 12, 3, hour, min, 0, 0, time.UTC)
}

func TestOverlapsSymmetric(t *testing.T) {
	cases := []struct {
		name string
		a, b TimeRange
		want bool
	}{
		{"adjacent", TimeRange{at(9, 0), at(10, 0)}, TimeRange{at(10, 0), at(11, 0)}, false},
		{"nested", TimeRange{at(9, 0), at(12, 0)}, TimeRange{at(10, 0), at(11, 0)}, true},
		{"partial", TimeRange{at(9, 0), at(10, 30)}, TimeRange{at(10, 0), at(11, 0)}, true},
		{"identical", TimeRange{at(14, 0), at(15, 0)}, TimeRange{at(14, 0), at(15, 0)}, true},
		{"disjoint", TimeRange{at(8, 0), at(9, 0)}, TimeRange{at(13, 0), at(14, 0)}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("a.Overlaps(b)=%v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("b.Overlaps(a)=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeHelpers(t *testing.T) {
	r := NewRange(at(9, 0), time.Hour)
	if r.Duration() != time.Hour || !r.Valid() {
		t.Fatalf("unexpected range %v", r)
	}
	moved := r.Shift(at(15, 0))
	if !moved.End.Equal(at(16, 0)) {
		t.Fatalf("Shift kept wrong length: %v", moved)
	}
	if (TimeRange{at(9, 0), at(9, 0)}).Valid() {
		t.Fatalf("empty range reported valid")
	}
}
