// Package availability answers "is this range free?" and "where is the
// next free slot?" by reading through to the calendar backend. It keeps
// no copy of the calendar.
package availability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/policy"
)

const (
	DefaultStep     = time.Hour
	DefaultHorizon  = 14 * 24 * time.Hour
	DefaultMaxProbe = 10
)

type Index struct {
	provider calendar.Provider
	policy   *policy.Policy
	step     time.Duration
	horizon  time.Duration
	logger   *zap.Logger
}

type Option func(*Index)

// WithStep sets the distance between candidate slot starts.
func WithStep(d time.Duration) Option {
	return func(ix *Index) {
		if d > 0 {
			ix.step = d
		}
	}
}

// WithHorizon bounds how far a search may walk past closed periods.
func WithHorizon(d time.Duration) Option {
	return func(ix *Index) {
		if d > 0 {
			ix.horizon = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

func New(provider calendar.Provider, pol *policy.Policy, opts ...Option) *Index {
	ix := &Index{
		provider: provider,
		policy:   pol,
		step:     DefaultStep,
		horizon:  DefaultHorizon,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Index) Step() time.Duration     { return ix.step }
func (ix *Index) Policy() *policy.Policy { return ix.policy }

// IsFree reports whether no active event overlaps r. Events whose ids are
// listed in exclude are ignored, which lets a move check its target slot
// without colliding with itself.
func (ix *Index) IsFree(ctx context.Context, r calendar.TimeRange, exclude ...string) (bool, error) {
	events, err := ix.provider.ListEvents(ctx, r)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", r, err)
	}
	for _, ev := range events {
		if !ev.Active() || !ev.Range.Overlaps(r) || excluded(ev.ID, exclude) {
			continue
		}
		ix.logger.Debug("slot occupied",
			zap.Stringer("range", r),
			zap.String("event_id", ev.ID))
		return false, nil
	}
	return true, nil
}

// NextFreeSlots walks forward from from in fixed steps and collects up to
// count free ranges of length d. Starts rejected by the policy are skipped
// without touching the backend; every slot checked counts toward
// maxProbe. A short or empty result means limited availability and is not
// an error.
func (ix *Index) NextFreeSlots(ctx context.Context, from time.Time, d time.Duration, count, maxProbe int, exclude ...string) ([]calendar.TimeRange, error) {
	if count <= 0 || maxProbe <= 0 {
		return nil, nil
	}

	var slots []calendar.TimeRange
	limit := from.Add(ix.horizon)
	checked := 0
	for candidate := from; candidate.Before(limit); candidate = candidate.Add(ix.step) {
		if len(slots) >= count || checked >= maxProbe {
			break
		}
		if ix.policy != nil && !ix.policy.IsBookable(candidate) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		checked++
		r := calendar.NewRange(candidate, d)
		free, err := ix.IsFree(ctx, r, exclude...)
		if err != nil {
			return nil, err
		}
		if free {
			slots = append(slots, r)
		}
	}

	ix.logger.Debug("slot search finished",
		zap.Time("from", from),
		zap.Int("checked", checked),
		zap.Int("found", len(slots)))
	return slots, nil
}

// DaySlots lists every free, bookable, step-aligned start of length d on
// the civil date of day, from opening to closing time. It reads the day
// with a single backend query.
func (ix *Index) DaySlots(ctx context.Context, day time.Time, d time.Duration) ([]calendar.TimeRange, error) {
	if ix.policy == nil || !ix.policy.IsOpenDay(day) {
		return nil, nil
	}
	open, close := ix.policy.Hours(day)

	events, err := ix.provider.ListEvents(ctx, calendar.TimeRange{Start: open, End: close.Add(d)})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", open.Format("2006-01-02"), err)
	}

	var slots []calendar.TimeRange
	for start := open; start.Before(close); start = start.Add(ix.step) {
		if !ix.policy.IsBookable(start) {
			continue
		}
		r := calendar.NewRange(start, d)
		busy := false
		for _, ev := range events {
			if ev.Active() && ev.Range.Overlaps(r) {
				busy = true
				break
			}
		}
		if !busy {
			slots = append(slots, r)
		}
	}
	return slots, nil
}

func excluded(id string, exclude []string) bool {
	for _, x := range exclude {
		if x != "" && x == id {
			return true
		}
	}
	return false
}
