package inventory

import (
	"context"
	"iter"
	"time"

	"github.com/google/btree"

	"stayguard/internal/domain/shared/daterange"
	"stayguard/internal/domain/shared/events"
)

// Schedule is the per-property availability index. Active ranges are kept in
// a B-tree ordered by check-in so overlap checks and window queries touch only
// neighbouring entries; released ranges stay in the audit map and never block
// anything again.
//
// Active ranges are pairwise non-overlapping. Insert is the only way a range
// becomes active, and it rejects any candidate that would break that.
type Schedule struct {
	PropertyID PropertyID
	Version    int64

	active *btree.BTreeG[Range]
	ranges map[RangeID]Range

	events.EventRecorder
}

type Repository interface {
	Schedule(ctx context.Context, id PropertyID) (*Schedule, error)
	Save(ctx context.Context, schedule *Schedule) error
}

const btreeDegree = 8

func rangeLess(a, b Range) bool {
	return a.Span.CheckIn.Before(b.Span.CheckIn)
}

func NewSchedule(id PropertyID) *Schedule {
	return &Schedule{
		PropertyID: id,
		active:     btree.NewG(btreeDegree, rangeLess),
		ranges:     make(map[RangeID]Range),
	}
}

// Restore rebuilds a schedule from persisted state. Ranges must already
// satisfy the non-overlap invariant; Restore indexes them as-is.
func Restore(id PropertyID, version int64, ranges []Range) *Schedule {
	s := NewSchedule(id)
	s.Version = version
	for _, r := range ranges {
		s.ranges[r.ID] = r
		if r.Status == StatusActive {
			s.active.ReplaceOrInsert(r)
		}
	}
	return s
}

// Insert adds an active range, failing with ErrSlotUnavailable if it overlaps
// any active range already on the schedule. The check and the insert happen
// on the same in-memory aggregate; the repository's versioned save makes the
// pair atomic with respect to concurrent writers.
func (s *Schedule) Insert(r Range, now time.Time) error {
	if r.PropertyID != s.PropertyID {
		return ErrPropertyMismatch
	}
	if err := r.Span.Validate(); err != nil {
		return err
	}
	if hit, ok := s.firstOverlapping(r.Span); ok {
		s.Record(OverbookingPreventedEvent(s.PropertyID, r.Span, hit.ID, now))
		return ErrSlotUnavailable
	}
	r.Status = StatusActive
	s.ranges[r.ID] = r
	s.active.ReplaceOrInsert(r)
	s.Record(RangeBlockedEvent(s.PropertyID, r, now))
	return nil
}

// Release marks a range released so the interval becomes available again.
// Releasing an already-released range is a no-op; a range id that was never
// inserted yields ErrRangeNotFound.
func (s *Schedule) Release(id RangeID, now time.Time) error {
	r, ok := s.ranges[id]
	if !ok {
		return ErrRangeNotFound
	}
	if r.Status == StatusReleased {
		return nil
	}
	s.active.Delete(r)
	released := r.released(now)
	s.ranges[id] = released
	s.Record(RangeReleasedEvent(s.PropertyID, released, now))
	return nil
}

// Range returns a range by id, released ones included.
func (s *Schedule) Range(id RangeID) (Range, bool) {
	r, ok := s.ranges[id]
	return r, ok
}

// CanReserve reports whether the span is free of active ranges. Advisory
// only: the authoritative answer comes from Insert.
func (s *Schedule) CanReserve(span daterange.DateRange) bool {
	_, hit := s.firstOverlapping(span)
	return !hit
}

// Overlapping yields the active ranges intersecting the window, ordered by
// check-in. The sequence is restartable: each range-over walks the tree anew.
func (s *Schedule) Overlapping(window daterange.DateRange) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		start := window.CheckIn
		// An active range starting before the window can still reach into it;
		// since active ranges are disjoint at most one such range exists.
		s.active.DescendLessOrEqual(Range{Span: daterange.DateRange{CheckIn: window.CheckIn}}, func(r Range) bool {
			if r.Span.CheckOut.After(window.CheckIn) {
				start = r.Span.CheckIn
			}
			return false
		})
		s.active.AscendGreaterOrEqual(Range{Span: daterange.DateRange{CheckIn: start}}, func(r Range) bool {
			if !r.Span.CheckIn.Before(window.CheckOut) {
				return false
			}
			if !r.Span.Overlaps(window) {
				return true
			}
			return yield(r)
		})
	}
}

// Ranges returns every range ever inserted, active and released, ordered by
// check-in. Used by repositories to snapshot the aggregate.
func (s *Schedule) Ranges() []Range {
	out := make([]Range, 0, len(s.ranges))
	s.active.Ascend(func(r Range) bool {
		out = append(out, r)
		return true
	})
	for _, r := range s.ranges {
		if r.Status == StatusReleased {
			out = append(out, r)
		}
	}
	return out
}

func (s *Schedule) ActiveCount() int {
	return s.active.Len()
}

// firstOverlapping finds an active range overlapping the span. Active ranges
// are disjoint, so the only candidate that can start before the span and
// still overlap it is the one with the greatest check-in below span.CheckOut.
func (s *Schedule) firstOverlapping(span daterange.DateRange) (Range, bool) {
	var hit Range
	found := false
	probe := Range{Span: daterange.DateRange{CheckIn: span.CheckOut}}
	s.active.DescendLessOrEqual(probe, func(r Range) bool {
		if !r.Span.CheckIn.Before(span.CheckOut) {
			// Adjacent at the boundary, keep looking below it.
			return true
		}
		if r.Span.CheckOut.After(span.CheckIn) {
			hit = r
			found = true
		}
		return false
	})
	return hit, found
}
