package inventory

import (
	"time"

	"stayguard/internal/domain/shared/daterange"
)

type RangeBlocked struct {
	PropertyID  string
	RangeID     string
	Span        daterange.DateRange
	Disposition Disposition
	OwnerRef    string
	At          time.Time
}

func (e RangeBlocked) EventName() string     { return "inventory.range_blocked" }
func (e RangeBlocked) AggregateID() string   { return e.PropertyID }
func (e RangeBlocked) OccurredAt() time.Time { return e.At }

type RangeReleased struct {
	PropertyID  string
	RangeID     string
	Span        daterange.DateRange
	Disposition Disposition
	At          time.Time
}

func (e RangeReleased) EventName() string     { return "inventory.range_released" }
func (e RangeReleased) AggregateID() string   { return e.PropertyID }
func (e RangeReleased) OccurredAt() time.Time { return e.At }

type OverbookingPrevented struct {
	PropertyID string
	Span       daterange.DateRange
	BlockedBy  string
	At         time.Time
}

func (e OverbookingPrevented) EventName() string     { return "inventory.overbooking_prevented" }
func (e OverbookingPrevented) AggregateID() string   { return e.PropertyID }
func (e OverbookingPrevented) OccurredAt() time.Time { return e.At }

func RangeBlockedEvent(id PropertyID, r Range, at time.Time) RangeBlocked {
	return RangeBlocked{
		PropertyID:  string(id),
		RangeID:     string(r.ID),
		Span:        r.Span,
		Disposition: r.Disposition,
		OwnerRef:    r.OwnerRef,
		At:          at.UTC(),
	}
}

func RangeReleasedEvent(id PropertyID, r Range, at time.Time) RangeReleased {
	return RangeReleased{
		PropertyID:  string(id),
		RangeID:     string(r.ID),
		Span:        r.Span,
		Disposition: r.Disposition,
		At:          at.UTC(),
	}
}

func OverbookingPreventedEvent(id PropertyID, span daterange.DateRange, blockedBy RangeID, at time.Time) OverbookingPrevented {
	return OverbookingPrevented{
		PropertyID: string(id),
		Span:       span,
		BlockedBy:  string(blockedBy),
		At:         at.UTC(),
	}
}
