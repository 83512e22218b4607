package inventory

import (
	"errors"
	"time"

	"stayguard/internal/domain/shared/daterange"
)

var (
	// ErrSlotUnavailable is returned when a range overlaps an active range
	// on the same property. It is a business outcome, not a fault.
	ErrSlotUnavailable = errors.New("inventory: dates overlap an existing active range")
	// ErrRangeNotFound is returned when a range id was never inserted for the property.
	ErrRangeNotFound = errors.New("inventory: range not found")
	// ErrPropertyMismatch is returned when a range is inserted into a schedule
	// owned by a different property.
	ErrPropertyMismatch = errors.New("inventory: range belongs to another property")
	// ErrUnknownDisposition is returned for a disposition outside the manual
	// block set. Booking ranges are created only through the reserve path.
	ErrUnknownDisposition = errors.New("inventory: unknown disposition for block")
)

type PropertyID string

type RangeID string

// Disposition is the reason a range exists.
type Disposition string

const (
	DispositionBooking     Disposition = "BOOKING"
	DispositionManualBlock Disposition = "MANUAL_BLOCK"
	DispositionMaintenance Disposition = "MAINTENANCE"
)

// RangeStatus tells whether a range still blocks new overlapping ranges.
type RangeStatus string

const (
	StatusActive   RangeStatus = "ACTIVE"
	StatusReleased RangeStatus = "RELEASED"
)

// Range is one interval of property non-availability. It is a value object:
// a date change is modeled as release-old plus insert-new, never an in-place
// edit, so conflict checks always run against the complete target state.
type Range struct {
	ID          RangeID
	PropertyID  PropertyID
	Span        daterange.DateRange
	Disposition Disposition
	Status      RangeStatus
	OwnerRef    string
	CreatedAt   time.Time
	ReleasedAt  time.Time
}

type NewRangeParams struct {
	ID          RangeID
	PropertyID  PropertyID
	CheckIn     time.Time
	CheckOut    time.Time
	Disposition Disposition
	OwnerRef    string
	Now         time.Time
}

func NewRange(params NewRangeParams) (Range, error) {
	span, err := daterange.New(params.CheckIn, params.CheckOut)
	if err != nil {
		return Range{}, err
	}
	if params.ID == "" {
		return Range{}, errors.New("inventory: range id required")
	}
	if params.PropertyID == "" {
		return Range{}, errors.New("inventory: property id required")
	}
	disposition := params.Disposition
	if disposition == "" {
		disposition = DispositionBooking
	}
	return Range{
		ID:          params.ID,
		PropertyID:  params.PropertyID,
		Span:        span,
		Disposition: disposition,
		Status:      StatusActive,
		OwnerRef:    params.OwnerRef,
		CreatedAt:   params.Now.UTC(),
	}, nil
}

// Conflicts is the overlap predicate: two ranges conflict iff both are active,
// belong to the same property, and their half-open spans intersect. Adjacent
// ranges do not conflict.
func Conflicts(a, b Range) bool {
	if a.Status != StatusActive || b.Status != StatusActive {
		return false
	}
	if a.PropertyID != b.PropertyID {
		return false
	}
	return a.Span.Overlaps(b.Span)
}

func (r Range) released(now time.Time) Range {
	r.Status = StatusReleased
	r.ReleasedAt = now.UTC()
	return r
}
