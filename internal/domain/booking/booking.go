package booking

import (
	"context"
	"errors"
	"time"

	"stayguard/internal/domain/inventory"
	"stayguard/internal/domain/shared/daterange"
	"stayguard/internal/domain/shared/events"
)

var (
	ErrInvalidState    = errors.New("booking: invalid state transition")
	ErrBookingNotFound = errors.New("booking: not found")
	ErrInvalidGuests   = errors.New("booking: guests count must be positive")
	ErrGuestRequired   = errors.New("booking: guest id required")
)

type BookingID string

type BookingState string

const (
	StateReserved   BookingState = "RESERVED"
	StateConfirmed  BookingState = "CONFIRMED"
	StateCheckedIn  BookingState = "CHECKED_IN"
	StateCheckedOut BookingState = "CHECKED_OUT"
	StateCancelled  BookingState = "CANCELLED"
	StateExpired    BookingState = "EXPIRED"
)

// Booking holds exactly one inventory range for its lifetime. Reaching a
// terminal state releases that range; the schedule and the booking are saved
// in the same unit of work so neither outlives the other.
type Booking struct {
	ID         BookingID
	PropertyID inventory.PropertyID
	RangeID    inventory.RangeID
	Span       daterange.DateRange
	GuestID    string
	Guests     int
	Deadline   time.Time
	State      BookingState
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	// DueForExpiry lists reserved bookings whose deadline has elapsed.
	// The expiry sweep feeds each id back through the expire operation.
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*Booking, error)
}

type CreateParams struct {
	ID         BookingID
	PropertyID inventory.PropertyID
	RangeID    inventory.RangeID
	Span       daterange.DateRange
	GuestID    string
	Guests     int
	Deadline   time.Time
	CreatedAt  time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if params.Guests <= 0 {
		return nil, ErrInvalidGuests
	}
	if params.GuestID == "" {
		return nil, ErrGuestRequired
	}
	if err := params.Span.Validate(); err != nil {
		return nil, err
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:         params.ID,
		PropertyID: params.PropertyID,
		RangeID:    params.RangeID,
		Span:       params.Span,
		GuestID:    params.GuestID,
		Guests:     params.Guests,
		Deadline:   params.Deadline.UTC(),
		State:      StateReserved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	b.Record(BookingReserved{
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		GuestID:    b.GuestID,
		Span:       b.Span,
		Deadline:   b.Deadline,
		At:         now,
	})
	return b, nil
}

// Terminal reports whether the booking can no longer change state.
func (b *Booking) Terminal() bool {
	switch b.State {
	case StateCheckedOut, StateCancelled, StateExpired:
		return true
	}
	return false
}

func (b *Booking) Confirm(now time.Time) error {
	if b.State != StateReserved {
		return ErrInvalidState
	}
	b.State = StateConfirmed
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, PropertyID: b.PropertyID, Span: b.Span, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Cancel(reason string, now time.Time) error {
	switch b.State {
	case StateReserved, StateConfirmed:
	default:
		return ErrInvalidState
	}
	b.State = StateCancelled
	b.UpdatedAt = now.UTC()
	b.Record(BookingCancelled{BookingID: b.ID, PropertyID: b.PropertyID, Reason: reason, At: b.UpdatedAt})
	return nil
}

func (b *Booking) CheckIn(now time.Time) error {
	if b.State != StateConfirmed {
		return ErrInvalidState
	}
	b.State = StateCheckedIn
	b.UpdatedAt = now.UTC()
	b.Record(CheckInCompleted{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

func (b *Booking) CheckOut(now time.Time) error {
	if b.State != StateCheckedIn {
		return ErrInvalidState
	}
	b.State = StateCheckedOut
	b.UpdatedAt = now.UTC()
	b.Record(CheckOutCompleted{BookingID: b.ID, PropertyID: b.PropertyID, At: b.UpdatedAt})
	return nil
}

// Expire moves a reserved booking past its deadline to EXPIRED. It reports
// whether a transition happened. Duplicate sweeps, confirmed bookings and
// terminal states are all quiet no-ops so the caller never has to dedupe.
func (b *Booking) Expire(now time.Time) bool {
	if b.State != StateReserved {
		return false
	}
	if now.UTC().Before(b.Deadline) {
		return false
	}
	b.State = StateExpired
	b.UpdatedAt = now.UTC()
	b.Record(BookingExpired{BookingID: b.ID, PropertyID: b.PropertyID, Span: b.Span, At: b.UpdatedAt})
	return true
}

// ValidateCheckIn rejects stays that begin before today. Comparison is at
// day granularity in UTC.
func ValidateCheckIn(span daterange.DateRange, now time.Time) error {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	checkIn := time.Date(span.CheckIn.Year(), span.CheckIn.Month(), span.CheckIn.Day(), 0, 0, 0, 0, time.UTC)
	if checkIn.Before(today) {
		return ErrCheckInInPast
	}
	return nil
}

var ErrCheckInInPast = errors.New("booking: check-in date is in the past")
