package booking

import (
	"time"

	"stayguard/internal/domain/inventory"
	"stayguard/internal/domain/shared/daterange"
)

type BookingReserved struct {
	BookingID  BookingID
	PropertyID inventory.PropertyID
	GuestID    string
	Span       daterange.DateRange
	Deadline   time.Time
	At         time.Time
}

func (e BookingReserved) EventName() string     { return "booking.reserved" }
func (e BookingReserved) AggregateID() string   { return string(e.BookingID) }
func (e BookingReserved) OccurredAt() time.Time { return e.At }

type BookingConfirmed struct {
	BookingID  BookingID
	PropertyID inventory.PropertyID
	Span       daterange.DateRange
	At         time.Time
}

func (e BookingConfirmed) EventName() string     { return "booking.confirmed" }
func (e BookingConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e BookingConfirmed) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID  BookingID
	PropertyID inventory.PropertyID
	Reason     string
	At         time.Time
}

func (e BookingCancelled) EventName() string     { return "booking.cancelled" }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type BookingExpired struct {
	BookingID  BookingID
	PropertyID inventory.PropertyID
	Span       daterange.DateRange
	At         time.Time
}

func (e BookingExpired) EventName() string     { return "booking.expired" }
func (e BookingExpired) AggregateID() string   { return string(e.BookingID) }
func (e BookingExpired) OccurredAt() time.Time { return e.At }

type CheckInCompleted struct {
	BookingID BookingID
	At        time.Time
}

func (e CheckInCompleted) EventName() string     { return "booking.checked_in" }
func (e CheckInCompleted) AggregateID() string   { return string(e.BookingID) }
func (e CheckInCompleted) OccurredAt() time.Time { return e.At }

type CheckOutCompleted struct {
	BookingID  BookingID
	PropertyID inventory.PropertyID
	At         time.Time
}

func (e CheckOutCompleted) EventName() string     { return "booking.checked_out" }
func (e CheckOutCompleted) AggregateID() string   { return string(e.BookingID) }
func (e CheckOutCompleted) OccurredAt() time.Time { return e.At }
