package dto

import (
	"time"

	"stayguard/internal/domain/booking"
)

type Booking struct {
	BookingID  string    `json:"booking_id"`
	PropertyID string    `json:"property_id"`
	RangeID    string    `json:"range_id"`
	GuestID    string    `json:"guest_id"`
	Guests     int       `json:"guests"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Deadline   time.Time `json:"deadline"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func MapBooking(b *booking.Booking) Booking {
	if b == nil {
		return Booking{}
	}
	return Booking{
		BookingID:  string(b.ID),
		PropertyID: string(b.PropertyID),
		RangeID:    string(b.RangeID),
		GuestID:    b.GuestID,
		Guests:     b.Guests,
		CheckIn:    b.Span.CheckIn,
		CheckOut:   b.Span.CheckOut,
		Deadline:   b.Deadline,
		State:      string(b.State),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}
