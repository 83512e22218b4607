package dto

import (
	"time"

	"stayguard/internal/domain/inventory"
	"stayguard/internal/domain/shared/daterange"
)

type CalendarRange struct {
	RangeID     string    `json:"range_id"`
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	Disposition string    `json:"disposition"`
	OwnerRef    string    `json:"owner_ref,omitempty"`
}

type Calendar struct {
	PropertyID string          `json:"property_id"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Ranges     []CalendarRange `json:"ranges"`
}

// MapCalendar renders the active ranges of a schedule that intersect the window.
func MapCalendar(schedule *inventory.Schedule, window daterange.DateRange) Calendar {
	cal := Calendar{From: window.CheckIn, To: window.CheckOut, Ranges: []CalendarRange{}}
	if schedule == nil {
		return cal
	}
	cal.PropertyID = string(schedule.PropertyID)
	for r := range schedule.Overlapping(window) {
		cal.Ranges = append(cal.Ranges, CalendarRange{
			RangeID:     string(r.ID),
			CheckIn:     r.Span.CheckIn,
			CheckOut:    r.Span.CheckOut,
			Disposition: string(r.Disposition),
			OwnerRef:    r.OwnerRef,
		})
	}
	return cal
}
