package booking

import (
	"context"
	"errors"
	"time"

	"stayguard/internal/app/outbox"
	"stayguard/internal/app/support"
	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
)

const (
	confirmKey  = "booking.confirm"
	cancelKey   = "booking.cancel"
	checkInKey  = "booking.checkin"
	checkOutKey = "booking.checkout"
	expireKey   = "booking.expire"
)

type ConfirmCommand struct {
	BookingID string
}

func (c ConfirmCommand) Key() string { return confirmKey }

type CancelCommand struct {
	BookingID string
	Reason    string
}

func (c CancelCommand) Key() string { return cancelKey }

type CheckInCommand struct {
	BookingID string
}

func (c CheckInCommand) Key() string { return checkInKey }

type CheckOutCommand struct {
	BookingID string
}

func (c CheckOutCommand) Key() string { return checkOutKey }

// ExpireCommand is invoked by the scheduled sweep for reservations past their
// deadline. It is safe to deliver twice or against a booking that confirmed
// in the meantime.
type ExpireCommand struct {
	BookingID string
}

func (c ExpireCommand) Key() string { return expireKey }

type TransitionResult struct {
	BookingID string `json:"booking_id"`
	State     string `json:"state"`
}

// transition mutates the booking and reports whether its inventory range must
// be released as part of the same unit of work.
type transition func(b *domainbooking.Booking, now time.Time) (release bool, err error)

// TransitionHandler applies a lifecycle transition to a booking and, for
// terminal transitions, releases the held range in the same unit of work.
type TransitionHandler struct {
	UoWFactory   uow.UoWFactory
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	SaveAttempts int
	Now          func() time.Time
}

func (h *TransitionHandler) Confirm(ctx context.Context, cmd ConfirmCommand) (*TransitionResult, error) {
	return h.apply(ctx, domainbooking.BookingID(cmd.BookingID), func(b *domainbooking.Booking, now time.Time) (bool, error) {
		return false, b.Confirm(now)
	})
}

func (h *TransitionHandler) Cancel(ctx context.Context, cmd CancelCommand) (*TransitionResult, error) {
	return h.apply(ctx, domainbooking.BookingID(cmd.BookingID), func(b *domainbooking.Booking, now time.Time) (bool, error) {
		return true, b.Cancel(cmd.Reason, now)
	})
}

func (h *TransitionHandler) CheckIn(ctx context.Context, cmd CheckInCommand) (*TransitionResult, error) {
	return h.apply(ctx, domainbooking.BookingID(cmd.BookingID), func(b *domainbooking.Booking, now time.Time) (bool, error) {
		return false, b.CheckIn(now)
	})
}

func (h *TransitionHandler) CheckOut(ctx context.Context, cmd CheckOutCommand) (*TransitionResult, error) {
	return h.apply(ctx, domainbooking.BookingID(cmd.BookingID), func(b *domainbooking.Booking, now time.Time) (bool, error) {
		return true, b.CheckOut(now)
	})
}

func (h *TransitionHandler) Expire(ctx context.Context, cmd ExpireCommand) (*TransitionResult, error) {
	return h.apply(ctx, domainbooking.BookingID(cmd.BookingID), func(b *domainbooking.Booking, now time.Time) (bool, error) {
		return b.Expire(now), nil
	})
}

func (h *TransitionHandler) apply(ctx context.Context, id domainbooking.BookingID, fn transition) (*TransitionResult, error) {
	// An externally managed unit cannot survive a lost version race; the
	// transaction middleware restarts those in a fresh unit of work.
	_, managed := uow.FromContext(ctx)
	var result *TransitionResult
	var err error
	for attempt := 0; attempt < h.attempts(); attempt++ {
		result, err = h.applyOnce(ctx, id, fn)
		if managed || !errors.Is(err, uow.ErrConcurrentUpdate) {
			break
		}
	}
	return result, err
}

func (h *TransitionHandler) applyOnce(ctx context.Context, id domainbooking.BookingID, fn transition) (*TransitionResult, error) {
	unit, execCtx, cleanup, err := support.BeginUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	owned := cleanup != nil
	committed := false
	if owned {
		defer func() {
			if !committed {
				cleanup()
			}
		}()
	}

	bk, err := unit.Bookings().ByID(execCtx, id)
	if err != nil {
		return nil, err
	}
	now := h.now()
	before := bk.State
	release, err := fn(bk, now)
	if err != nil {
		return nil, err
	}
	if bk.State == before {
		// No-op transition (duplicate expire, early sweep): nothing to persist.
		return &TransitionResult{BookingID: string(bk.ID), State: string(bk.State)}, nil
	}

	if release {
		schedule, err := unit.Schedules().Schedule(execCtx, bk.PropertyID)
		if err != nil {
			return nil, err
		}
		if err := schedule.Release(bk.RangeID, now); err != nil {
			return nil, err
		}
		if err := unit.Schedules().Save(execCtx, schedule); err != nil {
			return nil, err
		}
		if err := support.DrainEvents(execCtx, h.Outbox, h.Encoder, &schedule.EventRecorder); err != nil {
			return nil, err
		}
	}

	if err := unit.Bookings().Save(execCtx, bk); err != nil {
		return nil, err
	}
	if err := support.DrainEvents(execCtx, h.Outbox, h.Encoder, &bk.EventRecorder); err != nil {
		return nil, err
	}

	if owned {
		if err := unit.Commit(execCtx); err != nil {
			return nil, err
		}
		committed = true
	}

	return &TransitionResult{BookingID: string(bk.ID), State: string(bk.State)}, nil
}

func (h *TransitionHandler) attempts() int {
	if h.SaveAttempts > 0 {
		return h.SaveAttempts
	}
	return defaultSaveAttempts
}

func (h *TransitionHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}
