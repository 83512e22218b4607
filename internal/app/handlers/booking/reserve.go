package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/middleware"
	"stayguard/internal/app/outbox"
	"stayguard/internal/app/support"
	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
	domainrange "stayguard/internal/domain/shared/daterange"
)

const reserveKey = "booking.reserve"

const (
	defaultReservationHold = 30 * time.Minute
	defaultSaveAttempts    = 3
)

// ReserveCommand is the single entry point that creates a booking together
// with its inventory hold. Conflict checking and range creation happen in one
// unit of work; on conflict no partial state survives.
type ReserveCommand struct {
	CommandID       string
	PropertyID      string
	GuestID         string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	Deadline        time.Time
	IdempotencyKeyV string
}

func (c ReserveCommand) Key() string { return reserveKey }

func (c ReserveCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c ReserveCommand) ResultPrototype() any { return &ReserveResult{} }

type ReserveResult struct {
	BookingID string    `json:"booking_id"`
	RangeID   string    `json:"range_id"`
	Deadline  time.Time `json:"deadline"`
}

type ReserveHandler struct {
	UoWFactory      uow.UoWFactory
	Outbox          outbox.Outbox
	Encoder         outbox.EventEncoder
	ReservationHold time.Duration
	SaveAttempts    int
	Now             func() time.Time
}

func (h *ReserveHandler) Handle(ctx context.Context, cmd ReserveCommand) (*ReserveResult, error) {
	span, err := domainrange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, err
	}
	now := h.now()
	if err := domainbooking.ValidateCheckIn(span, now); err != nil {
		return nil, err
	}
	deadline := cmd.Deadline
	if deadline.IsZero() {
		deadline = now.Add(h.hold())
	}

	// A lost version race means another writer touched this property's
	// schedule between load and save. Reload and re-run the conflict check:
	// if the dates are genuinely taken the retry surfaces ErrSlotUnavailable.
	// When the transaction middleware owns the unit the race has already
	// aborted its transaction, so propagate and let the middleware restart
	// the command in a fresh one.
	_, managed := uow.FromContext(ctx)
	var result *ReserveResult
	for attempt := 0; attempt < h.attempts(); attempt++ {
		result, err = h.reserveOnce(ctx, cmd, span, deadline, now)
		if managed || !errors.Is(err, uow.ErrConcurrentUpdate) {
			break
		}
	}
	return result, err
}

func (h *ReserveHandler) reserveOnce(ctx context.Context, cmd ReserveCommand, span domainrange.DateRange, deadline, now time.Time) (*ReserveResult, error) {
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

	schedule, err := unit.Schedules().Schedule(execCtx, domaininventory.PropertyID(cmd.PropertyID))
	if err != nil {
		return nil, err
	}

	bookingID := domainbooking.BookingID(cmd.CommandID)
	hold, err := domaininventory.NewRange(domaininventory.NewRangeParams{
		ID:          domaininventory.RangeID(uuid.NewString()),
		PropertyID:  schedule.PropertyID,
		CheckIn:     span.CheckIn,
		CheckOut:    span.CheckOut,
		Disposition: domaininventory.DispositionBooking,
		OwnerRef:    string(bookingID),
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if err := schedule.Insert(hold, now); err != nil {
		return nil, err
	}

	bk, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         bookingID,
		PropertyID: schedule.PropertyID,
		RangeID:    hold.ID,
		Span:       span,
		GuestID:    cmd.GuestID,
		Guests:     cmd.Guests,
		Deadline:   deadline,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	if err := unit.Schedules().Save(execCtx, schedule); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(execCtx, bk); err != nil {
		return nil, err
	}

	if err := support.DrainEvents(execCtx, h.Outbox, h.Encoder, &schedule.EventRecorder, &bk.EventRecorder); err != nil {
		return nil, err
	}

	if owned {
		if err := unit.Commit(execCtx); err != nil {
			return nil, err
		}
		committed = true
	}

	return &ReserveResult{BookingID: string(bk.ID), RangeID: string(hold.ID), Deadline: bk.Deadline}, nil
}

func (h *ReserveHandler) hold() time.Duration {
	if h.ReservationHold > 0 {
		return h.ReservationHold
	}
	return defaultReservationHold
}

func (h *ReserveHandler) attempts() int {
	if h.SaveAttempts > 0 {
		return h.SaveAttempts
	}
	return defaultSaveAttempts
}

func (h *ReserveHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[ReserveCommand, *ReserveResult] = (*ReserveHandler)(nil)
var _ middleware.IdempotentCommand = (*ReserveCommand)(nil)
