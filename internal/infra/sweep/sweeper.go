package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayguard/internal/app/commands"
	bookingapp "stayguard/internal/app/handlers/booking"
	"stayguard/internal/app/support"
	"stayguard/internal/app/uow"
)

var ErrSweeperNotConfigured = errors.New("sweep: sweeper missing bus or unit of work factory")

// Sweeper is the scheduled caller that expires stale reservations. The
// booking core itself never runs timers; it just answers expire commands,
// which stay no-ops when a booking confirmed or already expired — so an
// overlapping or duplicated sweep is harmless.
type Sweeper struct {
	Bus        commands.Bus
	UoWFactory uow.UoWFactory
	Interval   time.Duration
	BatchSize  int
	Logger     *slog.Logger
	Now        func() time.Time
}

func (s *Sweeper) Run(ctx context.Context) error {
	if s.Bus == nil || s.UoWFactory == nil {
		return ErrSweeperNotConfigured
	}
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				if s.Logger != nil {
					s.Logger.Warn("expiry sweep failed", "error", err)
				}
			}
		}
	}
}

// SweepOnce expires every reservation whose deadline has passed.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	due, err := s.listDue(ctx)
	if err != nil {
		return err
	}
	for _, bk := range due {
		cmd := bookingapp.ExpireCommand{BookingID: bk.ID}
		if _, err := commands.Dispatch[bookingapp.ExpireCommand, *bookingapp.TransitionResult](ctx, s.Bus, cmd); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("expire dispatch failed", "booking_id", bk.ID, "error", err)
			}
			continue
		}
		if s.Logger != nil {
			s.Logger.Info("reservation expired", "booking_id", bk.ID, "property_id", bk.PropertyID, "deadline", bk.Deadline)
		}
	}
	return nil
}

func (s *Sweeper) listDue(ctx context.Context) ([]dueBooking, error) {
	unit, execCtx, cleanup, err := support.BeginUnit(ctx, s.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	bookings, err := unit.Bookings().DueForExpiry(execCtx, s.now(), s.batch())
	if err != nil {
		return nil, err
	}
	due := make([]dueBooking, 0, len(bookings))
	for _, bk := range bookings {
		due = append(due, dueBooking{ID: string(bk.ID), PropertyID: string(bk.PropertyID), Deadline: bk.Deadline})
	}
	return due, nil
}

type dueBooking struct {
	ID         string
	PropertyID string
	Deadline   time.Time
}

func (s *Sweeper) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return 30 * time.Second
}

func (s *Sweeper) batch() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return 100
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
