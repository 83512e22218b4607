package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/internal/app/commands"
	bookingapp "stayguard/internal/app/handlers/booking"
	"stayguard/internal/app/outbox"
	domainbooking "stayguard/internal/domain/booking"
	"stayguard/internal/infra/storage/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type sweepFixture struct {
	sweeper  *Sweeper
	reserve  *bookingapp.ReserveHandler
	bookings *memory.BookingRepository
	clock    time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	schedules := memory.NewScheduleRepository()
	bookings := memory.NewBookingRepository()
	factory := memory.Factory{ScheduleRepo: schedules, BookingRepo: bookings}
	box := memory.NewOutbox()

	fx := &sweepFixture{bookings: bookings, clock: day(2026, 1, 15)}
	now := func() time.Time { return fx.clock }

	fx.reserve = &bookingapp.ReserveHandler{
		UoWFactory: factory,
		Outbox:     box,
		Encoder:    outbox.JSONEventEncoder{},
		Now:        now,
	}
	transitions := &bookingapp.TransitionHandler{
		UoWFactory: factory,
		Outbox:     box,
		Encoder:    outbox.JSONEventEncoder{},
		Now:        now,
	}
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, bookingapp.ExpireCommand{}.Key(),
		commands.HandlerFunc[bookingapp.ExpireCommand, *bookingapp.TransitionResult](transitions.Expire))

	fx.sweeper = &Sweeper{Bus: bus, UoWFactory: factory, Now: now}
	return fx
}

func (fx *sweepFixture) reserveBooking(t *testing.T, id string, checkIn time.Time, deadline time.Time) {
	t.Helper()
	cmd := bookingapp.ReserveCommand{
		CommandID:  id,
		PropertyID: "prop-1",
		GuestID:    "guest-1",
		CheckIn:    checkIn,
		CheckOut:   checkIn.AddDate(0, 0, 4),
		Guests:     2,
		Deadline:   deadline,
	}
	_, err := fx.reserve.Handle(context.Background(), cmd)
	require.NoError(t, err)
}

func TestSweepExpiresOnlyDueReservations(t *testing.T) {
	fx := newSweepFixture(t)
	fx.reserveBooking(t, "due", day(2026, 6, 1), day(2026, 1, 16))
	fx.reserveBooking(t, "not-yet", day(2026, 7, 1), day(2026, 2, 1))

	fx.clock = day(2026, 1, 20)
	require.NoError(t, fx.sweeper.SweepOnce(context.Background()))

	due, err := fx.bookings.ByID(context.Background(), "due")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateExpired, due.State)

	pending, err := fx.bookings.ByID(context.Background(), "not-yet")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateReserved, pending.State)
}

func TestSweepIsIdempotent(t *testing.T) {
	fx := newSweepFixture(t)
	fx.reserveBooking(t, "due", day(2026, 6, 1), day(2026, 1, 16))

	fx.clock = day(2026, 1, 20)
	require.NoError(t, fx.sweeper.SweepOnce(context.Background()))
	require.NoError(t, fx.sweeper.SweepOnce(context.Background()))

	bk, err := fx.bookings.ByID(context.Background(), "due")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateExpired, bk.State)
}

func TestSweepRequiresConfiguration(t *testing.T) {
	s := &Sweeper{}
	assert.ErrorIs(t, s.Run(context.Background()), ErrSweeperNotConfigured)
}
