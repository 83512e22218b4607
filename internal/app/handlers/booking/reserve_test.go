package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/internal/app/outbox"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
	"stayguard/internal/domain/shared/daterange"
	"stayguard/internal/infra/storage/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type reserveFixture struct {
	handler   *ReserveHandler
	factory   memory.Factory
	schedules *memory.ScheduleRepository
	bookings  *memory.BookingRepository
	now       time.Time
}

func newReserveFixture(t *testing.T) *reserveFixture {
	t.Helper()
	schedules := memory.NewScheduleRepository()
	bookings := memory.NewBookingRepository()
	factory := memory.Factory{ScheduleRepo: schedules, BookingRepo: bookings}
	now := day(2026, 1, 15)
	return &reserveFixture{
		handler: &ReserveHandler{
			UoWFactory: factory,
			Outbox:     memory.NewOutbox(),
			Encoder:    outbox.JSONEventEncoder{},
			Now:        func() time.Time { return now },
		},
		factory:   factory,
		schedules: schedules,
		bookings:  bookings,
		now:       now,
	}
}

func reserveCmd(id string, property string, in, out time.Time) ReserveCommand {
	return ReserveCommand{
		CommandID:  id,
		PropertyID: property,
		GuestID:    "guest-1",
		CheckIn:    in,
		CheckOut:   out,
		Guests:     2,
	}
}

func TestReserveCreatesBookingWithHold(t *testing.T) {
	fx := newReserveFixture(t)
	ctx := context.Background()

	result, err := fx.handler.Handle(ctx, reserveCmd("bk-1", "prop-1", day(2026, 6, 10), day(2026, 6, 15)))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "bk-1", result.BookingID)
	assert.Equal(t, fx.now.Add(defaultReservationHold), result.Deadline, "deadline defaults to now plus the hold")

	bk, err := fx.bookings.ByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StateReserved, bk.State)
	assert.Equal(t, domaininventory.RangeID(result.RangeID), bk.RangeID)

	schedule, err := fx.schedules.Schedule(ctx, "prop-1")
	require.NoError(t, err)
	held, ok := schedule.Range(domaininventory.RangeID(result.RangeID))
	require.True(t, ok)
	assert.Equal(t, domaininventory.StatusActive, held.Status)
	assert.Equal(t, domaininventory.DispositionBooking, held.Disposition)
	assert.Equal(t, "bk-1", held.OwnerRef)
}

func TestReserveRejectsOverlap(t *testing.T) {
	fx := newReserveFixture(t)
	ctx := context.Background()

	_, err := fx.handler.Handle(ctx, reserveCmd("bk-1", "prop-1", day(2026, 6, 10), day(2026, 6, 15)))
	require.NoError(t, err)

	_, err = fx.handler.Handle(ctx, reserveCmd("bk-2", "prop-1", day(2026, 6, 12), day(2026, 6, 20)))
	assert.ErrorIs(t, err, domaininventory.ErrSlotUnavailable)

	// The loser leaves nothing behind.
	_, err = fx.bookings.ByID(ctx, "bk-2")
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
	schedule, err := fx.schedules.Schedule(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 1, schedule.ActiveCount())
}

func TestReserveAllowsBackToBackStays(t *testing.T) {
	fx := newReserveFixture(t)
	ctx := context.Background()

	_, err := fx.handler.Handle(ctx, reserveCmd("bk-1", "prop-1", day(2026, 3, 1), day(2026, 3, 5)))
	require.NoError(t, err)
	_, err = fx.handler.Handle(ctx, reserveCmd("bk-2", "prop-1", day(2026, 3, 5), day(2026, 3, 10)))
	require.NoError(t, err)

	schedule, err := fx.schedules.Schedule(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 2, schedule.ActiveCount())
}

func TestReserveValidation(t *testing.T) {
	fx := newReserveFixture(t)
	ctx := context.Background()

	_, err := fx.handler.Handle(ctx, reserveCmd("bk-1", "prop-1", day(2026, 6, 15), day(2026, 6, 10)))
	assert.ErrorIs(t, err, daterange.ErrInvalidRange)

	_, err = fx.handler.Handle(ctx, reserveCmd("bk-2", "prop-1", day(2025, 12, 1), day(2025, 12, 5)))
	assert.ErrorIs(t, err, domainbooking.ErrCheckInInPast)
}

func TestConcurrentReservesExactlyOneWins(t *testing.T) {
	fx := newReserveFixture(t)
	const writers = 8

	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := reserveCmd(fmt.Sprintf("bk-%d", i), "prop-1", day(2026, 6, 10), day(2026, 6, 15))
			_, errs[i] = fx.handler.Handle(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, domaininventory.ErrSlotUnavailable, "writer %d", i)
	}
	assert.Equal(t, 1, winners, "exactly one concurrent reserve must win")

	schedule, err := fx.schedules.Schedule(context.Background(), "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 1, schedule.ActiveCount())
}

func TestConcurrentReservesOnDifferentPropertiesAllWin(t *testing.T) {
	fx := newReserveFixture(t)
	const writers = 6

	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			property := fmt.Sprintf("prop-%d", i)
			cmd := reserveCmd(fmt.Sprintf("bk-%d", i), property, day(2026, 6, 10), day(2026, 6, 15))
			_, errs[i] = fx.handler.Handle(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}
}
