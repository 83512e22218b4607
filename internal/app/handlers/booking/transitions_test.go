package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/internal/app/outbox"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
)

type transitionFixture struct {
	*reserveFixture
	transitions *TransitionHandler
	clock       *time.Time
}

func newTransitionFixture(t *testing.T) *transitionFixture {
	t.Helper()
	fx := newReserveFixture(t)
	clock := fx.now
	tfx := &transitionFixture{reserveFixture: fx, clock: &clock}
	now := func() time.Time { return *tfx.clock }
	fx.handler.Now = now
	tfx.transitions = &TransitionHandler{
		UoWFactory: fx.factory,
		Outbox:     fx.handler.Outbox,
		Encoder:    outbox.JSONEventEncoder{},
		Now:        now,
	}
	return tfx
}

func (fx *transitionFixture) reserve(t *testing.T, id string, in, out time.Time) *ReserveResult {
	t.Helper()
	result, err := fx.handler.Handle(context.Background(), reserveCmd(id, "prop-1", in, out))
	require.NoError(t, err)
	return result
}

func (fx *transitionFixture) activeCount(t *testing.T) int {
	t.Helper()
	schedule, err := fx.schedules.Schedule(context.Background(), "prop-1")
	require.NoError(t, err)
	return schedule.ActiveCount()
}

func TestConfirmKeepsHold(t *testing.T) {
	fx := newTransitionFixture(t)
	fx.reserve(t, "bk-1", day(2026, 6, 10), day(2026, 6, 15))

	result, err := fx.transitions.Confirm(context.Background(), ConfirmCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StateConfirmed), result.State)
	assert.Equal(t, 1, fx.activeCount(t))
}

func TestCancelReleasesHold(t *testing.T) {
	fx := newTransitionFixture(t)
	held := fx.reserve(t, "bk-1", day(2026, 6, 10), day(2026, 6, 15))

	result, err := fx.transitions.Cancel(context.Background(), CancelCommand{BookingID: "bk-1", Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StateCancelled), result.State)
	assert.Equal(t, 0, fx.activeCount(t))

	schedule, err := fx.schedules.Schedule(context.Background(), "prop-1")
	require.NoError(t, err)
	released, ok := schedule.Range(domaininventory.RangeID(held.RangeID))
	require.True(t, ok)
	assert.Equal(t, domaininventory.StatusReleased, released.Status)

	// The freed dates accept a new booking right away.
	fx.reserve(t, "bk-2", day(2026, 6, 10), day(2026, 6, 15))
	assert.Equal(t, 1, fx.activeCount(t))
}

func TestCheckOutReleasesHold(t *testing.T) {
	fx := newTransitionFixture(t)
	fx.reserve(t, "bk-1", day(2026, 6, 10), day(2026, 6, 15))
	ctx := context.Background()

	_, err := fx.transitions.Confirm(ctx, ConfirmCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	_, err = fx.transitions.CheckIn(ctx, CheckInCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	result, err := fx.transitions.CheckOut(ctx, CheckOutCommand{BookingID: "bk-1"})
	require.NoError(t, err)

	assert.Equal(t, string(domainbooking.StateCheckedOut), result.State)
	assert.Equal(t, 0, fx.activeCount(t))
}

func TestInvalidTransitionSurfacesConflict(t *testing.T) {
	fx := newTransitionFixture(t)
	fx.reserve(t, "bk-1", day(2026, 6, 10), day(2026, 6, 15))

	_, err := fx.transitions.CheckIn(context.Background(), CheckInCommand{BookingID: "bk-1"})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidState)
	assert.Equal(t, 1, fx.activeCount(t), "failed transition keeps the hold")
}

func TestTransitionUnknownBooking(t *testing.T) {
	fx := newTransitionFixture(t)
	_, err := fx.transitions.Confirm(context.Background(), ConfirmCommand{BookingID: "ghost"})
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
}

func TestExpireReleasesHoldAfterDeadline(t *testing.T) {
	fx := newTransitionFixture(t)
	held := fx.reserve(t, "bk-1", day(2026, 6, 10), day(2026, 6, 15))
	ctx := context.Background()

	// Before the deadline the sweep is a quiet no-op.
	result, err := fx.transitions.Expire(ctx, ExpireCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StateReserved), result.State)
	assert.Equal(t, 1, fx.activeCount(t))

	*fx.clock = held.Deadline.Add(time.Second)
	result, err = fx.transitions.Expire(ctx, ExpireCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StateExpired), result.State)
	assert.Equal(t, 0, fx.activeCount(t))

	// The slot is reusable and a repeated expire stays a no-op.
	result, err = fx.transitions.Expire(ctx, ExpireCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StateExpired), result.State)
	fx.reserve(t, "bk-2", day(2026, 6, 10), day(2026, 6, 15))
}

func TestExpireSkipsConfirmedBooking(t *testing.T) {
	fx := newTransitionFixture(t)
	held := fx.reserve(t, "bk-1", day(2026, 6, 10), day(2026, 6, 15))
	ctx := context.Background()

	_, err := fx.transitions.Confirm(ctx, ConfirmCommand{BookingID: "bk-1"})
	require.NoError(t, err)

	*fx.clock = held.Deadline.Add(time.Hour)
	result, err := fx.transitions.Expire(ctx, ExpireCommand{BookingID: "bk-1"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StateConfirmed), result.State)
	assert.Equal(t, 1, fx.activeCount(t), "a confirmed stay keeps its dates")
}
