package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
)

type recordingUnit struct {
	commits   int
	rollbacks int
}

func (u *recordingUnit) Schedules() domaininventory.Repository { return nil }
func (u *recordingUnit) Bookings() domainbooking.Repository    { return nil }
func (u *recordingUnit) Commit(ctx context.Context) error      { u.commits++; return nil }
func (u *recordingUnit) Rollback(ctx context.Context) error    { u.rollbacks++; return nil }

type recordingFactory struct {
	units []*recordingUnit
}

func (f *recordingFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	u := &recordingUnit{}
	f.units = append(f.units, u)
	return u, nil
}

func TestTransactionRestartsFreshUnitOnVersionRace(t *testing.T) {
	factory := &recordingFactory{}
	bus := commands.NewInMemoryBus()
	var seen []uow.UnitOfWork
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		unit, ok := uow.FromContext(ctx)
		require.True(t, ok)
		seen = append(seen, unit)
		if len(seen) == 1 {
			return nil, uow.ErrConcurrentUpdate
		}
		return &stubResult{Value: "won on retry"}, nil
	}))
	chained := ChainCommands(bus, Transaction(factory, nil))

	res, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, stubCommand{key: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "won on retry", res.Value)

	require.Len(t, factory.units, 2, "the losing attempt must not reuse its aborted unit")
	assert.NotSame(t, seen[0], seen[1])
	assert.Equal(t, 1, factory.units[0].rollbacks)
	assert.Equal(t, 0, factory.units[0].commits)
	assert.Equal(t, 1, factory.units[1].commits)
	assert.Equal(t, 0, factory.units[1].rollbacks)
}

func TestTransactionDoesNotRetryBusinessErrors(t *testing.T) {
	factory := &recordingFactory{}
	bus := commands.NewInMemoryBus()
	calls := 0
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		calls++
		return nil, domaininventory.ErrSlotUnavailable
	}))
	chained := ChainCommands(bus, Transaction(factory, nil))

	_, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, stubCommand{key: "stub"})
	require.ErrorIs(t, err, domaininventory.ErrSlotUnavailable)
	assert.Equal(t, 1, calls)
	require.Len(t, factory.units, 1)
	assert.Equal(t, 1, factory.units[0].rollbacks)
}

func TestTransactionGivesUpAfterRetryBudget(t *testing.T) {
	factory := &recordingFactory{}
	bus := commands.NewInMemoryBus()
	calls := 0
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		calls++
		return nil, uow.ErrConcurrentUpdate
	}))
	chained := ChainCommands(bus, Transaction(factory, nil))

	_, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, stubCommand{key: "stub"})
	require.ErrorIs(t, err, uow.ErrConcurrentUpdate)
	assert.Equal(t, txAttempts, calls)
	assert.Len(t, factory.units, txAttempts)
}
