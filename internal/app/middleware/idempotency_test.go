package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/internal/app/commands"
	domaininventory "stayguard/internal/domain/inventory"
)

type stubCommand struct {
	key     string
	idemKey string
}

func (c stubCommand) Key() string            { return c.key }
func (c stubCommand) IdempotencyKey() string { return c.idemKey }
func (c stubCommand) ResultPrototype() any   { return &stubResult{} }

type stubResult struct {
	Value string `json:"value"`
}

type mapStore struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func newMapStore() *mapStore {
	return &mapStore{items: make(map[string]IdempotencyRecord)}
}

func (s *mapStore) Get(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *mapStore) Save(ctx context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

func TestIdempotencyReplaysFirstResult(t *testing.T) {
	bus := commands.NewInMemoryBus()
	calls := 0
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		calls++
		return &stubResult{Value: "first"}, nil
	}))
	chained := ChainCommands(bus, Idempotency(newMapStore(), nil))

	cmd := stubCommand{key: "stub", idemKey: "idem-1"}
	first, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
	require.NoError(t, err)
	second, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "handler must run once")
	assert.Equal(t, first.Value, second.Value)
}

func TestIdempotencyReplaysFirstError(t *testing.T) {
	bus := commands.NewInMemoryBus()
	calls := 0
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		calls++
		return nil, errors.New("dates overlap an existing active range")
	}))
	chained := ChainCommands(bus, Idempotency(newMapStore(), nil))

	cmd := stubCommand{key: "stub", idemKey: "idem-1"}
	_, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
	require.Error(t, err)
	_, err = commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
	require.Error(t, err)

	assert.Equal(t, 1, calls, "a failed command is not retried under the same key")
}

func TestIdempotencyReplayKeepsErrorIdentity(t *testing.T) {
	bus := commands.NewInMemoryBus()
	calls := 0
	wrapped := fmt.Errorf("prop-1 [2026-06-10, 2026-06-15): %w", domaininventory.ErrSlotUnavailable)
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		calls++
		return nil, wrapped
	}))
	chained := ChainCommands(bus, Idempotency(newMapStore(), nil))

	cmd := stubCommand{key: "stub", idemKey: "idem-1"}
	_, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
	require.ErrorIs(t, err, domaininventory.ErrSlotUnavailable)

	_, err = commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
	require.ErrorIs(t, err, domaininventory.ErrSlotUnavailable, "replay must keep the sentinel identity")
	assert.Equal(t, wrapped.Error(), err.Error(), "replay must keep the recorded message")
	assert.Equal(t, 1, calls)
}

func TestIdempotencyIgnoresCommandsWithoutKey(t *testing.T) {
	bus := commands.NewInMemoryBus()
	calls := 0
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		calls++
		return &stubResult{}, nil
	}))
	chained := ChainCommands(bus, Idempotency(newMapStore(), nil))

	cmd := stubCommand{key: "stub"}
	for i := 0; i < 3; i++ {
		_, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, cmd)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestIdempotencyRecordCarriesTimestamp(t *testing.T) {
	store := newMapStore()
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, "stub", commands.HandlerFunc[stubCommand, *stubResult](func(ctx context.Context, cmd stubCommand) (*stubResult, error) {
		return &stubResult{}, nil
	}))
	chained := ChainCommands(bus, Idempotency(store, nil))

	before := time.Now().UTC()
	_, err := commands.Dispatch[stubCommand, *stubResult](context.Background(), chained, stubCommand{key: "stub", idemKey: "idem-1"})
	require.NoError(t, err)

	rec, ok, err := store.Get(context.Background(), "idem-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.OccurredAt.Before(before))
}
