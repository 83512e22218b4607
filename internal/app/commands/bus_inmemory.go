package commands

import (
	"context"
	"fmt"
)

type commandHandler func(ctx context.Context, cmd Command) (any, error)

// InMemoryBus routes commands by key ("booking.reserve", "inventory.block",
// ...) to handlers registered at bootstrap. Registration happens before the
// server accepts traffic, so the route table needs no locking.
type InMemoryBus struct {
	routes map[string]commandHandler
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{routes: make(map[string]commandHandler)}
}

// RegisterRaw binds a handler to a command key. Re-binding a key is a wiring
// bug, not a runtime condition, so it panics at startup.
func (b *InMemoryBus) RegisterRaw(key string, handler commandHandler) {
	if key == "" {
		panic("commands: empty key registration")
	}
	if _, taken := b.routes[key]; taken {
		panic("commands: duplicate registration for " + key)
	}
	b.routes[key] = handler
}

func (b *InMemoryBus) Dispatch(ctx context.Context, cmd Command) (any, error) {
	handler, ok := b.routes[cmd.Key()]
	if !ok {
		return nil, ErrHandlerNotFound
	}
	return handler(ctx, cmd)
}

// RegisterHandler adapts a typed handler to the untyped route table, keeping
// the command/result types checked at the call site.
func RegisterHandler[C Command, R any](bus *InMemoryBus, key string, handler Handler[C, R]) {
	if bus == nil {
		panic("commands: nil bus")
	}
	bus.RegisterRaw(key, func(ctx context.Context, raw Command) (any, error) {
		cmd, ok := any(raw).(C)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, key)
		}
		return handler.Handle(ctx, cmd)
	})
}
