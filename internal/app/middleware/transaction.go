package middleware

import (
	"context"
	"errors"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// A lost version race aborts the surrounding transaction, so the retry has to
// restart the whole unit of work, not just the save.
const txAttempts = 3

// Transaction opens a unit of work around each command, committing on success
// and rolling back otherwise. On uow.ErrConcurrentUpdate the command reruns in
// a fresh unit up to txAttempts times; handlers reload state each attempt, so
// a genuine conflict resurfaces as its business error rather than the race.
func Transaction(factory uow.UoWFactory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			opts := uow.TxOptions{}
			if optsProvider != nil {
				opts = optsProvider(cmd)
			}
			var res any
			var err error
			for attempt := 0; attempt < txAttempts; attempt++ {
				res, err = runInUnit(ctx, factory, opts, nextFn, cmd)
				if !errors.Is(err, uow.ErrConcurrentUpdate) {
					break
				}
			}
			return res, err
		})
	}
}

func runInUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions, nextFn commandFunc, cmd commands.Command) (any, error) {
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	execCtx := ctx
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		execCtx = injector.InjectContext(ctx)
	}
	execCtx = uow.ContextWithUnitOfWork(execCtx, unit)
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	res, err := nextFn(execCtx, cmd)
	if err != nil {
		return nil, err
	}
	if err := unit.Commit(execCtx); err != nil {
		return nil, err
	}
	committed = true
	return res, nil
}
