package inventory

import (
	"context"
	"errors"
	"time"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/outbox"
	"stayguard/internal/app/support"
	"stayguard/internal/app/uow"
	domaininventory "stayguard/internal/domain/inventory"
)

const releaseRangeKey = "inventory.release"

// ReleaseRangeCommand frees a manual block or maintenance window. Releasing
// an already-released range succeeds quietly.
type ReleaseRangeCommand struct {
	PropertyID string
	RangeID    string
}

func (c ReleaseRangeCommand) Key() string { return releaseRangeKey }

type ReleaseRangeResult struct {
	RangeID  string `json:"range_id"`
	Released bool   `json:"released"`
}

type ReleaseRangeHandler struct {
	UoWFactory   uow.UoWFactory
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	SaveAttempts int
	Now          func() time.Time
}

func (h *ReleaseRangeHandler) Handle(ctx context.Context, cmd ReleaseRangeCommand) (*ReleaseRangeResult, error) {
	// A managed unit's transaction is already dead after a lost version
	// race; the transaction middleware restarts the command in a fresh one.
	_, managed := uow.FromContext(ctx)
	var result *ReleaseRangeResult
	var err error
	for attempt := 0; attempt < h.attempts(); attempt++ {
		result, err = h.releaseOnce(ctx, cmd)
		if managed || !errors.Is(err, uow.ErrConcurrentUpdate) {
			break
		}
	}
	return result, err
}

func (h *ReleaseRangeHandler) releaseOnce(ctx context.Context, cmd ReleaseRangeCommand) (*ReleaseRangeResult, error) {
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

	id := domaininventory.RangeID(cmd.RangeID)
	now := h.nowUTC()
	wasActive := false
	if r, ok := schedule.Range(id); ok {
		wasActive = r.Status == domaininventory.StatusActive
	}
	if err := schedule.Release(id, now); err != nil {
		return nil, err
	}

	if wasActive {
		if err := unit.Schedules().Save(execCtx, schedule); err != nil {
			return nil, err
		}
		if err := support.DrainEvents(execCtx, h.Outbox, h.Encoder, &schedule.EventRecorder); err != nil {
			return nil, err
		}
	}

	if owned {
		if err := unit.Commit(execCtx); err != nil {
			return nil, err
		}
		committed = true
	}

	return &ReleaseRangeResult{RangeID: cmd.RangeID, Released: wasActive}, nil
}

func (h *ReleaseRangeHandler) attempts() int {
	if h.SaveAttempts > 0 {
		return h.SaveAttempts
	}
	return defaultSaveAttempts
}

func (h *ReleaseRangeHandler) nowUTC() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[ReleaseRangeCommand, *ReleaseRangeResult] = (*ReleaseRangeHandler)(nil)
