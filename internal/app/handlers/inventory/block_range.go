package inventory

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
	domaininventory "stayguard/internal/domain/inventory"
	domainrange "stayguard/internal/domain/shared/daterange"
)

const blockRangeKey = "inventory.block"

const defaultSaveAttempts = 3

// BlockRangeCommand creates a manual-block or maintenance range. External
// calendar importers go through this path so their ranges face the same
// conflict check as bookings; nothing writes ranges directly.
type BlockRangeCommand struct {
	CommandID       string
	PropertyID      string
	CheckIn         time.Time
	CheckOut        time.Time
	Disposition     string
	Reference       string
	IdempotencyKeyV string
}

func (c BlockRangeCommand) Key() string { return blockRangeKey }

func (c BlockRangeCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c BlockRangeCommand) ResultPrototype() any { return &BlockRangeResult{} }

type BlockRangeResult struct {
	RangeID string `json:"range_id"`
}

type BlockRangeHandler struct {
	UoWFactory   uow.UoWFactory
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	SaveAttempts int
	Now          func() time.Time
}

func (h *BlockRangeHandler) Handle(ctx context.Context, cmd BlockRangeCommand) (*BlockRangeResult, error) {
	span, err := domainrange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, err
	}
	disposition, err := parseBlockDisposition(cmd.Disposition)
	if err != nil {
		return nil, err
	}

	// A managed unit's transaction is already dead after a lost version
	// race; the transaction middleware restarts the command in a fresh one.
	_, managed := uow.FromContext(ctx)
	var result *BlockRangeResult
	for attempt := 0; attempt < h.attempts(); attempt++ {
		result, err = h.blockOnce(ctx, cmd, span, disposition)
		if managed || !errors.Is(err, uow.ErrConcurrentUpdate) {
			break
		}
	}
	return result, err
}

func (h *BlockRangeHandler) blockOnce(ctx context.Context, cmd BlockRangeCommand, span domainrange.DateRange, disposition domaininventory.Disposition) (*BlockRangeResult, error) {
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

	now := h.nowUTC()
	block, err := domaininventory.NewRange(domaininventory.NewRangeParams{
		ID:          domaininventory.RangeID(uuid.NewString()),
		PropertyID:  schedule.PropertyID,
		CheckIn:     span.CheckIn,
		CheckOut:    span.CheckOut,
		Disposition: disposition,
		OwnerRef:    cmd.Reference,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if err := schedule.Insert(block, now); err != nil {
		return nil, err
	}
	if err := unit.Schedules().Save(execCtx, schedule); err != nil {
		return nil, err
	}
	if err := support.DrainEvents(execCtx, h.Outbox, h.Encoder, &schedule.EventRecorder); err != nil {
		return nil, err
	}

	if owned {
		if err := unit.Commit(execCtx); err != nil {
			return nil, err
		}
		committed = true
	}

	return &BlockRangeResult{RangeID: string(block.ID)}, nil
}

func (h *BlockRangeHandler) attempts() int {
	if h.SaveAttempts > 0 {
		return h.SaveAttempts
	}
	return defaultSaveAttempts
}

func (h *BlockRangeHandler) nowUTC() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func parseBlockDisposition(raw string) (domaininventory.Disposition, error) {
	switch domaininventory.Disposition(raw) {
	case domaininventory.DispositionManualBlock, "":
		return domaininventory.DispositionManualBlock, nil
	case domaininventory.DispositionMaintenance:
		return domaininventory.DispositionMaintenance, nil
	default:
		// Booking ranges are created only through the reserve path.
		return "", domaininventory.ErrUnknownDisposition
	}
}

var _ commands.Handler[BlockRangeCommand, *BlockRangeResult] = (*BlockRangeHandler)(nil)
var _ middleware.IdempotentCommand = (*BlockRangeCommand)(nil)
