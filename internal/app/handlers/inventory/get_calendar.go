package inventory

import (
	"context"
	"time"

	"stayguard/internal/app/dto"
	"stayguard/internal/app/queries"
	"stayguard/internal/app/support"
	"stayguard/internal/app/uow"
	domaininventory "stayguard/internal/domain/inventory"
	domainrange "stayguard/internal/domain/shared/daterange"
)

const getCalendarKey = "inventory.calendar"

// Default window rendered when the caller does not bound the query.
const defaultCalendarSpan = 365 * 24 * time.Hour

type GetCalendarQuery struct {
	PropertyID string
	From       time.Time
	To         time.Time
}

func (q GetCalendarQuery) Key() string { return getCalendarKey }

type GetCalendarHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *GetCalendarHandler) Handle(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	unit, execCtx, cleanup, err := support.BeginUnit(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return dto.Calendar{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	from := q.From
	if from.IsZero() {
		from = h.nowUTC()
	}
	to := q.To
	if !to.After(from) {
		to = from.Add(defaultCalendarSpan)
	}
	window, err := domainrange.New(from, to)
	if err != nil {
		return dto.Calendar{}, err
	}

	schedule, err := unit.Schedules().Schedule(execCtx, domaininventory.PropertyID(q.PropertyID))
	if err != nil {
		return dto.Calendar{}, err
	}
	return dto.MapCalendar(schedule, window), nil
}

func (h *GetCalendarHandler) nowUTC() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ queries.Handler[GetCalendarQuery, dto.Calendar] = (*GetCalendarHandler)(nil)
