package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
	"stayguard/internal/domain/shared/events"
)

// ScheduleRepository keeps per-property schedules as versioned snapshots.
// Loads materialize a fresh aggregate from the snapshot; Save performs a
// compare-and-swap on the version so the load-mutate-save race between two
// writers on the same property is always detected, never silently merged.
// Writers on different properties only contend on the map lock for the
// duration of a snapshot swap.
type ScheduleRepository struct {
	mu    sync.RWMutex
	items map[domaininventory.PropertyID]scheduleSnapshot
}

type scheduleSnapshot struct {
	version int64
	ranges  []domaininventory.Range
}

func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{items: make(map[domaininventory.PropertyID]scheduleSnapshot)}
}

// Schedule loads a property's schedule, lazily creating an empty one.
func (r *ScheduleRepository) Schedule(ctx context.Context, id domaininventory.PropertyID) (*domaininventory.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.items[id]
	if !ok {
		return domaininventory.NewSchedule(id), nil
	}
	ranges := make([]domaininventory.Range, len(snap.ranges))
	copy(ranges, snap.ranges)
	return domaininventory.Restore(id, snap.version, ranges), nil
}

// Save commits the aggregate if its version still matches the stored one.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *domaininventory.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := int64(0)
	if snap, ok := r.items[schedule.PropertyID]; ok {
		current = snap.version
	}
	if schedule.Version != current {
		return uow.ErrConcurrentUpdate
	}
	next := schedule.Version + 1
	r.items[schedule.PropertyID] = scheduleSnapshot{version: next, ranges: schedule.Ranges()}
	schedule.Version = next
	return nil
}

var _ domaininventory.Repository = (*ScheduleRepository)(nil)

// BookingRepository stores bookings in memory with the same versioned-save discipline.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	cp := stored
	cp.EventRecorder = events.EventRecorder{}
	return &cp, nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := int64(0)
	if stored, ok := r.items[b.ID]; ok {
		current = stored.Version
	}
	if b.Version != current {
		return uow.ErrConcurrentUpdate
	}
	b.Version = current + 1
	cp := *b
	cp.EventRecorder = events.EventRecorder{}
	r.items[b.ID] = cp
	return nil
}

func (r *BookingRepository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	due := make([]*domainbooking.Booking, 0)
	for _, stored := range r.items {
		if stored.State != domainbooking.StateReserved {
			continue
		}
		if stored.Deadline.After(now.UTC()) {
			continue
		}
		cp := stored
		cp.EventRecorder = events.EventRecorder{}
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
