package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "stayguard/internal/app/outbox"
	infraoutbox "stayguard/internal/infra/outbox"
)

// Outbox queues staged event records in memory and feeds the publish worker.
type Outbox struct {
	mu    sync.Mutex
	order []string
	items map[string]*queuedEvent
}

type queuedEvent struct {
	record      appoutbox.EventRecord
	attempts    int
	nextAttempt time.Time
	claimed     bool
}

func NewOutbox() *Outbox {
	return &Outbox{items: make(map[string]*queuedEvent)}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.items[record.ID]; ok {
		return nil
	}
	o.items[record.ID] = &queuedEvent{record: record, nextAttempt: time.Now().UTC()}
	o.order = append(o.order, record.ID)
	return nil
}

// Flush is a commit marker; records stay queued until the worker claims them.
func (o *Outbox) Flush(ctx context.Context) error {
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.PendingEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range o.order {
		ev, ok := o.items[id]
		if !ok || ev.claimed || ev.nextAttempt.After(now) {
			continue
		}
		ev.claimed = true
		return &infraoutbox.PendingEvent{
			ID:         ev.record.ID,
			Name:       ev.record.Name,
			Payload:    ev.record.Payload,
			OccurredAt: ev.record.OccurredAt,
			Aggregate:  ev.record.Aggregate,
			Headers:    ev.record.Headers,
			Attempts:   ev.attempts,
		}, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, id)
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ev, ok := o.items[id]
	if !ok {
		return nil
	}
	ev.claimed = false
	ev.attempts++
	ev.nextAttempt = next
	return nil
}

var _ appoutbox.Outbox = (*Outbox)(nil)
var _ infraoutbox.Store = (*Outbox)(nil)
