package support

import (
	"context"

	"stayguard/internal/app/outbox"
	"stayguard/internal/domain/shared/events"
)

// DrainEvents moves pending aggregate events into the outbox and clears the
// recorders, so a retried attempt never stages an event twice.
func DrainEvents(ctx context.Context, box outbox.Outbox, encoder outbox.EventEncoder, recorders ...*events.EventRecorder) error {
	for _, rec := range recorders {
		if rec == nil {
			continue
		}
		pending := rec.PendingEvents()
		rec.ClearEvents()
		if err := outbox.RecordDomainEvents(ctx, box, encoder, pending); err != nil {
			return err
		}
	}
	return nil
}
