package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayguard/internal/app/uow"
	domaininventory "stayguard/internal/domain/inventory"
)

// ScheduleRepository persists one document per property. The versioned upsert
// is the storage-level guard: when two writers race on the same property the
// second save misses the version filter (or trips the _id unique index) and
// surfaces uow.ErrConcurrentUpdate for the handler to retry against fresh state.
type ScheduleRepository struct {
	col *mongo.Collection
}

func NewScheduleRepository(db *mongo.Database) *ScheduleRepository {
	return &ScheduleRepository{col: db.Collection("agg_schedule")}
}

func (r *ScheduleRepository) Schedule(ctx context.Context, id domaininventory.PropertyID) (*domaininventory.Schedule, error) {
	var doc scheduleDocument
	err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domaininventory.NewSchedule(id), nil
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *domaininventory.Schedule) error {
	doc := newScheduleDocument(schedule)
	filter := bson.M{"_id": doc.ID, "version": schedule.Version}
	doc.Version = schedule.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return uow.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return uow.ErrConcurrentUpdate
	}
	schedule.Version = doc.Version
	return nil
}

type scheduleDocument struct {
	ID      string          `bson:"_id"`
	Version int64           `bson:"version"`
	Ranges  []rangeDocument `bson:"ranges"`
}

type rangeDocument struct {
	ID          string `bson:"range_id"`
	CheckIn     int64  `bson:"check_in"`
	CheckOut    int64  `bson:"check_out"`
	Disposition string `bson:"disposition"`
	Status      string `bson:"status"`
	OwnerRef    string `bson:"owner_ref"`
	CreatedAt   int64  `bson:"created_at"`
	ReleasedAt  int64  `bson:"released_at,omitempty"`
}

func newScheduleDocument(s *domaininventory.Schedule) scheduleDocument {
	ranges := s.Ranges()
	docs := make([]rangeDocument, 0, len(ranges))
	for _, r := range ranges {
		doc := rangeDocument{
			ID:          string(r.ID),
			CheckIn:     r.Span.CheckIn.UnixMilli(),
			CheckOut:    r.Span.CheckOut.UnixMilli(),
			Disposition: string(r.Disposition),
			Status:      string(r.Status),
			OwnerRef:    r.OwnerRef,
			CreatedAt:   r.CreatedAt.UnixMilli(),
		}
		if !r.ReleasedAt.IsZero() {
			doc.ReleasedAt = r.ReleasedAt.UnixMilli()
		}
		docs = append(docs, doc)
	}
	return scheduleDocument{ID: string(s.PropertyID), Version: s.Version, Ranges: docs}
}

func (d scheduleDocument) toAggregate() *domaininventory.Schedule {
	propertyID := domaininventory.PropertyID(d.ID)
	ranges := make([]domaininventory.Range, 0, len(d.Ranges))
	for _, doc := range d.Ranges {
		r := domaininventory.Range{
			ID:          domaininventory.RangeID(doc.ID),
			PropertyID:  propertyID,
			Disposition: domaininventory.Disposition(doc.Disposition),
			Status:      domaininventory.RangeStatus(doc.Status),
			OwnerRef:    doc.OwnerRef,
			CreatedAt:   timestampToTime(doc.CreatedAt),
		}
		r.Span.CheckIn = timestampToTime(doc.CheckIn)
		r.Span.CheckOut = timestampToTime(doc.CheckOut)
		if doc.ReleasedAt != 0 {
			r.ReleasedAt = timestampToTime(doc.ReleasedAt)
		}
		ranges = append(ranges, r)
	}
	return domaininventory.Restore(propertyID, d.Version, ranges)
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domaininventory.Repository = (*ScheduleRepository)(nil)
