package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection("agg_booking")}
}

// EnsureIndexes creates the (state, deadline) index the expiry sweep scans.
// Called once at bootstrap; a failure there is a failure to start.
func (r *BookingRepository) EnsureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "state", Value: 1}, {Key: "deadline", Value: 1}}}
	_, err := r.col.Indexes().CreateOne(ctx, idx)
	return err
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
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
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"state":    string(domainbooking.StateReserved),
		"deadline": bson.M{"$lte": now.UTC().UnixMilli()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "deadline", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var due []*domainbooking.Booking
	for cursor.Next(ctx) {
		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		due = append(due, doc.toAggregate())
	}
	return due, cursor.Err()
}

type bookingDocument struct {
	ID         string `bson:"_id"`
	PropertyID string `bson:"property_id"`
	RangeID    string `bson:"range_id"`
	CheckIn    int64  `bson:"check_in"`
	CheckOut   int64  `bson:"check_out"`
	GuestID    string `bson:"guest_id"`
	Guests     int    `bson:"guests"`
	Deadline   int64  `bson:"deadline"`
	State      string `bson:"state"`
	CreatedAt  int64  `bson:"created_at"`
	UpdatedAt  int64  `bson:"updated_at"`
	Version    int64  `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:         string(b.ID),
		PropertyID: string(b.PropertyID),
		RangeID:    string(b.RangeID),
		CheckIn:    b.Span.CheckIn.UnixMilli(),
		CheckOut:   b.Span.CheckOut.UnixMilli(),
		GuestID:    b.GuestID,
		Guests:     b.Guests,
		Deadline:   b.Deadline.UnixMilli(),
		State:      string(b.State),
		CreatedAt:  b.CreatedAt.UnixMilli(),
		UpdatedAt:  b.UpdatedAt.UnixMilli(),
		Version:    b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	agg := &domainbooking.Booking{
		ID:         domainbooking.BookingID(d.ID),
		PropertyID: domaininventory.PropertyID(d.PropertyID),
		RangeID:    domaininventory.RangeID(d.RangeID),
		GuestID:    d.GuestID,
		Guests:     d.Guests,
		Deadline:   timestampToTime(d.Deadline),
		State:      domainbooking.BookingState(d.State),
		CreatedAt:  timestampToTime(d.CreatedAt),
		UpdatedAt:  timestampToTime(d.UpdatedAt),
		Version:    d.Version,
	}
	agg.Span.CheckIn = timestampToTime(d.CheckIn)
	agg.Span.CheckOut = timestampToTime(d.CheckOut)
	return agg
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
