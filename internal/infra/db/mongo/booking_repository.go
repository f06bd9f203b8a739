package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

type bookingRepository struct {
	u *Unit
}

func (r bookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	err := r.u.collection(colBookings).FindOne(r.u.sessionCtx(ctx), bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainbooking.ErrBookingNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return doc.toAggregate()
}

// Insert claims the unit's occupancy document before checking for overlaps.
// Two transactions booking the same unit both write that document, so the
// later one fails with a write conflict even when their snapshots showed the
// unit free.
func (r bookingRepository) Insert(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	sc := r.u.sessionCtx(ctx)
	if err := r.touchOccupancy(sc, b.UnitID); err != nil {
		return err
	}
	n, err := r.u.collection(colBookings).CountDocuments(sc, overlapFilter([]domainfleet.UnitID{b.UnitID}, b.Range))
	if err != nil {
		return mapError(err)
	}
	if n > 0 {
		return uow.ErrWriteConflict
	}
	b.Version = 1
	if _, err := r.u.collection(colBookings).InsertOne(sc, newBookingDocument(b)); err != nil {
		return mapError(err)
	}
	return nil
}

func (r bookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	sc := r.u.sessionCtx(ctx)
	if err := r.touchOccupancy(sc, b.UnitID); err != nil {
		return err
	}
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	res, err := r.u.collection(colBookings).ReplaceOne(sc, bson.M{"_id": doc.ID, "version": b.Version}, doc)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return uow.ErrWriteConflict
	}
	b.Version = doc.Version
	return nil
}

func (r bookingRepository) touchOccupancy(ctx context.Context, unitID domainfleet.UnitID) error {
	_, err := r.u.collection(colOccupancy).UpdateOne(ctx,
		bson.M{"_id": string(unitID)},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.Update().SetUpsert(true),
	)
	return mapError(err)
}

func (r bookingRepository) ActiveOverlapping(ctx context.Context, units []domainfleet.UnitID, rng daterange.DateRange) ([]*domainbooking.Booking, error) {
	if len(units) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, overlapFilter(units, rng), opts)
}

func (r bookingRepository) ListByUnit(ctx context.Context, unitID domainfleet.UnitID) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"unit_id": string(unitID)}, opts)
}

func (r bookingRepository) UsageCounts(ctx context.Context, units []domainfleet.UnitID) (map[domainfleet.UnitID]int, error) {
	out := make(map[domainfleet.UnitID]int)
	if len(units) == 0 {
		return out, nil
	}
	sc := r.u.sessionCtx(ctx)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"unit_id": bson.M{"$in": unitStrings(units)},
			"status":  bson.M{"$in": statusStrings(domainbooking.UsageStatuses)},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$unit_id", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := r.u.collection(colBookings).Aggregate(sc, pipeline)
	if err != nil {
		return nil, mapError(err)
	}
	var rows []struct {
		ID string `bson:"_id"`
		N  int    `bson:"n"`
	}
	if err := cur.All(sc, &rows); err != nil {
		return nil, mapError(err)
	}
	for _, row := range rows {
		out[domainfleet.UnitID(row.ID)] = row.N
	}
	return out, nil
}

func (r bookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	sc := r.u.sessionCtx(ctx)
	cur, err := r.u.collection(colBookings).Find(sc, filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	var docs []bookingDocument
	if err := cur.All(sc, &docs); err != nil {
		return nil, mapError(err)
	}
	out := make([]*domainbooking.Booking, 0, len(docs))
	for _, d := range docs {
		b, err := d.toAggregate()
		if err != nil {
			return nil, fmt.Errorf("mongo: decode booking %s: %w", d.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// overlapFilter matches active bookings sharing at least one day with rng.
func overlapFilter(units []domainfleet.UnitID, rng daterange.DateRange) bson.M {
	return bson.M{
		"unit_id": bson.M{"$in": unitStrings(units)},
		"status":  bson.M{"$in": statusStrings(domainbooking.ActiveStatuses)},
		"start":   bson.M{"$lt": rng.End},
		"end":     bson.M{"$gt": rng.Start},
	}
}

func unitStrings(ids []domainfleet.UnitID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
