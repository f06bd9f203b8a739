package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentpool/internal/app/uow"
	domainfleet "rentpool/internal/domain/fleet"
)

type fleetRepository struct {
	u *Unit
}

func (r fleetRepository) Unit(ctx context.Context, id domainfleet.UnitID) (*domainfleet.Unit, error) {
	var doc unitDocument
	err := r.u.collection(colUnits).FindOne(r.u.sessionCtx(ctx), bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainfleet.ErrUnitNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return doc.toAggregate()
}

func (r fleetRepository) Group(ctx context.Context, id domainfleet.GroupID) (*domainfleet.Group, error) {
	var doc groupDocument
	err := r.u.collection(colGroups).FindOne(r.u.sessionCtx(ctx), bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainfleet.ErrGroupNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return doc.toAggregate()
}

func (r fleetRepository) Members(ctx context.Context, id domainfleet.GroupID) ([]*domainfleet.Unit, error) {
	sc := r.u.sessionCtx(ctx)
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.u.collection(colUnits).Find(sc, bson.M{"group_id": string(id)}, opts)
	if err != nil {
		return nil, mapError(err)
	}
	var docs []unitDocument
	if err := cur.All(sc, &docs); err != nil {
		return nil, mapError(err)
	}
	out := make([]*domainfleet.Unit, 0, len(docs))
	for _, d := range docs {
		u, err := d.toAggregate()
		if err != nil {
			return nil, fmt.Errorf("mongo: decode unit %s: %w", d.ID, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func (r fleetRepository) Groups(ctx context.Context) ([]*domainfleet.Group, error) {
	sc := r.u.sessionCtx(ctx)
	cur, err := r.u.collection(colGroups).Find(sc, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapError(err)
	}
	var docs []groupDocument
	if err := cur.All(sc, &docs); err != nil {
		return nil, mapError(err)
	}
	out := make([]*domainfleet.Group, 0, len(docs))
	for _, d := range docs {
		g, err := d.toAggregate()
		if err != nil {
			return nil, fmt.Errorf("mongo: decode group %s: %w", d.ID, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// SaveUnit inserts version 1 or replaces the document still at the caller's
// version. A missed match means someone else saved first.
func (r fleetRepository) SaveUnit(ctx context.Context, unit *domainfleet.Unit) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if unit == nil {
		return domainfleet.ErrUnitNotFound
	}
	doc := newUnitDocument(unit)
	doc.Version = unit.Version + 1
	if err := saveVersioned(r.u.sessionCtx(ctx), r.u.collection(colUnits), doc.ID, unit.Version, doc); err != nil {
		return err
	}
	unit.Version = doc.Version
	return nil
}

func (r fleetRepository) SaveGroup(ctx context.Context, group *domainfleet.Group) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if group == nil {
		return domainfleet.ErrGroupNotFound
	}
	doc := newGroupDocument(group)
	doc.Version = group.Version + 1
	if err := saveVersioned(r.u.sessionCtx(ctx), r.u.collection(colGroups), doc.ID, group.Version, doc); err != nil {
		return err
	}
	group.Version = doc.Version
	return nil
}

func (r fleetRepository) DeleteUnit(ctx context.Context, id domainfleet.UnitID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	res, err := r.u.collection(colUnits).DeleteOne(r.u.sessionCtx(ctx), bson.M{"_id": string(id)})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return domainfleet.ErrUnitNotFound
	}
	return nil
}

func (r fleetRepository) DeleteGroup(ctx context.Context, id domainfleet.GroupID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	res, err := r.u.collection(colGroups).DeleteOne(r.u.sessionCtx(ctx), bson.M{"_id": string(id)})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return domainfleet.ErrGroupNotFound
	}
	return nil
}

func saveVersioned(ctx context.Context, col *mongo.Collection, id string, base int64, doc any) error {
	if base == 0 {
		_, err := col.InsertOne(ctx, doc)
		return mapError(err)
	}
	res, err := col.ReplaceOne(ctx, bson.M{"_id": id, "version": base}, doc)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return uow.ErrWriteConflict
	}
	return nil
}
