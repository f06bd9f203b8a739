package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"rentpool/internal/app/uow"
	domainfleet "rentpool/internal/domain/fleet"
)

type fleetRepository struct {
	u *Unit
}

func (r fleetRepository) Unit(ctx context.Context, id domainfleet.UnitID) (*domainfleet.Unit, error) {
	unit, err := scanUnit(r.u.tx.QueryRow(ctx, `SELECT `+unitColumns+` FROM fleet_units WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainfleet.ErrUnitNotFound
	}
	return unit, mapError(err)
}

func (r fleetRepository) Group(ctx context.Context, id domainfleet.GroupID) (*domainfleet.Group, error) {
	group, err := scanGroup(r.u.tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM fleet_groups WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainfleet.ErrGroupNotFound
	}
	return group, mapError(err)
}

func (r fleetRepository) Members(ctx context.Context, id domainfleet.GroupID) ([]*domainfleet.Unit, error) {
	rows, err := r.u.tx.Query(ctx, `SELECT `+unitColumns+` FROM fleet_units WHERE group_id = $1 ORDER BY position, id`, string(id))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*domainfleet.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan unit: %w", err)
		}
		out = append(out, unit)
	}
	return out, mapError(rows.Err())
}

func (r fleetRepository) Groups(ctx context.Context) ([]*domainfleet.Group, error) {
	rows, err := r.u.tx.Query(ctx, `SELECT `+groupColumns+` FROM fleet_groups ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*domainfleet.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan group: %w", err)
		}
		out = append(out, group)
	}
	return out, mapError(rows.Err())
}

func (r fleetRepository) SaveUnit(ctx context.Context, unit *domainfleet.Unit) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if unit == nil {
		return domainfleet.ErrUnitNotFound
	}
	args, err := unitArgs(unit)
	if err != nil {
		return err
	}
	const insert = `INSERT INTO fleet_units (id, group_id, position, display_name, is_group_primary, available, vehicle_type,
		price_per_day, specifications, images, description, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::jsonb, $10::jsonb, $11, $12, $13, $14)`
	const update = `UPDATE fleet_units SET group_id = $2, position = $3, display_name = $4, is_group_primary = $5,
		available = $6, vehicle_type = $7, price_per_day = $8::numeric, specifications = $9::jsonb, images = $10::jsonb,
		description = $11, created_at = $12, updated_at = $13, version = $14
		WHERE id = $1 AND version = $15`
	if err := r.saveVersioned(ctx, insert, update, args, unit.Version); err != nil {
		return err
	}
	unit.Version++
	return nil
}

func (r fleetRepository) SaveGroup(ctx context.Context, group *domainfleet.Group) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if group == nil {
		return domainfleet.ErrGroupNotFound
	}
	const insert = `INSERT INTO fleet_groups (id, name, vehicle_type, total_quantity, strategy, naming_template,
		share_pricing, share_specifications, share_images, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	const update = `UPDATE fleet_groups SET name = $2, vehicle_type = $3, total_quantity = $4, strategy = $5,
		naming_template = $6, share_pricing = $7, share_specifications = $8, share_images = $9,
		created_at = $10, updated_at = $11, version = $12
		WHERE id = $1 AND version = $13`
	if err := r.saveVersioned(ctx, insert, update, groupArgs(group), group.Version); err != nil {
		return err
	}
	group.Version++
	return nil
}

// saveVersioned inserts at version 1 or updates the row still at base. The
// insert takes args plus the new version; the update also takes base.
func (r fleetRepository) saveVersioned(ctx context.Context, insert, update string, args []any, base int64) error {
	args = append(args, base+1)
	if base == 0 {
		_, err := r.u.tx.Exec(ctx, insert, args...)
		return mapError(err)
	}
	tag, err := r.u.tx.Exec(ctx, update, append(args, base)...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return uow.ErrWriteConflict
	}
	return nil
}

func (r fleetRepository) DeleteUnit(ctx context.Context, id domainfleet.UnitID) error {
	return r.delete(ctx, `DELETE FROM fleet_units WHERE id = $1`, string(id), domainfleet.ErrUnitNotFound)
}

func (r fleetRepository) DeleteGroup(ctx context.Context, id domainfleet.GroupID) error {
	return r.delete(ctx, `DELETE FROM fleet_groups WHERE id = $1`, string(id), domainfleet.ErrGroupNotFound)
}

func (r fleetRepository) delete(ctx context.Context, stmt, id string, notFound error) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	tag, err := r.u.tx.Exec(ctx, stmt, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
