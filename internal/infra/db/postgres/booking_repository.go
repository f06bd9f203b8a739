package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

type bookingRepository struct {
	u *Unit
}

func (r bookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	b, err := scanBooking(r.u.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainbooking.ErrBookingNotFound
	}
	return b, mapError(err)
}

// Insert relies on bookings_no_overlap; a violation comes back as a write conflict.
func (r bookingRepository) Insert(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	args := append(bookingArgs(b), int64(1))
	_, err := r.u.tx.Exec(ctx, `INSERT INTO bookings (id, unit_id, group_id, customer_id, start_date, end_date,
		status, created_at, updated_at, version) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, args...)
	if err != nil {
		return mapError(err)
	}
	b.Version = 1
	return nil
}

func (r bookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	args := append(bookingArgs(b), b.Version+1, b.Version)
	tag, err := r.u.tx.Exec(ctx, `UPDATE bookings SET unit_id = $2, group_id = $3, customer_id = $4, start_date = $5,
		end_date = $6, status = $7, created_at = $8, updated_at = $9, version = $10
		WHERE id = $1 AND version = $11`, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return uow.ErrWriteConflict
	}
	b.Version++
	return nil
}

func (r bookingRepository) ActiveOverlapping(ctx context.Context, units []domainfleet.UnitID, rng daterange.DateRange) ([]*domainbooking.Booking, error) {
	if len(units) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE unit_id = ANY($1) AND status = ANY($2) AND start_date < $4 AND end_date > $3
		ORDER BY start_date, id`,
		unitStrings(units), statusStrings(domainbooking.ActiveStatuses), rng.Start, rng.End)
}

func (r bookingRepository) ListByUnit(ctx context.Context, unitID domainfleet.UnitID) ([]*domainbooking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE unit_id = $1 ORDER BY created_at, id`, string(unitID))
}

func (r bookingRepository) UsageCounts(ctx context.Context, units []domainfleet.UnitID) (map[domainfleet.UnitID]int, error) {
	out := make(map[domainfleet.UnitID]int)
	if len(units) == 0 {
		return out, nil
	}
	rows, err := r.u.tx.Query(ctx, `SELECT unit_id, count(*) FROM bookings
		WHERE unit_id = ANY($1) AND status = ANY($2) GROUP BY unit_id`,
		unitStrings(units), statusStrings(domainbooking.UsageStatuses))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[domainfleet.UnitID(id)] = n
	}
	return out, mapError(rows.Err())
}

func (r bookingRepository) list(ctx context.Context, query string, args ...any) ([]*domainbooking.Booking, error) {
	rows, err := r.u.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []*domainbooking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}
