package uow

import (
	"context"
	"errors"

	"rentpool/internal/app/outbox"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
)

// ErrWriteConflict reports that a concurrent writer won: a stale version,
// an exclusion constraint violation or a serialization failure.
var ErrWriteConflict = errors.New("uow: write conflict")

// ErrReadOnly is returned by writes issued through a read-only unit.
var ErrReadOnly = errors.New("uow: read-only unit of work")

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Fleet() domainfleet.Repository
	Bookings() domainbooking.Repository
	// Outbox records integration events atomically with the unit's writes.
	Outbox() outbox.Outbox

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
