package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type unitKey struct{}

// SessionBinder is implemented by units whose driver carries the transaction
// in the context, such as a Mongo session.
type SessionBinder interface {
	InjectContext(ctx context.Context) context.Context
}

// ContextWithUnitOfWork makes unit the ambient unit of work for ctx.
func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, unitKey{}, unit)
}

// Bind returns a context carrying unit and, when the driver needs it, its session.
func Bind(ctx context.Context, unit UnitOfWork) context.Context {
	if binder, ok := unit.(SessionBinder); ok {
		ctx = binder.InjectContext(ctx)
	}
	return ContextWithUnitOfWork(ctx, unit)
}

// FromContext reports the ambient unit of work, if any.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(unitKey{}).(UnitOfWork)
	return unit, ok && unit != nil
}
