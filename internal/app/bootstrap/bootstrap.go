// Package bootstrap registers every command and query handler behind the
// middleware chain shared by the HTTP and broker adapters.
package bootstrap

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	availabilityapp "rentpool/internal/app/handlers/availability"
	bookingapp "rentpool/internal/app/handlers/booking"
	fleetapp "rentpool/internal/app/handlers/fleet"
	"rentpool/internal/app/middleware"
	"rentpool/internal/app/outbox"
	"rentpool/internal/app/queries"
	"rentpool/internal/app/uow"
	"rentpool/internal/domain/assignment"
)

type Deps struct {
	UoWFactory  uow.UoWFactory
	Idempotency middleware.IdempotencyStore
	Validator   middleware.Validator
	// Flusher is optional; without it events wait for the relay's next tick.
	Flusher outbox.Flusher
	Images  fleetapp.ImageStore
	Logger  *slog.Logger

	Random      *assignment.Source
	MaxAttempts int
	BookTimeout time.Duration
	BookBackoff time.Duration
	Now         func() time.Time
}

type Buses struct {
	Commands commands.Bus
	Queries  queries.Bus
	// Fleet is exposed for jobs that call handlers directly, such as the audit.
	Fleet *fleetapp.Handlers
}

func Build(d Deps) Buses {
	encoder := outbox.JSONEventEncoder{}
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	cmdReg := commands.NewRegistry()
	book := &bookingapp.BookHandler{
		UoWFactory:  d.UoWFactory,
		Encoder:     encoder,
		Random:      d.Random,
		Logger:      d.Logger,
		MaxAttempts: d.MaxAttempts,
		Timeout:     d.BookTimeout,
		Backoff:     d.BookBackoff,
		NewID:       uuid.NewString,
		Now:         now,
	}
	commands.Register[bookingapp.BookCommand, *bookingapp.BookResult](cmdReg, book)

	transitions := &bookingapp.TransitionHandler{UoWFactory: d.UoWFactory, Encoder: encoder, Logger: d.Logger, Now: now}
	commands.Register(cmdReg, transitions.Confirm())
	commands.Register(cmdReg, transitions.Complete())
	commands.Register(cmdReg, transitions.Cancel())

	fleet := &fleetapp.Handlers{UoWFactory: d.UoWFactory, Encoder: encoder, Logger: d.Logger, NewID: uuid.NewString, Now: now}
	commands.Register[fleetapp.CreateGroupCommand, *dto.Group](cmdReg, fleetapp.CreateGroupHandler{Handlers: fleet})
	commands.Register[fleetapp.CreateUnitCommand, *dto.Unit](cmdReg, fleetapp.CreateUnitHandler{Handlers: fleet})
	commands.Register[fleetapp.ConvertToGroupCommand, *dto.Group](cmdReg, fleetapp.ConvertToGroupHandler{Handlers: fleet})
	commands.Register[fleetapp.AddUnitsCommand, *dto.Group](cmdReg, fleetapp.AddUnitsHandler{Handlers: fleet})
	commands.Register[fleetapp.DetachUnitCommand, *fleetapp.DetachUnitResult](cmdReg, fleetapp.DetachUnitHandler{Handlers: fleet})
	commands.Register[fleetapp.UpdatePolicyCommand, *dto.Group](cmdReg, fleetapp.UpdatePolicyHandler{Handlers: fleet})
	commands.Register[fleetapp.BulkUpdateCommand, *fleetapp.BulkUpdateResult](cmdReg, fleetapp.BulkUpdateHandler{Handlers: fleet})
	commands.Register[fleetapp.AppendImagesCommand, *fleetapp.BulkUpdateResult](cmdReg, fleetapp.AppendImagesHandler{Handlers: fleet})
	if d.Images != nil {
		commands.Register[fleetapp.UploadImageCommand, *fleetapp.UploadImageResult](cmdReg, fleetapp.UploadImageHandler{Handlers: fleet, Images: d.Images})
	}

	qReg := queries.NewRegistry()
	queries.Register[availabilityapp.FreeUnitsQuery, dto.GroupAvailability](qReg, &availabilityapp.FreeUnitsHandler{UoWFactory: d.UoWFactory})
	queries.Register[availabilityapp.UnitAvailabilityQuery, dto.UnitAvailability](qReg, &availabilityapp.UnitAvailabilityHandler{UoWFactory: d.UoWFactory})
	queries.Register[bookingapp.GetBookingQuery, dto.Booking](qReg, &bookingapp.GetBookingHandler{UoWFactory: d.UoWFactory})
	queries.Register[bookingapp.ListUnitBookingsQuery, dto.BookingCollection](qReg, &bookingapp.ListUnitBookingsHandler{UoWFactory: d.UoWFactory, Logger: d.Logger})
	queries.Register[fleetapp.GetGroupQuery, dto.Group](qReg, fleetapp.GetGroupHandler{Handlers: fleet})
	queries.Register[fleetapp.GetUnitQuery, dto.Unit](qReg, fleetapp.GetUnitHandler{Handlers: fleet})
	queries.Register[fleetapp.AuditGroupsQuery, dto.AuditReport](qReg, fleetapp.AuditGroupsHandler{Handlers: fleet})

	cmdMW := []middleware.CommandMiddleware{}
	if d.Logger != nil {
		cmdMW = append(cmdMW, middleware.Logging(d.Logger))
	}
	var qryMW []middleware.QueryMiddleware
	if d.Validator != nil {
		cmdMW = append(cmdMW, middleware.Validation(d.Validator))
		qryMW = append(qryMW, middleware.QueryValidation(d.Validator))
	}
	if d.Idempotency != nil {
		cmdMW = append(cmdMW, middleware.Idempotency(d.Idempotency, nil))
	}
	// OutboxFlush wraps Transaction so the relay is only woken after commit.
	if d.Flusher != nil {
		cmdMW = append(cmdMW, middleware.OutboxFlush(d.Flusher))
	}
	cmdMW = append(cmdMW, middleware.Transaction(d.UoWFactory))

	return Buses{
		Commands: middleware.ChainCommands(cmdReg, cmdMW...),
		Queries:  middleware.ChainQueries(qReg, qryMW...),
		Fleet:    fleet,
	}
}
