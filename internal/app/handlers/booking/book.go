package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	"rentpool/internal/app/handlers/support"
	"rentpool/internal/app/middleware"
	"rentpool/internal/app/outbox"
	"rentpool/internal/app/uow"
	"rentpool/internal/domain/assignment"
	"rentpool/internal/domain/availability"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

const (
	bookKey            = "booking.book"
	DefaultMaxAttempts = 3
)

var (
	ErrTargetRequired = errors.New("booking: group id or unit id required")
	ErrPinMismatch    = errors.New("booking: unit id and preferred unit id differ")

	errUnitTaken = errors.New("booking: unit taken inside transaction")
)

// BookCommand reserves one unit. A UnitID or PreferredUnitID pins the unit;
// otherwise the group's assignment strategy picks one. When both are set they
// must name the same unit.
type BookCommand struct {
	GroupID         string
	UnitID          string
	PreferredUnitID string
	CustomerID      string `validate:"required"`
	Start           time.Time
	End             time.Time
	IdempotencyKeyV string
}

func (c BookCommand) Key() string { return bookKey }

func (c BookCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c BookCommand) ResultPrototype() any { return &BookResult{} }

// SelfTransacting keeps the ambient transaction middleware out: every attempt
// needs its own transaction.
func (c BookCommand) SelfTransacting() bool { return true }

type BookResult struct {
	Booking  dto.Booking `json:"booking"`
	Attempts int         `json:"attempts"`
}

type BookHandler struct {
	UoWFactory  uow.UoWFactory
	Encoder     outbox.EventEncoder
	Random      *assignment.Source
	Logger      *slog.Logger
	MaxAttempts int
	// Timeout spans every attempt. Zero leaves the deadline to the caller.
	Timeout time.Duration
	Backoff time.Duration
	NewID   func() string
	Now     func() time.Time
}

type target struct {
	groupID  domainfleet.GroupID
	strategy domainfleet.Strategy
	pinned   domainfleet.UnitID
}

func (h *BookHandler) Handle(ctx context.Context, cmd BookCommand) (*BookResult, error) {
	if h.UoWFactory == nil {
		return nil, uow.ErrUnitOfWorkMissing
	}
	rng, err := daterange.New(cmd.Start, cmd.End)
	if err != nil {
		return nil, err
	}
	customer := strings.TrimSpace(cmd.CustomerID)
	if customer == "" {
		return nil, domainbooking.ErrCustomerIDRequired
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	tgt, err := h.resolveTarget(ctx, cmd)
	if err != nil {
		return nil, deadline(err)
	}
	if tgt.pinned != "" {
		return h.bookPinned(ctx, tgt, rng, customer)
	}
	return h.bookFromGroup(ctx, tgt, rng, customer)
}

func (h *BookHandler) resolveTarget(ctx context.Context, cmd BookCommand) (target, error) {
	groupID := domainfleet.GroupID(strings.TrimSpace(cmd.GroupID))
	unitID := domainfleet.UnitID(strings.TrimSpace(cmd.UnitID))
	preferred := domainfleet.UnitID(strings.TrimSpace(cmd.PreferredUnitID))
	switch {
	case unitID == "":
		unitID = preferred
	case preferred != "" && preferred != unitID:
		return target{}, ErrPinMismatch
	}
	if groupID == "" && unitID == "" {
		return target{}, ErrTargetRequired
	}

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return target{}, err
	}
	defer cleanup()

	if unitID != "" {
		u, err := unit.Fleet().Unit(execCtx, unitID)
		if err != nil {
			return target{}, err
		}
		if groupID != "" && u.GroupID != groupID {
			return target{}, fmt.Errorf("%w: %s is not a member of group %s", domainfleet.ErrUnitNotFound, unitID, groupID)
		}
		return target{groupID: u.GroupID, pinned: u.ID}, nil
	}
	group, err := unit.Fleet().Group(execCtx, groupID)
	if err != nil {
		return target{}, err
	}
	return target{groupID: group.ID, strategy: group.Policy.Strategy}, nil
}

// bookPinned makes exactly one attempt. A pinned unit is never substituted.
func (h *BookHandler) bookPinned(ctx context.Context, tgt target, rng daterange.DateRange, customer string) (*BookResult, error) {
	if err := gate(ctx); err != nil {
		return nil, err
	}
	b, err := h.attempt(ctx, tgt.pinned, tgt.groupID, rng, customer, true)
	switch {
	case err == nil:
		h.logBooked(b, 1)
		return &BookResult{Booking: dto.MapBooking(b), Attempts: 1}, nil
	case errors.Is(err, errUnitTaken), errors.Is(err, uow.ErrWriteConflict):
		h.log().Info("pinned unit unavailable", "unit_id", tgt.pinned, "range", rng.String(), "reason", err)
		return nil, domainbooking.ErrUnitNoLossTolerance
	default:
		return nil, err
	}
}

// bookFromGroup resolves a candidate and retries on conflict with a fresh
// free set, discarding candidates that already lost.
func (h *BookHandler) bookFromGroup(ctx context.Context, tgt target, rng daterange.DateRange, customer string) (*BookResult, error) {
	var lost []domainfleet.UnitID
	attempts := h.maxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := gate(ctx); err != nil {
			return nil, err
		}
		candidate, err := h.candidate(ctx, tgt, rng, lost)
		if err != nil {
			return nil, deadline(err)
		}
		b, err := h.attempt(ctx, candidate, tgt.groupID, rng, customer, false)
		if err == nil {
			h.logBooked(b, attempt)
			return &BookResult{Booking: dto.MapBooking(b), Attempts: attempt}, nil
		}
		if !errors.Is(err, errUnitTaken) && !errors.Is(err, uow.ErrWriteConflict) {
			return nil, err
		}
		lost = append(lost, candidate)
		h.log().Debug("booking attempt lost race", "group_id", tgt.groupID, "unit_id", candidate, "attempt", attempt, "reason", err)
		if attempt < attempts {
			if err := h.pause(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	h.log().Info("booking retries exhausted", "group_id", tgt.groupID, "range", rng.String(), "attempts", attempts)
	return nil, assignment.ErrNoUnitsAvailable
}

// candidate runs the advisory read path. Its answer is re-checked inside the write transaction.
func (h *BookHandler) candidate(ctx context.Context, tgt target, rng daterange.DateRange, lost []domainfleet.UnitID) (domainfleet.UnitID, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return "", err
	}
	defer cleanup()

	resolver := &assignment.Resolver{
		Free:   availability.New(unit.Fleet(), unit.Bookings()),
		Usage:  unit.Bookings(),
		Random: h.random(),
	}
	u, err := resolver.Resolve(execCtx, tgt.groupID, rng, tgt.strategy, lost...)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// attempt re-verifies the unit and inserts the booking in one transaction.
// Once begun the transaction is not cancelled by the caller's context.
func (h *BookHandler) attempt(ctx context.Context, unitID domainfleet.UnitID, groupID domainfleet.GroupID, rng daterange.DateRange, customer string, pinned bool) (*domainbooking.Booking, error) {
	tx, execCtx, err := support.Begin(context.WithoutCancel(ctx), h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(execCtx)
		}
	}()

	u, err := tx.Fleet().Unit(execCtx, unitID)
	if err != nil {
		return nil, err
	}
	if u.GroupID != groupID {
		return nil, errUnitTaken
	}
	free, err := availability.New(tx.Fleet(), tx.Bookings()).UnitFree(execCtx, u, rng)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, errUnitTaken
	}

	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(h.newID()),
		UnitID:     u.ID,
		GroupID:    u.GroupID,
		CustomerID: customer,
		Range:      rng,
		Pinned:     pinned,
		CreatedAt:  h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Bookings().Insert(execCtx, b); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(execCtx, tx.Outbox(), h.Encoder, b.TakeEvents()); err != nil {
		return nil, err
	}
	if err := tx.Commit(execCtx); err != nil {
		return nil, err
	}
	committed = true
	return b, nil
}

func (h *BookHandler) pause(ctx context.Context, attempt int) error {
	if h.Backoff <= 0 {
		return nil
	}
	t := time.NewTimer(h.Backoff * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return gate(ctx)
	case <-t.C:
		return nil
	}
}

// gate stops work that has not started a transaction yet.
func gate(ctx context.Context) error {
	return deadline(ctx.Err())
}

func deadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domainbooking.ErrTimeout
	}
	return err
}

func (h *BookHandler) logBooked(b *domainbooking.Booking, attempt int) {
	h.log().Info("booking created", "booking_id", b.ID, "unit_id", b.UnitID, "group_id", b.GroupID, "range", b.Range.String(), "attempt", attempt)
}

func (h *BookHandler) maxAttempts() int {
	if h.MaxAttempts > 0 {
		return h.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (h *BookHandler) random() *assignment.Source {
	if h.Random != nil {
		return h.Random
	}
	return assignment.NewSource(uint64(time.Now().UnixNano()))
}

func (h *BookHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *BookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *BookHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return discardLogger
}

var discardLogger = slog.New(slog.DiscardHandler)

var _ commands.Handler[BookCommand, *BookResult] = (*BookHandler)(nil)
var _ middleware.IdempotentCommand = (*BookCommand)(nil)
var _ middleware.SelfTransacting = (*BookCommand)(nil)
