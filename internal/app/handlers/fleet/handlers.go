package fleet

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentpool/internal/app/outbox"
	"rentpool/internal/app/uow"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/events"
)

var (
	ErrGroupIDRequired = errors.New("fleet: group id is required")
	ErrUnitIDRequired  = errors.New("fleet: unit id is required")
)

// Handlers groups the fleet commands and queries. Commands run inside the
// ambient unit of work when one exists.
type Handlers struct {
	UoWFactory uow.UoWFactory
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	NewID      func() string
	Now        func() time.Time
}

// PolicyInput is a partial policy. Nil flags keep the current value.
type PolicyInput struct {
	Strategy            string `validate:"omitempty,oneof=sequential random least_used"`
	NamingTemplate      string `validate:"max=120"`
	SharePricing        *bool
	ShareSpecifications *bool
	ShareImages         *bool
}

func (in PolicyInput) applyTo(base domainfleet.Policy) (domainfleet.Policy, error) {
	p := base
	if s := strings.TrimSpace(in.Strategy); s != "" {
		parsed, err := domainfleet.ParseStrategy(s)
		if err != nil {
			return domainfleet.Policy{}, err
		}
		p.Strategy = parsed
	}
	if t := strings.TrimSpace(in.NamingTemplate); t != "" {
		p.NamingTemplate = t
	}
	if in.SharePricing != nil {
		p.SharePricing = *in.SharePricing
	}
	if in.ShareSpecifications != nil {
		p.ShareSpecifications = *in.ShareSpecifications
	}
	if in.ShareImages != nil {
		p.ShareImages = *in.ShareImages
	}
	return p.Normalized(), nil
}

func (h *Handlers) loadGroup(ctx context.Context, repo domainfleet.Repository, rawID string) (*domainfleet.Group, []*domainfleet.Unit, error) {
	id := domainfleet.GroupID(strings.TrimSpace(rawID))
	if id == "" {
		return nil, nil, ErrGroupIDRequired
	}
	g, err := repo.Group(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	members, err := repo.Members(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	domainfleet.SortByPosition(members)
	return g, members, nil
}

func saveUnits(ctx context.Context, repo domainfleet.Repository, units []*domainfleet.Unit) error {
	for _, u := range units {
		if err := repo.SaveUnit(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) record(ctx context.Context, unit uow.UnitOfWork, sources ...events.Source) error {
	return outbox.RecordDomainEvents(ctx, unit.Outbox(), h.Encoder, events.Collect(sources...))
}

func (h *Handlers) newUnitID() domainfleet.UnitID {
	return domainfleet.UnitID(h.newID())
}

func (h *Handlers) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Handlers) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.DiscardHandler)
}
