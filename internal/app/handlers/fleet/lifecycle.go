package fleet

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	"rentpool/internal/app/handlers/support"
	"rentpool/internal/app/middleware"
	"rentpool/internal/app/uow"
	domainfleet "rentpool/internal/domain/fleet"
)

const (
	createGroupKey    = "fleet.create_group"
	convertToGroupKey = "fleet.convert_to_group"
	addUnitsKey       = "fleet.add_units"
	detachUnitKey     = "fleet.detach_unit"
	updatePolicyKey   = "fleet.update_policy"
	createUnitKey     = "fleet.create_unit"
)

type CreateGroupCommand struct {
	Name            string `validate:"required,max=120"`
	VehicleType     string `validate:"required,max=60"`
	Quantity        int    `validate:"required,min=1,max=500"`
	Policy          PolicyInput
	PricePerDay     decimal.Decimal
	Specifications  map[string]string `validate:"omitempty,max=64"`
	Images          []string          `validate:"omitempty,max=32,dive,url"`
	Description     string            `validate:"max=4000"`
	Available       *bool
	IdempotencyKeyV string
}

func (c CreateGroupCommand) Key() string { return createGroupKey }

func (c CreateGroupCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateGroupCommand) ResultPrototype() any { return &dto.Group{} }

type CreateGroupHandler struct {
	*Handlers
}

func (h CreateGroupHandler) Handle(ctx context.Context, cmd CreateGroupCommand) (*dto.Group, error) {
	policy, err := cmd.Policy.applyTo(domainfleet.DefaultPolicy())
	if err != nil {
		return nil, err
	}
	available := true
	if cmd.Available != nil {
		available = *cmd.Available
	}
	g, units, err := domainfleet.NewGroup(domainfleet.CreateGroupParams{
		ID:          domainfleet.GroupID(h.newID()),
		Name:        cmd.Name,
		VehicleType: cmd.VehicleType,
		Quantity:    cmd.Quantity,
		Policy:      policy,
		Template: domainfleet.UnitTemplate{
			PricePerDay:    cmd.PricePerDay,
			Specifications: cmd.Specifications,
			Images:         cmd.Images,
			Description:    cmd.Description,
			Available:      available,
		},
		NewUnitID: h.newUnitID,
		Now:       h.now(),
	})
	if err != nil {
		return nil, err
	}
	err = support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		if err := repo.SaveGroup(ctx, g); err != nil {
			return err
		}
		if err := saveUnits(ctx, repo, units); err != nil {
			return err
		}
		return h.record(ctx, unit, g)
	})
	if err != nil {
		return nil, err
	}
	h.log().Info("group created", "group_id", g.ID, "quantity", g.TotalQuantity, "strategy", g.Policy.Strategy.String())
	out := dto.MapGroup(g, units)
	return &out, nil
}

// CreateUnitCommand registers a standalone unit, a group of one.
type CreateUnitCommand struct {
	DisplayName     string `validate:"required,max=120"`
	VehicleType     string `validate:"required,max=60"`
	PricePerDay     decimal.Decimal
	Specifications  map[string]string `validate:"omitempty,max=64"`
	Images          []string          `validate:"omitempty,max=32,dive,url"`
	Description     string            `validate:"max=4000"`
	Available       *bool
	IdempotencyKeyV string
}

func (c CreateUnitCommand) Key() string { return createUnitKey }

func (c CreateUnitCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateUnitCommand) ResultPrototype() any { return &dto.Unit{} }

type CreateUnitHandler struct {
	*Handlers
}

func (h CreateUnitHandler) Handle(ctx context.Context, cmd CreateUnitCommand) (*dto.Unit, error) {
	available := true
	if cmd.Available != nil {
		available = *cmd.Available
	}
	u, err := domainfleet.NewUnit(domainfleet.CreateUnitParams{
		ID:          h.newUnitID(),
		DisplayName: cmd.DisplayName,
		VehicleType: cmd.VehicleType,
		Template: domainfleet.UnitTemplate{
			PricePerDay:    cmd.PricePerDay,
			Specifications: cmd.Specifications,
			Images:         cmd.Images,
			Description:    cmd.Description,
			Available:      available,
		},
		Now: h.now(),
	})
	if err != nil {
		return nil, err
	}
	err = support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Fleet().SaveUnit(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	out := dto.MapUnit(u)
	return &out, nil
}

type ConvertToGroupCommand struct {
	Name    string   `validate:"required,max=120"`
	UnitIDs []string `validate:"required,min=1,max=500,dive,required"`
	Policy  PolicyInput
}

func (c ConvertToGroupCommand) Key() string { return convertToGroupKey }

type ConvertToGroupHandler struct {
	*Handlers
}

func (h ConvertToGroupHandler) Handle(ctx context.Context, cmd ConvertToGroupCommand) (*dto.Group, error) {
	policy, err := cmd.Policy.applyTo(domainfleet.DefaultPolicy())
	if err != nil {
		return nil, err
	}
	var out dto.Group
	err = support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		units := make([]*domainfleet.Unit, 0, len(cmd.UnitIDs))
		for _, raw := range cmd.UnitIDs {
			u, err := repo.Unit(ctx, domainfleet.UnitID(strings.TrimSpace(raw)))
			if err != nil {
				return err
			}
			units = append(units, u)
		}
		g, err := domainfleet.FormGroup(domainfleet.FormGroupParams{
			ID:     domainfleet.GroupID(h.newID()),
			Name:   cmd.Name,
			Policy: policy,
			Now:    h.now(),
		}, units)
		if err != nil {
			return err
		}
		if err := repo.SaveGroup(ctx, g); err != nil {
			return err
		}
		if err := saveUnits(ctx, repo, units); err != nil {
			return err
		}
		out = dto.MapGroup(g, units)
		return h.record(ctx, unit, g)
	})
	if err != nil {
		return nil, err
	}
	h.log().Info("units pooled into group", "group_id", out.ID, "quantity", out.TotalQuantity)
	return &out, nil
}

type AddUnitsCommand struct {
	GroupID string `validate:"required"`
	Count   int    `validate:"required,min=1,max=500"`
}

func (c AddUnitsCommand) Key() string { return addUnitsKey }

type AddUnitsHandler struct {
	*Handlers
}

func (h AddUnitsHandler) Handle(ctx context.Context, cmd AddUnitsCommand) (*dto.Group, error) {
	var out dto.Group
	err := support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		g, members, err := h.loadGroup(ctx, repo, cmd.GroupID)
		if err != nil {
			return err
		}
		added, err := g.Grow(members, cmd.Count, h.newUnitID, h.now())
		if err != nil {
			return err
		}
		if err := saveUnits(ctx, repo, added); err != nil {
			return err
		}
		if err := repo.SaveGroup(ctx, g); err != nil {
			return err
		}
		out = dto.MapGroup(g, append(members, added...))
		return h.record(ctx, unit, g)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DetachUnitCommand removes a unit from its group. Delete additionally removes
// the unit, which is refused while it still has active bookings.
type DetachUnitCommand struct {
	GroupID string `validate:"required"`
	UnitID  string `validate:"required"`
	Delete  bool
}

func (c DetachUnitCommand) Key() string { return detachUnitKey }

type DetachUnitResult struct {
	UnitID     string `json:"unit_id"`
	Deleted    bool   `json:"deleted"`
	PromotedID string `json:"promoted_id,omitempty"`
	Dissolved  bool   `json:"group_dissolved"`
	Remaining  int    `json:"remaining"`
}

type DetachUnitHandler struct {
	*Handlers
}

func (h DetachUnitHandler) Handle(ctx context.Context, cmd DetachUnitCommand) (*DetachUnitResult, error) {
	unitID := domainfleet.UnitID(strings.TrimSpace(cmd.UnitID))
	if unitID == "" {
		return nil, ErrUnitIDRequired
	}
	var out DetachUnitResult
	err := support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		g, members, err := h.loadGroup(ctx, repo, cmd.GroupID)
		if err != nil {
			return err
		}
		if cmd.Delete {
			if err := ensureNoActiveBookings(ctx, unit, unitID); err != nil {
				return err
			}
		}
		res, err := g.Detach(members, unitID, h.now())
		if err != nil {
			if errors.Is(err, domainfleet.ErrNotMember) {
				return errors.Join(domainfleet.ErrUnitNotFound, err)
			}
			return err
		}
		if cmd.Delete {
			if err := repo.DeleteUnit(ctx, res.Unit.ID); err != nil {
				return err
			}
		} else if err := repo.SaveUnit(ctx, res.Unit); err != nil {
			return err
		}
		if res.Promoted != nil {
			if err := repo.SaveUnit(ctx, res.Promoted); err != nil {
				return err
			}
			out.PromotedID = string(res.Promoted.ID)
		}
		if res.Dissolved {
			if err := repo.DeleteGroup(ctx, g.ID); err != nil {
				return err
			}
		} else if err := repo.SaveGroup(ctx, g); err != nil {
			return err
		}
		out.UnitID = string(unitID)
		out.Deleted = cmd.Delete
		out.Dissolved = res.Dissolved
		out.Remaining = g.TotalQuantity
		return h.record(ctx, unit, g)
	})
	if err != nil {
		return nil, err
	}
	h.log().Info("unit detached", "group_id", cmd.GroupID, "unit_id", unitID, "deleted", out.Deleted, "dissolved", out.Dissolved)
	return &out, nil
}

func ensureNoActiveBookings(ctx context.Context, unit uow.UnitOfWork, unitID domainfleet.UnitID) error {
	bookings, err := unit.Bookings().ListByUnit(ctx, unitID)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		if b.IsActive() {
			return domainfleet.ErrUnitHasActiveBookings
		}
	}
	return nil
}

type UpdatePolicyCommand struct {
	GroupID string `validate:"required"`
	Policy  PolicyInput
}

func (c UpdatePolicyCommand) Key() string { return updatePolicyKey }

type UpdatePolicyHandler struct {
	*Handlers
}

func (h UpdatePolicyHandler) Handle(ctx context.Context, cmd UpdatePolicyCommand) (*dto.Group, error) {
	var out dto.Group
	err := support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		g, members, err := h.loadGroup(ctx, repo, cmd.GroupID)
		if err != nil {
			return err
		}
		next, err := cmd.Policy.applyTo(g.Policy)
		if err != nil {
			return err
		}
		change, err := g.UpdatePolicy(members, next, h.now())
		if err != nil {
			return err
		}
		if err := saveUnits(ctx, repo, change.Changed); err != nil {
			return err
		}
		if err := repo.SaveGroup(ctx, g); err != nil {
			return err
		}
		out = dto.MapGroup(g, members)
		return h.record(ctx, unit, g)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

var _ commands.Handler[CreateGroupCommand, *dto.Group] = CreateGroupHandler{}
var _ commands.Handler[CreateUnitCommand, *dto.Unit] = CreateUnitHandler{}
var _ commands.Handler[ConvertToGroupCommand, *dto.Group] = ConvertToGroupHandler{}
var _ commands.Handler[AddUnitsCommand, *dto.Group] = AddUnitsHandler{}
var _ commands.Handler[DetachUnitCommand, *DetachUnitResult] = DetachUnitHandler{}
var _ commands.Handler[UpdatePolicyCommand, *dto.Group] = UpdatePolicyHandler{}
var _ middleware.IdempotentCommand = CreateGroupCommand{}
var _ middleware.IdempotentCommand = CreateUnitCommand{}
