package fleet

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/handlers/support"
	"rentpool/internal/app/middleware"
	"rentpool/internal/app/uow"
	domainfleet "rentpool/internal/domain/fleet"
)

const (
	bulkUpdateKey   = "fleet.bulk_update"
	appendImagesKey = "fleet.append_images"
)

// BulkUpdateCommand edits every member of a group. Nil fields are not requested.
type BulkUpdateCommand struct {
	GroupID         string `validate:"required"`
	PricePerDay     *decimal.Decimal
	Specifications  map[string]string `validate:"omitempty,max=64"`
	Images          []string          `validate:"omitempty,max=32,dive,url"`
	Description     *string           `validate:"omitempty,max=4000"`
	Available       *bool
	IdempotencyKeyV string
}

func (c BulkUpdateCommand) Key() string { return bulkUpdateKey }

func (c BulkUpdateCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c BulkUpdateCommand) ResultPrototype() any { return &BulkUpdateResult{} }

func (c BulkUpdateCommand) patch() domainfleet.UnitPatch {
	return domainfleet.UnitPatch{
		PricePerDay:    c.PricePerDay,
		Specifications: c.Specifications,
		Images:         c.Images,
		Description:    c.Description,
		Available:      c.Available,
	}
}

type BulkUpdateResult struct {
	GroupID      string   `json:"group_id"`
	AppliedCount int      `json:"applied_count"`
	Applied      []string `json:"applied"`
	Skipped      []string `json:"skipped"`
}

type BulkUpdateHandler struct {
	*Handlers
}

func (h BulkUpdateHandler) Handle(ctx context.Context, cmd BulkUpdateCommand) (*BulkUpdateResult, error) {
	var out *BulkUpdateResult
	err := support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		g, members, err := h.loadGroup(ctx, repo, cmd.GroupID)
		if err != nil {
			return err
		}
		res, err := g.Propagate(members, cmd.patch(), h.now())
		if err != nil {
			if len(res.Skipped) > 0 {
				h.log().Info("bulk update blocked by policy", "group_id", g.ID, "skipped", res.Skipped)
			}
			return err
		}
		if err := saveUnits(ctx, repo, res.Updated); err != nil {
			return err
		}
		if err := repo.SaveGroup(ctx, g); err != nil {
			return err
		}
		if err := h.record(ctx, unit, g); err != nil {
			return err
		}
		out = &BulkUpdateResult{
			GroupID:      string(g.ID),
			AppliedCount: len(res.Updated),
			Applied:      categoryNames(res.Applied),
			Skipped:      categoryNames(res.Skipped),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.log().Info("group attributes propagated", "group_id", out.GroupID, "units", out.AppliedCount, "applied", out.Applied, "skipped", out.Skipped)
	return out, nil
}

// AppendImagesCommand adds uploaded image URLs to a group. With shared images
// every member receives them; otherwise only the primary does.
type AppendImagesCommand struct {
	GroupID string   `validate:"required"`
	URLs    []string `validate:"required,min=1,dive,url"`
}

func (c AppendImagesCommand) Key() string { return appendImagesKey }

type AppendImagesHandler struct {
	*Handlers
}

func (h AppendImagesHandler) Handle(ctx context.Context, cmd AppendImagesCommand) (*BulkUpdateResult, error) {
	var out *BulkUpdateResult
	err := support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		repo := unit.Fleet()
		g, members, err := h.loadGroup(ctx, repo, cmd.GroupID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return domainfleet.ErrEmptyGroup
		}
		primary := members[0]
		for _, m := range members {
			if m.IsGroupPrimary {
				primary = m
				break
			}
		}
		images := append(slices.Clone(primary.Images), cmd.URLs...)
		patch := domainfleet.UnitPatch{Images: images}

		out = &BulkUpdateResult{GroupID: string(g.ID), Applied: []string{string(domainfleet.CategoryImages)}}
		if g.Policy.ShareImages {
			res, err := g.Propagate(members, patch, h.now())
			if err != nil {
				return err
			}
			if err := saveUnits(ctx, repo, res.Updated); err != nil {
				return err
			}
			if err := repo.SaveGroup(ctx, g); err != nil {
				return err
			}
			out.AppliedCount = len(res.Updated)
			return h.record(ctx, unit, g)
		}
		if _, err := primary.Apply(patch, h.now()); err != nil {
			return err
		}
		out.AppliedCount = 1
		return repo.SaveUnit(ctx, primary)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func categoryNames(cats []domainfleet.Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, string(c))
	}
	return out
}

var _ commands.Handler[BulkUpdateCommand, *BulkUpdateResult] = BulkUpdateHandler{}
var _ commands.Handler[AppendImagesCommand, *BulkUpdateResult] = AppendImagesHandler{}
var _ middleware.IdempotentCommand = BulkUpdateCommand{}
