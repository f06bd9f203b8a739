package fleet

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnitPatch is a partial edit. Nil fields are not requested; an empty non-nil
// map or slice clears the attribute.
type UnitPatch struct {
	PricePerDay    *decimal.Decimal
	Specifications map[string]string
	Images         []string
	Description    *string
	Available      *bool
}

// Requested lists the categories the patch touches.
func (p UnitPatch) Requested() []Category {
	var out []Category
	if p.PricePerDay != nil {
		out = append(out, CategoryPricing)
	}
	if p.Specifications != nil {
		out = append(out, CategorySpecifications)
	}
	if p.Images != nil {
		out = append(out, CategoryImages)
	}
	if p.Description != nil {
		out = append(out, CategoryDescription)
	}
	if p.Available != nil {
		out = append(out, CategoryAvailability)
	}
	return out
}

func (p UnitPatch) Empty() bool {
	return len(p.Requested()) == 0
}

func (p UnitPatch) Validate() error {
	if p.PricePerDay != nil && p.PricePerDay.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}

// apply writes the selected categories onto u.
func (p UnitPatch) apply(u *Unit, cats []Category, now time.Time) {
	for _, c := range cats {
		switch c {
		case CategoryPricing:
			u.PricePerDay = *p.PricePerDay
		case CategorySpecifications:
			u.Specifications = cloneSpecs(p.Specifications)
		case CategoryImages:
			u.Images = slices.Clone(p.Images)
		case CategoryDescription:
			u.Description = strings.TrimSpace(*p.Description)
		case CategoryAvailability:
			u.Available = *p.Available
		}
	}
	u.UpdatedAt = now
}

type PropagationResult struct {
	Applied []Category
	Skipped []Category
	Updated []*Unit
}

// Propagate applies a patch to every member, honouring the group's share flags.
// Returns ErrNothingToApply when the patch is empty or the policy blocks every requested field.
func (g *Group) Propagate(members []*Unit, patch UnitPatch, now time.Time) (PropagationResult, error) {
	if err := patch.Validate(); err != nil {
		return PropagationResult{}, err
	}
	var res PropagationResult
	for _, c := range patch.Requested() {
		if g.Policy.Shares(c) {
			res.Applied = append(res.Applied, c)
		} else {
			res.Skipped = append(res.Skipped, c)
		}
	}
	if len(res.Applied) == 0 {
		return res, ErrNothingToApply
	}

	now = now.UTC()
	for _, m := range members {
		patch.apply(m, res.Applied, now)
		res.Updated = append(res.Updated, m)
	}
	g.UpdatedAt = now
	g.Record(AttributesPropagated{
		GroupID: g.ID,
		Applied: res.Applied,
		Skipped: res.Skipped,
		Units:   len(res.Updated),
		At:      now,
	})
	return res, nil
}

// Apply edits a standalone unit. Nothing is gated for singletons.
func (u *Unit) Apply(patch UnitPatch, now time.Time) ([]Category, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	cats := patch.Requested()
	if len(cats) == 0 {
		return nil, ErrNothingToApply
	}
	patch.apply(u, cats, now.UTC())
	return cats, nil
}

func cloneSpecs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	return maps.Clone(in)
}
