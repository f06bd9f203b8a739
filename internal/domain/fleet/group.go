package fleet

import (
	"errors"
	"slices"
	"strings"
	"time"
)

type CreateGroupParams struct {
	ID          GroupID
	Name        string
	VehicleType string
	Quantity    int
	Policy      Policy
	Template    UnitTemplate
	NewUnitID   func() UnitID
	Now         time.Time
}

// NewGroup creates a group together with Quantity identical members.
// The first member becomes the primary.
func NewGroup(params CreateGroupParams) (*Group, []*Unit, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, nil, errors.New("fleet: group id is required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, nil, ErrNameRequired
	}
	vehicleType := strings.TrimSpace(params.VehicleType)
	if vehicleType == "" {
		return nil, nil, ErrVehicleTypeRequired
	}
	if params.Quantity < 1 {
		return nil, nil, ErrQuantity
	}
	if params.Template.PricePerDay.IsNegative() {
		return nil, nil, ErrNegativePrice
	}
	if params.NewUnitID == nil {
		return nil, nil, errors.New("fleet: unit id generator is required")
	}
	policy := params.Policy.Normalized()
	if err := policy.Validate(); err != nil {
		return nil, nil, err
	}

	now := params.Now.UTC()
	g := &Group{
		ID:            params.ID,
		Name:          name,
		VehicleType:   vehicleType,
		TotalQuantity: params.Quantity,
		Policy:        policy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	units := make([]*Unit, 0, params.Quantity)
	for pos := 1; pos <= params.Quantity; pos++ {
		u := &Unit{
			ID:             params.NewUnitID(),
			GroupID:        g.ID,
			Position:       pos,
			DisplayName:    policy.DisplayName(name, pos),
			IsGroupPrimary: pos == 1,
			VehicleType:    vehicleType,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		u.applyTemplate(params.Template)
		units = append(units, u)
	}
	g.Record(GroupCreated{
		GroupID:     g.ID,
		Name:        g.Name,
		VehicleType: g.VehicleType,
		Units:       UnitIDs(units),
		Strategy:    policy.Strategy.String(),
		At:          now,
	})
	return g, units, nil
}

type FormGroupParams struct {
	ID     GroupID
	Name   string
	Policy Policy
	Now    time.Time
}

// FormGroup turns standalone units into a group. The first unit becomes the
// primary and its shared attributes are copied onto the rest.
func FormGroup(params FormGroupParams, units []*Unit) (*Group, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("fleet: group id is required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if len(units) == 0 {
		return nil, ErrEmptyGroup
	}
	policy := params.Policy.Normalized()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[UnitID]struct{}, len(units))
	vehicleType := units[0].VehicleType
	for _, u := range units {
		if u.Grouped() {
			return nil, ErrUnitAlreadyGrouped
		}
		if _, dup := seen[u.ID]; dup {
			return nil, ErrDuplicateUnit
		}
		seen[u.ID] = struct{}{}
		if u.VehicleType != vehicleType {
			return nil, ErrHeterogeneousPool
		}
	}

	now := params.Now.UTC()
	g := &Group{
		ID:            params.ID,
		Name:          name,
		VehicleType:   vehicleType,
		TotalQuantity: len(units),
		Policy:        policy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, u := range units {
		u.GroupID = g.ID
		u.Position = i + 1
		u.IsGroupPrimary = i == 0
		u.DisplayName = policy.DisplayName(name, u.Position)
		u.UpdatedAt = now
	}
	syncFromPrimary(units[0], units, policy.sharedCategories(), now)
	g.Record(GroupCreated{
		GroupID:     g.ID,
		Name:        g.Name,
		VehicleType: g.VehicleType,
		Units:       UnitIDs(units),
		Strategy:    policy.Strategy.String(),
		At:          now,
	})
	return g, nil
}

// Grow appends count new members cloned from the primary.
func (g *Group) Grow(members []*Unit, count int, newID func() UnitID, now time.Time) ([]*Unit, error) {
	if count < 1 {
		return nil, ErrQuantity
	}
	if len(members) == 0 {
		return nil, ErrEmptyGroup
	}
	if newID == nil {
		return nil, errors.New("fleet: unit id generator is required")
	}
	source := primaryOf(members)
	next := 0
	for _, m := range members {
		next = max(next, m.Position)
	}
	if source == nil {
		ordered := slices.Clone(members)
		SortByPosition(ordered)
		source = ordered[0]
	}

	now = now.UTC()
	added := make([]*Unit, 0, count)
	for i := 0; i < count; i++ {
		next++
		u := &Unit{
			ID:          newID(),
			GroupID:     g.ID,
			Position:    next,
			DisplayName: g.Policy.DisplayName(g.Name, next),
			VehicleType: g.VehicleType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		u.applyTemplate(source.template())
		added = append(added, u)
	}
	g.TotalQuantity = len(members) + count
	g.UpdatedAt = now
	g.Record(UnitsAdded{GroupID: g.ID, Units: UnitIDs(added), TotalQuantity: g.TotalQuantity, At: now})
	return added, nil
}

type DetachResult struct {
	Unit      *Unit
	Promoted  *Unit
	Remaining []*Unit
	Dissolved bool
}

// Detach removes one member and makes it a standalone unit. When the primary
// leaves, the remaining member with the lowest position is promoted.
func (g *Group) Detach(members []*Unit, unitID UnitID, now time.Time) (DetachResult, error) {
	idx := slices.IndexFunc(members, func(u *Unit) bool { return u.ID == unitID })
	if idx < 0 {
		return DetachResult{}, ErrNotMember
	}
	now = now.UTC()
	target := members[idx]
	wasPrimary := target.IsGroupPrimary
	target.detach(now)

	remaining := make([]*Unit, 0, len(members)-1)
	remaining = append(remaining, members[:idx]...)
	remaining = append(remaining, members[idx+1:]...)
	SortByPosition(remaining)

	res := DetachResult{Unit: target, Remaining: remaining}
	if wasPrimary && len(remaining) > 0 && primaryOf(remaining) == nil {
		remaining[0].IsGroupPrimary = true
		remaining[0].UpdatedAt = now
		res.Promoted = remaining[0]
	}
	g.TotalQuantity = len(remaining)
	g.UpdatedAt = now

	evt := UnitDetached{GroupID: g.ID, UnitID: target.ID, TotalQuantity: g.TotalQuantity, At: now}
	if res.Promoted != nil {
		evt.PromotedID = res.Promoted.ID
	}
	g.Record(evt)
	if len(remaining) == 0 {
		res.Dissolved = true
		g.Record(GroupDissolved{GroupID: g.ID, At: now})
	}
	return res, nil
}

type PolicyChange struct {
	Resynced []Category
	Renamed  bool
	Changed  []*Unit
}

// UpdatePolicy swaps the group policy. Categories that become shared are
// copied from the primary onto every member; a new naming template renames all members.
func (g *Group) UpdatePolicy(members []*Unit, next Policy, now time.Time) (PolicyChange, error) {
	next = next.Normalized()
	if err := next.Validate(); err != nil {
		return PolicyChange{}, err
	}
	now = now.UTC()
	prev := g.Policy
	var change PolicyChange
	for _, c := range next.sharedCategories() {
		if !prev.Shares(c) {
			change.Resynced = append(change.Resynced, c)
		}
	}

	changed := make(map[UnitID]*Unit)
	if len(change.Resynced) > 0 {
		if primary := primaryOf(members); primary != nil {
			for _, u := range syncFromPrimary(primary, members, change.Resynced, now) {
				changed[u.ID] = u
			}
		}
	}
	if prev.NamingTemplate != next.NamingTemplate {
		change.Renamed = true
		for _, m := range members {
			name := next.DisplayName(g.Name, m.Position)
			if m.DisplayName != name {
				m.DisplayName = name
				m.UpdatedAt = now
				changed[m.ID] = m
			}
		}
	}
	for _, m := range members {
		if u, ok := changed[m.ID]; ok {
			change.Changed = append(change.Changed, u)
		}
	}

	g.Policy = next
	g.UpdatedAt = now
	g.Record(PolicyUpdated{
		GroupID:  g.ID,
		Strategy: next.Strategy.String(),
		Resynced: change.Resynced,
		Renamed:  change.Renamed,
		At:       now,
	})
	return change, nil
}

// syncFromPrimary copies the given categories from primary onto the other members
// and returns the members it touched.
func syncFromPrimary(primary *Unit, members []*Unit, cats []Category, now time.Time) []*Unit {
	if len(cats) == 0 {
		return nil
	}
	src := primary.template()
	var touched []*Unit
	for _, m := range members {
		if m.ID == primary.ID {
			continue
		}
		for _, c := range cats {
			switch c {
			case CategoryPricing:
				m.PricePerDay = src.PricePerDay
			case CategorySpecifications:
				m.Specifications = cloneSpecs(src.Specifications)
			case CategoryImages:
				m.Images = slices.Clone(src.Images)
			}
		}
		m.UpdatedAt = now
		touched = append(touched, m)
	}
	return touched
}
