package memory

import (
	"context"
	"sort"

	"rentpool/internal/app/uow"
	domainfleet "rentpool/internal/domain/fleet"
)

type fleetRepository struct {
	u *Unit
}

func (r fleetRepository) Unit(ctx context.Context, id domainfleet.UnitID) (*domainfleet.Unit, error) {
	if st, ok := r.u.units[id]; ok {
		if st.value == nil {
			return nil, domainfleet.ErrUnitNotFound
		}
		return st.value.Clone(), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, domainfleet.ErrUnitNotFound
	}
	return unit.Clone(), nil
}

func (r fleetRepository) Group(ctx context.Context, id domainfleet.GroupID) (*domainfleet.Group, error) {
	if st, ok := r.u.groups[id]; ok {
		if st.value == nil {
			return nil, domainfleet.ErrGroupNotFound
		}
		return st.value.Clone(), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[id]
	if !ok {
		return nil, domainfleet.ErrGroupNotFound
	}
	return group.Clone(), nil
}

func (r fleetRepository) Members(ctx context.Context, id domainfleet.GroupID) ([]*domainfleet.Unit, error) {
	s := r.u.store
	s.mu.RLock()
	var members []*domainfleet.Unit
	for uid, unit := range s.units {
		if _, staged := r.u.units[uid]; staged {
			continue
		}
		if unit.GroupID == id {
			members = append(members, unit.Clone())
		}
	}
	s.mu.RUnlock()

	for _, st := range r.u.units {
		if st.value != nil && st.value.GroupID == id {
			members = append(members, st.value.Clone())
		}
	}
	domainfleet.SortByPosition(members)
	return members, nil
}

func (r fleetRepository) Groups(ctx context.Context) ([]*domainfleet.Group, error) {
	s := r.u.store
	s.mu.RLock()
	var groups []*domainfleet.Group
	for gid, group := range s.groups {
		if _, staged := r.u.groups[gid]; staged {
			continue
		}
		groups = append(groups, group.Clone())
	}
	s.mu.RUnlock()

	for _, st := range r.u.groups {
		if st.value != nil {
			groups = append(groups, st.value.Clone())
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// SaveUnit stages the unit and bumps its version. The first save in a unit of
// work pins the version the commit must still find in the store.
func (r fleetRepository) SaveUnit(ctx context.Context, unit *domainfleet.Unit) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if unit == nil {
		return domainfleet.ErrUnitNotFound
	}
	if st, ok := r.u.units[unit.ID]; ok {
		if st.value == nil {
			return domainfleet.ErrUnitNotFound
		}
		if st.value.Version != unit.Version {
			return uow.ErrWriteConflict
		}
		st.value = unit.Clone()
		return nil
	}
	base := unit.Version
	unit.Version = base + 1
	r.u.units[unit.ID] = &stagedUnit{value: unit.Clone(), base: base}
	return nil
}

func (r fleetRepository) SaveGroup(ctx context.Context, group *domainfleet.Group) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if group == nil {
		return domainfleet.ErrGroupNotFound
	}
	if st, ok := r.u.groups[group.ID]; ok {
		if st.value == nil {
			return domainfleet.ErrGroupNotFound
		}
		if st.value.Version != group.Version {
			return uow.ErrWriteConflict
		}
		st.value = group.Clone()
		return nil
	}
	base := group.Version
	group.Version = base + 1
	r.u.groups[group.ID] = &stagedGroup{value: group.Clone(), base: base}
	return nil
}

func (r fleetRepository) DeleteUnit(ctx context.Context, id domainfleet.UnitID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if st, ok := r.u.units[id]; ok {
		if st.value == nil {
			return domainfleet.ErrUnitNotFound
		}
		if st.base == 0 {
			delete(r.u.units, id)
			return nil
		}
		st.value = nil
		return nil
	}
	s := r.u.store
	s.mu.RLock()
	current, ok := s.units[id]
	var version int64
	if ok {
		version = current.Version
	}
	s.mu.RUnlock()
	if !ok {
		return domainfleet.ErrUnitNotFound
	}
	r.u.units[id] = &stagedUnit{base: version}
	return nil
}

func (r fleetRepository) DeleteGroup(ctx context.Context, id domainfleet.GroupID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if st, ok := r.u.groups[id]; ok {
		if st.value == nil {
			return domainfleet.ErrGroupNotFound
		}
		if st.base == 0 {
			delete(r.u.groups, id)
			return nil
		}
		st.value = nil
		return nil
	}
	s := r.u.store
	s.mu.RLock()
	current, ok := s.groups[id]
	var version int64
	if ok {
		version = current.Version
	}
	s.mu.RUnlock()
	if !ok {
		return domainfleet.ErrGroupNotFound
	}
	r.u.groups[id] = &stagedGroup{base: version}
	return nil
}

var _ domainfleet.Repository = fleetRepository{}
