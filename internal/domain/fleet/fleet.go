package fleet

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentpool/internal/domain/shared/events"
)

var (
	ErrNotFound      = errors.New("fleet: not found")
	ErrUnitNotFound  = fmt.Errorf("%w: unit", ErrNotFound)
	ErrGroupNotFound = fmt.Errorf("%w: group", ErrNotFound)

	ErrNameRequired          = errors.New("fleet: group name is required")
	ErrVehicleTypeRequired   = errors.New("fleet: vehicle type is required")
	ErrQuantity              = errors.New("fleet: quantity must be at least 1")
	ErrNegativePrice         = errors.New("fleet: price per day must be non-negative")
	ErrEmptyGroup            = errors.New("fleet: group must have at least one member")
	ErrUnitAlreadyGrouped    = errors.New("fleet: unit already belongs to a group")
	ErrHeterogeneousPool     = errors.New("fleet: units of different vehicle types cannot share a group")
	ErrDuplicateUnit         = errors.New("fleet: unit listed more than once")
	ErrNotMember             = errors.New("fleet: unit is not a member of the group")
	ErrNothingToApply        = errors.New("fleet: every requested field is blocked by the group policy")
	ErrUnitHasActiveBookings = errors.New("fleet: unit has active bookings")
)

type UnitID string
type GroupID string

// Unit is one physical rentable item. A unit without a group is a singleton.
type Unit struct {
	ID             UnitID
	GroupID        GroupID
	Position       int
	DisplayName    string
	IsGroupPrimary bool
	Available      bool
	VehicleType    string
	PricePerDay    decimal.Decimal
	Specifications map[string]string
	Images         []string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
	events.EventRecorder
}

// Group is a pool of interchangeable units. TotalQuantity mirrors the live member count.
type Group struct {
	ID            GroupID
	Name          string
	VehicleType   string
	TotalQuantity int
	Policy        Policy
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
	events.EventRecorder
}

type Repository interface {
	Unit(ctx context.Context, id UnitID) (*Unit, error)
	Group(ctx context.Context, id GroupID) (*Group, error)
	// Members returns the live members of a group ordered by position.
	Members(ctx context.Context, id GroupID) ([]*Unit, error)
	Groups(ctx context.Context) ([]*Group, error)
	SaveUnit(ctx context.Context, unit *Unit) error
	SaveGroup(ctx context.Context, group *Group) error
	DeleteUnit(ctx context.Context, id UnitID) error
	DeleteGroup(ctx context.Context, id GroupID) error
}

// UnitTemplate carries the attributes stamped onto newly created units.
type UnitTemplate struct {
	PricePerDay    decimal.Decimal
	Specifications map[string]string
	Images         []string
	Description    string
	Available      bool
}

type CreateUnitParams struct {
	ID          UnitID
	DisplayName string
	VehicleType string
	Template    UnitTemplate
	Now         time.Time
}

// NewUnit creates a standalone unit.
func NewUnit(params CreateUnitParams) (*Unit, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("fleet: unit id is required")
	}
	vehicleType := strings.TrimSpace(params.VehicleType)
	if vehicleType == "" {
		return nil, ErrVehicleTypeRequired
	}
	if params.Template.PricePerDay.IsNegative() {
		return nil, ErrNegativePrice
	}
	now := params.Now.UTC()
	u := &Unit{
		ID:          params.ID,
		DisplayName: strings.TrimSpace(params.DisplayName),
		VehicleType: vehicleType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	u.applyTemplate(params.Template)
	return u, nil
}

func (u *Unit) Grouped() bool {
	return u.GroupID != ""
}

// Clone returns a deep copy without pending events.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	return &Unit{
		ID:             u.ID,
		GroupID:        u.GroupID,
		Position:       u.Position,
		DisplayName:    u.DisplayName,
		IsGroupPrimary: u.IsGroupPrimary,
		Available:      u.Available,
		VehicleType:    u.VehicleType,
		PricePerDay:    u.PricePerDay,
		Specifications: maps.Clone(u.Specifications),
		Images:         slices.Clone(u.Images),
		Description:    u.Description,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
		Version:        u.Version,
	}
}

func (u *Unit) applyTemplate(t UnitTemplate) {
	u.PricePerDay = t.PricePerDay
	u.Specifications = maps.Clone(t.Specifications)
	u.Images = slices.Clone(t.Images)
	u.Description = strings.TrimSpace(t.Description)
	u.Available = t.Available
}

func (u *Unit) template() UnitTemplate {
	return UnitTemplate{
		PricePerDay:    u.PricePerDay,
		Specifications: maps.Clone(u.Specifications),
		Images:         slices.Clone(u.Images),
		Description:    u.Description,
		Available:      u.Available,
	}
}

func (u *Unit) detach(now time.Time) {
	u.GroupID = ""
	u.Position = 0
	u.IsGroupPrimary = false
	u.UpdatedAt = now
}

// Clone returns a copy without pending events.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	return &Group{
		ID:            g.ID,
		Name:          g.Name,
		VehicleType:   g.VehicleType,
		TotalQuantity: g.TotalQuantity,
		Policy:        g.Policy,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
		Version:       g.Version,
	}
}

// SortByPosition orders members by their ordinal, falling back to id for stability.
func SortByPosition(units []*Unit) {
	slices.SortFunc(units, func(a, b *Unit) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}

// UnitIDs extracts ids preserving order.
func UnitIDs(units []*Unit) []UnitID {
	ids := make([]UnitID, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return ids
}

func primaryOf(members []*Unit) *Unit {
	for _, m := range members {
		if m.IsGroupPrimary {
			return m
		}
	}
	return nil
}
