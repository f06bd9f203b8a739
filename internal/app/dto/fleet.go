package dto

import (
	"time"

	domainfleet "rentpool/internal/domain/fleet"
)

type Unit struct {
	ID             string            `json:"id"`
	GroupID        string            `json:"group_id,omitempty"`
	Position       int               `json:"position,omitempty"`
	DisplayName    string            `json:"display_name"`
	IsGroupPrimary bool              `json:"is_group_primary"`
	Available      bool              `json:"available"`
	VehicleType    string            `json:"vehicle_type"`
	PricePerDay    string            `json:"price_per_day"`
	Specifications map[string]string `json:"specifications,omitempty"`
	Images         []string          `json:"images,omitempty"`
	Description    string            `json:"description,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type Policy struct {
	Strategy            string `json:"strategy"`
	NamingTemplate      string `json:"naming_template"`
	SharePricing        bool   `json:"share_pricing"`
	ShareSpecifications bool   `json:"share_specifications"`
	ShareImages         bool   `json:"share_images"`
}

type Group struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	VehicleType   string `json:"vehicle_type"`
	TotalQuantity int    `json:"total_quantity"`
	Policy        Policy `json:"policy"`
	Units         []Unit `json:"units"`
}

type Violation struct {
	GroupID string `json:"group_id"`
	Rule    string `json:"rule"`
	Detail  string `json:"detail"`
}

type AuditReport struct {
	GroupsChecked int         `json:"groups_checked"`
	Violations    []Violation `json:"violations"`
}

func MapUnit(u *domainfleet.Unit) Unit {
	return Unit{
		ID:             string(u.ID),
		GroupID:        string(u.GroupID),
		Position:       u.Position,
		DisplayName:    u.DisplayName,
		IsGroupPrimary: u.IsGroupPrimary,
		Available:      u.Available,
		VehicleType:    u.VehicleType,
		PricePerDay:    u.PricePerDay.StringFixed(2),
		Specifications: u.Specifications,
		Images:         u.Images,
		Description:    u.Description,
		UpdatedAt:      u.UpdatedAt,
	}
}

func MapUnits(units []*domainfleet.Unit) []Unit {
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		out = append(out, MapUnit(u))
	}
	return out
}

func MapPolicy(p domainfleet.Policy) Policy {
	return Policy{
		Strategy:            p.Strategy.String(),
		NamingTemplate:      p.NamingTemplate,
		SharePricing:        p.SharePricing,
		ShareSpecifications: p.ShareSpecifications,
		ShareImages:         p.ShareImages,
	}
}

func MapGroup(g *domainfleet.Group, members []*domainfleet.Unit) Group {
	return Group{
		ID:            string(g.ID),
		Name:          g.Name,
		VehicleType:   g.VehicleType,
		TotalQuantity: g.TotalQuantity,
		Policy:        MapPolicy(g.Policy),
		Units:         MapUnits(members),
	}
}

func MapViolations(items []domainfleet.Violation) []Violation {
	out := make([]Violation, 0, len(items))
	for _, v := range items {
		out = append(out, Violation{GroupID: string(v.GroupID), Rule: v.Rule, Detail: v.Detail})
	}
	return out
}
