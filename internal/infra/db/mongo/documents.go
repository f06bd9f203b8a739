package mongo

import (
	"time"

	"github.com/shopspring/decimal"

	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

type unitDocument struct {
	ID             string            `bson:"_id"`
	GroupID        string            `bson:"group_id,omitempty"`
	Position       int               `bson:"position"`
	DisplayName    string            `bson:"display_name"`
	IsGroupPrimary bool              `bson:"is_group_primary"`
	Available      bool              `bson:"available"`
	VehicleType    string            `bson:"vehicle_type"`
	PricePerDay    string            `bson:"price_per_day"`
	Specifications map[string]string `bson:"specifications,omitempty"`
	Images         []string          `bson:"images,omitempty"`
	Description    string            `bson:"description,omitempty"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
	Version        int64             `bson:"version"`
}

func newUnitDocument(u *domainfleet.Unit) unitDocument {
	return unitDocument{
		ID:             string(u.ID),
		GroupID:        string(u.GroupID),
		Position:       u.Position,
		DisplayName:    u.DisplayName,
		IsGroupPrimary: u.IsGroupPrimary,
		Available:      u.Available,
		VehicleType:    u.VehicleType,
		PricePerDay:    u.PricePerDay.String(),
		Specifications: u.Specifications,
		Images:         u.Images,
		Description:    u.Description,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
		Version:        u.Version,
	}
}

func (d unitDocument) toAggregate() (*domainfleet.Unit, error) {
	price, err := decimal.NewFromString(d.PricePerDay)
	if err != nil {
		return nil, err
	}
	return &domainfleet.Unit{
		ID:             domainfleet.UnitID(d.ID),
		GroupID:        domainfleet.GroupID(d.GroupID),
		Position:       d.Position,
		DisplayName:    d.DisplayName,
		IsGroupPrimary: d.IsGroupPrimary,
		Available:      d.Available,
		VehicleType:    d.VehicleType,
		PricePerDay:    price,
		Specifications: d.Specifications,
		Images:         d.Images,
		Description:    d.Description,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
		Version:        d.Version,
	}, nil
}

type policyDocument struct {
	Strategy            string `bson:"strategy"`
	NamingTemplate      string `bson:"naming_template"`
	SharePricing        bool   `bson:"share_pricing"`
	ShareSpecifications bool   `bson:"share_specifications"`
	ShareImages         bool   `bson:"share_images"`
}

type groupDocument struct {
	ID            string         `bson:"_id"`
	Name          string         `bson:"name"`
	VehicleType   string         `bson:"vehicle_type"`
	TotalQuantity int            `bson:"total_quantity"`
	Policy        policyDocument `bson:"policy"`
	CreatedAt     time.Time      `bson:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at"`
	Version       int64          `bson:"version"`
}

func newGroupDocument(g *domainfleet.Group) groupDocument {
	return groupDocument{
		ID:            string(g.ID),
		Name:          g.Name,
		VehicleType:   g.VehicleType,
		TotalQuantity: g.TotalQuantity,
		Policy: policyDocument{
			Strategy:            g.Policy.Strategy.String(),
			NamingTemplate:      g.Policy.NamingTemplate,
			SharePricing:        g.Policy.SharePricing,
			ShareSpecifications: g.Policy.ShareSpecifications,
			ShareImages:         g.Policy.ShareImages,
		},
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
		Version:   g.Version,
	}
}

func (d groupDocument) toAggregate() (*domainfleet.Group, error) {
	strategy, err := domainfleet.ParseStrategy(d.Policy.Strategy)
	if err != nil {
		return nil, err
	}
	return &domainfleet.Group{
		ID:            domainfleet.GroupID(d.ID),
		Name:          d.Name,
		VehicleType:   d.VehicleType,
		TotalQuantity: d.TotalQuantity,
		Policy: domainfleet.Policy{
			Strategy:            strategy,
			NamingTemplate:      d.Policy.NamingTemplate,
			SharePricing:        d.Policy.SharePricing,
			ShareSpecifications: d.Policy.ShareSpecifications,
			ShareImages:         d.Policy.ShareImages,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Version:   d.Version,
	}, nil
}

type bookingDocument struct {
	ID         string    `bson:"_id"`
	UnitID     string    `bson:"unit_id"`
	GroupID    string    `bson:"group_id,omitempty"`
	CustomerID string    `bson:"customer_id"`
	Start      time.Time `bson:"start"`
	End        time.Time `bson:"end"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
	Version    int64     `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:         string(b.ID),
		UnitID:     string(b.UnitID),
		GroupID:    string(b.GroupID),
		CustomerID: b.CustomerID,
		Start:      b.Range.Start,
		End:        b.Range.End,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
		Version:    b.Version,
	}
}

func (d bookingDocument) toAggregate() (*domainbooking.Booking, error) {
	status, err := domainbooking.ParseStatus(d.Status)
	if err != nil {
		return nil, err
	}
	return &domainbooking.Booking{
		ID:         domainbooking.BookingID(d.ID),
		UnitID:     domainfleet.UnitID(d.UnitID),
		GroupID:    domainfleet.GroupID(d.GroupID),
		CustomerID: d.CustomerID,
		Range:      daterange.DateRange{Start: d.Start.UTC(), End: d.End.UTC()},
		Status:     status,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
		Version:    d.Version,
	}, nil
}

func statusStrings(statuses []domainbooking.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
