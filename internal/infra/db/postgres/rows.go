package postgres

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

const (
	unitColumns    = `id, coalesce(group_id, ''), position, display_name, is_group_primary, available, vehicle_type, price_per_day::text, specifications::text, images::text, description, created_at, updated_at, version`
	groupColumns   = `id, name, vehicle_type, total_quantity, strategy, naming_template, share_pricing, share_specifications, share_images, created_at, updated_at, version`
	bookingColumns = `id, unit_id, coalesce(group_id, ''), customer_id, start_date, end_date, status, created_at, updated_at, version`
)

func scanUnit(row pgx.Row) (*domainfleet.Unit, error) {
	var (
		u                   domainfleet.Unit
		id, groupID, price  string
		specsJSON, imgsJSON string
	)
	err := row.Scan(&id, &groupID, &u.Position, &u.DisplayName, &u.IsGroupPrimary, &u.Available,
		&u.VehicleType, &price, &specsJSON, &imgsJSON, &u.Description, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if err != nil {
		return nil, err
	}
	u.ID = domainfleet.UnitID(id)
	u.GroupID = domainfleet.GroupID(groupID)
	if u.PricePerDay, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specsJSON), &u.Specifications); err != nil {
		return nil, err
	}
	if len(u.Specifications) == 0 {
		u.Specifications = nil
	}
	if err := json.Unmarshal([]byte(imgsJSON), &u.Images); err != nil {
		return nil, err
	}
	if len(u.Images) == 0 {
		u.Images = nil
	}
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return &u, nil
}

// unitArgs returns the positional values for unitColumns order, minus version.
func unitArgs(u *domainfleet.Unit) ([]any, error) {
	specs := u.Specifications
	if specs == nil {
		specs = map[string]string{}
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return nil, err
	}
	imgs := u.Images
	if imgs == nil {
		imgs = []string{}
	}
	imgsJSON, err := json.Marshal(imgs)
	if err != nil {
		return nil, err
	}
	return []any{
		string(u.ID), nullable(string(u.GroupID)), u.Position, u.DisplayName, u.IsGroupPrimary, u.Available,
		u.VehicleType, u.PricePerDay.String(), string(specsJSON), string(imgsJSON), u.Description,
		u.CreatedAt, u.UpdatedAt,
	}, nil
}

func scanGroup(row pgx.Row) (*domainfleet.Group, error) {
	var (
		g            domainfleet.Group
		id, strategy string
	)
	err := row.Scan(&id, &g.Name, &g.VehicleType, &g.TotalQuantity, &strategy, &g.Policy.NamingTemplate,
		&g.Policy.SharePricing, &g.Policy.ShareSpecifications, &g.Policy.ShareImages, &g.CreatedAt, &g.UpdatedAt, &g.Version)
	if err != nil {
		return nil, err
	}
	g.ID = domainfleet.GroupID(id)
	if g.Policy.Strategy, err = domainfleet.ParseStrategy(strategy); err != nil {
		return nil, err
	}
	g.CreatedAt, g.UpdatedAt = g.CreatedAt.UTC(), g.UpdatedAt.UTC()
	return &g, nil
}

func groupArgs(g *domainfleet.Group) []any {
	return []any{
		string(g.ID), g.Name, g.VehicleType, g.TotalQuantity, g.Policy.Strategy.String(), g.Policy.NamingTemplate,
		g.Policy.SharePricing, g.Policy.ShareSpecifications, g.Policy.ShareImages, g.CreatedAt, g.UpdatedAt,
	}
}

func scanBooking(row pgx.Row) (*domainbooking.Booking, error) {
	var (
		b                   domainbooking.Booking
		id, unitID, groupID string
		status              string
		start, end          time.Time
	)
	err := row.Scan(&id, &unitID, &groupID, &b.CustomerID, &start, &end, &status, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	b.ID = domainbooking.BookingID(id)
	b.UnitID = domainfleet.UnitID(unitID)
	b.GroupID = domainfleet.GroupID(groupID)
	b.Range = daterange.DateRange{Start: daterange.Day(start), End: daterange.Day(end)}
	if b.Status, err = domainbooking.ParseStatus(status); err != nil {
		return nil, err
	}
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return &b, nil
}

func bookingArgs(b *domainbooking.Booking) []any {
	return []any{
		string(b.ID), string(b.UnitID), nullable(string(b.GroupID)), b.CustomerID,
		b.Range.Start, b.Range.End, string(b.Status), b.CreatedAt, b.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func unitStrings(ids []domainfleet.UnitID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func statusStrings(statuses []domainbooking.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
