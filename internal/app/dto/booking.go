package dto

import (
	"time"

	domainbooking "rentpool/internal/domain/booking"
)

type Booking struct {
	ID         string    `json:"id"`
	UnitID     string    `json:"unit_id"`
	GroupID    string    `json:"group_id,omitempty"`
	CustomerID string    `json:"customer_id"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Days       int       `json:"days"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type BookingCollection struct {
	Items []Booking `json:"items"`
}

func MapBooking(b *domainbooking.Booking) Booking {
	return Booking{
		ID:         string(b.ID),
		UnitID:     string(b.UnitID),
		GroupID:    string(b.GroupID),
		CustomerID: b.CustomerID,
		StartDate:  b.Range.Start.Format(time.DateOnly),
		EndDate:    b.Range.End.Format(time.DateOnly),
		Days:       b.Range.Days(),
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func MapBookings(items []*domainbooking.Booking) BookingCollection {
	out := BookingCollection{Items: make([]Booking, 0, len(items))}
	for _, b := range items {
		out.Items = append(out.Items, MapBooking(b))
	}
	return out
}
