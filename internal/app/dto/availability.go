package dto

import (
	"time"

	"rentpool/internal/domain/availability"
	domainbooking "rentpool/internal/domain/booking"
	"rentpool/internal/domain/shared/daterange"
)

type GroupAvailability struct {
	GroupID   string   `json:"group_id"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Total     int      `json:"total"`
	FreeCount int      `json:"free_count"`
	Free      []Unit   `json:"free"`
	Busy      []string `json:"busy"`
}

type BlockingBooking struct {
	BookingID string `json:"booking_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

type UnitAvailability struct {
	UnitID    string            `json:"unit_id"`
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	Free      bool              `json:"free"`
	Enabled   bool              `json:"enabled"`
	Conflicts []BlockingBooking `json:"conflicts"`
}

func MapGroupAvailability(groupID string, r daterange.DateRange, p availability.Partition) GroupAvailability {
	busy := make([]string, 0, len(p.Busy))
	for _, id := range p.BusyIDs() {
		busy = append(busy, string(id))
	}
	return GroupAvailability{
		GroupID:   groupID,
		StartDate: r.Start.Format(time.DateOnly),
		EndDate:   r.End.Format(time.DateOnly),
		Total:     len(p.Free) + len(p.Busy),
		FreeCount: len(p.Free),
		Free:      MapUnits(p.Free),
		Busy:      busy,
	}
}

func MapBlockingBookings(items []*domainbooking.Booking) []BlockingBooking {
	out := make([]BlockingBooking, 0, len(items))
	for _, b := range items {
		out = append(out, BlockingBooking{
			BookingID: string(b.ID),
			StartDate: b.Range.Start.Format(time.DateOnly),
			EndDate:   b.Range.End.Format(time.DateOnly),
			Status:    string(b.Status),
		})
	}
	return out
}
