package ginserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	bookingapp "rentpool/internal/app/handlers/booking"
	"rentpool/internal/app/queries"
)

type BookingHandler struct {
	errorResponder
	Commands commands.Bus
	Queries  queries.Bus
}

func NewBookingHandler(cmd commands.Bus, q queries.Bus, logger *slog.Logger) BookingHandler {
	return BookingHandler{errorResponder: errorResponder{Logger: logger}, Commands: cmd, Queries: q}
}

type createBookingRequest struct {
	GroupID         string `json:"group_id"`
	UnitID          string `json:"unit_id"`
	PreferredUnitID string `json:"preferred_unit_id"`
	CustomerID      string `json:"customer_id"`
	Start           string `json:"start"`
	End             string `json:"end"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := bookingapp.BookCommand{
		GroupID:         req.GroupID,
		UnitID:          req.UnitID,
		PreferredUnitID: req.PreferredUnitID,
		CustomerID:      req.CustomerID,
		Start:           start,
		End:             end,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.BookCommand, *bookingapp.BookResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/bookings/%s", result.Booking.ID))
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](c.Request.Context(), h.Queries, bookingapp.GetBookingQuery{BookingID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Confirm(c *gin.Context) {
	cmd := bookingapp.ConfirmBookingCommand{BookingID: c.Param("id")}
	result, err := commands.Dispatch[bookingapp.ConfirmBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	h.respondBooking(c, result, err)
}

func (h BookingHandler) Complete(c *gin.Context) {
	cmd := bookingapp.CompleteBookingCommand{BookingID: c.Param("id")}
	result, err := commands.Dispatch[bookingapp.CompleteBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	h.respondBooking(c, result, err)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	var req cancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	cmd := bookingapp.CancelBookingCommand{BookingID: c.Param("id"), Reason: req.Reason}
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	h.respondBooking(c, result, err)
}

func (h BookingHandler) ListByUnit(c *gin.Context) {
	query := bookingapp.ListUnitBookingsQuery{UnitID: c.Param("id"), Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListUnitBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) respondBooking(c *gin.Context, result *dto.Booking, err error) {
	if err != nil {
		h.handleError(c, err)
		return
	}
	if result == nil {
		h.handleError(c, errors.New("empty booking result"))
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ BookingHTTP = BookingHandler{}
