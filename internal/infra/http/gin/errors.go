package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentpool/internal/app/commands"
	bookingapp "rentpool/internal/app/handlers/booking"
	fleetapp "rentpool/internal/app/handlers/fleet"
	"rentpool/internal/app/middleware"
	"rentpool/internal/app/uow"
	"rentpool/internal/domain/assignment"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
	"rentpool/internal/infra/validation"
)

const (
	codeInvalidRequest   = "invalid_request"
	codeNotFound         = "not_found"
	codeNoUnitsAvailable = "no_units_available"
	codeUnitUnavailable  = "unit_unavailable"
	codeConflict         = "conflict"
	codeNothingToApply   = "nothing_to_apply"
	codeTimeout          = "timeout"
	codeNotSupported     = "not_supported"
	codeInternal         = "internal"
)

var badRequestErrors = []error{
	validation.ErrInvalid,
	daterange.ErrInvalidRange,
	bookingapp.ErrTargetRequired,
	bookingapp.ErrPinMismatch,
	bookingapp.ErrBookingIDRequired,
	domainbooking.ErrCustomerIDRequired,
	domainbooking.ErrUnitIDRequired,
	fleetapp.ErrGroupIDRequired,
	fleetapp.ErrUnitIDRequired,
	fleetapp.ErrImageRequired,
	domainfleet.ErrNameRequired,
	domainfleet.ErrVehicleTypeRequired,
	domainfleet.ErrQuantity,
	domainfleet.ErrNegativePrice,
	domainfleet.ErrDuplicateUnit,
	domainfleet.ErrUnknownStrategy,
}

var conflictErrors = []error{
	domainbooking.ErrInvalidState,
	domainfleet.ErrUnitAlreadyGrouped,
	domainfleet.ErrHeterogeneousPool,
	domainfleet.ErrNotMember,
	domainfleet.ErrUnitHasActiveBookings,
	domainfleet.ErrEmptyGroup,
	uow.ErrWriteConflict,
	middleware.ErrIdempotencyKeyReused,
}

// classify maps an application error to its HTTP status and stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, assignment.ErrNoUnitsAvailable):
		return http.StatusConflict, codeNoUnitsAvailable
	case errors.Is(err, domainbooking.ErrUnitNoLossTolerance):
		return http.StatusConflict, codeUnitUnavailable
	case errors.Is(err, domainfleet.ErrNothingToApply):
		return http.StatusUnprocessableEntity, codeNothingToApply
	case errors.Is(err, domainbooking.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.Is(err, domainfleet.ErrNotFound), errors.Is(err, domainbooking.ErrBookingNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, commands.ErrHandlerNotFound):
		return http.StatusNotImplemented, codeNotSupported
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, codeInvalidRequest
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return http.StatusConflict, codeConflict
		}
	}
	return http.StatusInternalServerError, codeInternal
}

type errorResponder struct {
	Logger *slog.Logger
}

func (r errorResponder) handleError(c *gin.Context, err error) {
	status, code := classify(err)
	r.respond(c, status, code, err)
}

func (r errorResponder) badRequest(c *gin.Context, err error) {
	r.respond(c, http.StatusBadRequest, codeInvalidRequest, err)
}

func (r errorResponder) respond(c *gin.Context, status int, code string, err error) {
	if r.Logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
			level = slog.LevelError
		}
		r.Logger.Log(c.Request.Context(), level, "request failed",
			"status", status, "code", code, "error", err, "path", c.FullPath(),
			"request_id", c.GetString("request_id"))
	}
	body := gin.H{"error": err.Error(), "code": code}
	var verr *validation.Error
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}
