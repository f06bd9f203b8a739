package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentpool/internal/app/dto"
	availabilityapp "rentpool/internal/app/handlers/availability"
	"rentpool/internal/app/queries"
)

type AvailabilityHandler struct {
	errorResponder
	Queries queries.Bus
}

func NewAvailabilityHandler(q queries.Bus, logger *slog.Logger) AvailabilityHandler {
	return AvailabilityHandler{errorResponder: errorResponder{Logger: logger}, Queries: q}
}

func (h AvailabilityHandler) Group(c *gin.Context) {
	start, end, err := parseRange(c.Query("start"), c.Query("end"))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	query := availabilityapp.FreeUnitsQuery{GroupID: c.Param("id"), Start: start, End: end}
	result, err := queries.Ask[availabilityapp.FreeUnitsQuery, dto.GroupAvailability](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Unit(c *gin.Context) {
	start, end, err := parseRange(c.Query("start"), c.Query("end"))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	query := availabilityapp.UnitAvailabilityQuery{UnitID: c.Param("id"), Start: start, End: end}
	result, err := queries.Ask[availabilityapp.UnitAvailabilityQuery, dto.UnitAvailability](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ AvailabilityHTTP = AvailabilityHandler{}
