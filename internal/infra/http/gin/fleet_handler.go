package ginserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	fleetapp "rentpool/internal/app/handlers/fleet"
	"rentpool/internal/app/queries"
)

const maxGroupImageSizeBytes int64 = 10 * 1024 * 1024

type FleetHandler struct {
	errorResponder
	Commands commands.Bus
	Queries  queries.Bus
}

func NewFleetHandler(cmd commands.Bus, q queries.Bus, logger *slog.Logger) FleetHandler {
	return FleetHandler{errorResponder: errorResponder{Logger: logger}, Commands: cmd, Queries: q}
}

type policyRequest struct {
	Strategy            string `json:"strategy"`
	NamingTemplate      string `json:"naming_template"`
	SharePricing        *bool  `json:"share_pricing"`
	ShareSpecifications *bool  `json:"share_specifications"`
	ShareImages         *bool  `json:"share_images"`
}

func (p policyRequest) input() fleetapp.PolicyInput {
	return fleetapp.PolicyInput{
		Strategy:            p.Strategy,
		NamingTemplate:      p.NamingTemplate,
		SharePricing:        p.SharePricing,
		ShareSpecifications: p.ShareSpecifications,
		ShareImages:         p.ShareImages,
	}
}

type createGroupRequest struct {
	Name           string            `json:"name"`
	VehicleType    string            `json:"vehicle_type"`
	Quantity       int               `json:"quantity"`
	Policy         policyRequest     `json:"policy"`
	PricePerDay    decimal.Decimal   `json:"price_per_day"`
	Specifications map[string]string `json:"specifications"`
	Images         []string          `json:"images"`
	Description    string            `json:"description"`
	Available      *bool             `json:"available"`
}

type createUnitRequest struct {
	DisplayName    string            `json:"display_name"`
	VehicleType    string            `json:"vehicle_type"`
	PricePerDay    decimal.Decimal   `json:"price_per_day"`
	Specifications map[string]string `json:"specifications"`
	Images         []string          `json:"images"`
	Description    string            `json:"description"`
	Available      *bool             `json:"available"`
}

type convertRequest struct {
	Name    string        `json:"name"`
	UnitIDs []string      `json:"unit_ids"`
	Policy  policyRequest `json:"policy"`
}

type bulkUpdateRequest struct {
	PricePerDay    *decimal.Decimal  `json:"price_per_day"`
	Specifications map[string]string `json:"specifications"`
	Images         []string          `json:"images"`
	Description    *string           `json:"description"`
	Available      *bool             `json:"available"`
}

type addUnitsRequest struct {
	Count int `json:"count"`
}

func (h FleetHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := fleetapp.CreateGroupCommand{
		Name:            req.Name,
		VehicleType:     req.VehicleType,
		Quantity:        req.Quantity,
		Policy:          req.Policy.input(),
		PricePerDay:     req.PricePerDay,
		Specifications:  req.Specifications,
		Images:          req.Images,
		Description:     req.Description,
		Available:       req.Available,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[fleetapp.CreateGroupCommand, *dto.Group](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/groups/%s", result.ID))
	c.JSON(http.StatusCreated, result)
}

func (h FleetHandler) CreateUnit(c *gin.Context) {
	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := fleetapp.CreateUnitCommand{
		DisplayName:     req.DisplayName,
		VehicleType:     req.VehicleType,
		PricePerDay:     req.PricePerDay,
		Specifications:  req.Specifications,
		Images:          req.Images,
		Description:     req.Description,
		Available:       req.Available,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[fleetapp.CreateUnitCommand, *dto.Unit](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/units/%s", result.ID))
	c.JSON(http.StatusCreated, result)
}

func (h FleetHandler) ConvertToGroup(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := fleetapp.ConvertToGroupCommand{Name: req.Name, UnitIDs: req.UnitIDs, Policy: req.Policy.input()}
	result, err := commands.Dispatch[fleetapp.ConvertToGroupCommand, *dto.Group](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h FleetHandler) GetGroup(c *gin.Context) {
	result, err := queries.Ask[fleetapp.GetGroupQuery, dto.Group](c.Request.Context(), h.Queries, fleetapp.GetGroupQuery{GroupID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h FleetHandler) GetUnit(c *gin.Context) {
	result, err := queries.Ask[fleetapp.GetUnitQuery, dto.Unit](c.Request.Context(), h.Queries, fleetapp.GetUnitQuery{UnitID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h FleetHandler) BulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := fleetapp.BulkUpdateCommand{
		GroupID:         c.Param("id"),
		PricePerDay:     req.PricePerDay,
		Specifications:  req.Specifications,
		Images:          req.Images,
		Description:     req.Description,
		Available:       req.Available,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[fleetapp.BulkUpdateCommand, *fleetapp.BulkUpdateResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h FleetHandler) UpdatePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := fleetapp.UpdatePolicyCommand{GroupID: c.Param("id"), Policy: req.input()}
	result, err := commands.Dispatch[fleetapp.UpdatePolicyCommand, *dto.Group](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h FleetHandler) AddUnits(c *gin.Context) {
	var req addUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := fleetapp.AddUnitsCommand{GroupID: c.Param("id"), Count: req.Count}
	result, err := commands.Dispatch[fleetapp.AddUnitsCommand, *dto.Group](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DetachUnit removes a unit from its group. ?delete=true also deletes it.
func (h FleetHandler) DetachUnit(c *gin.Context) {
	cmd := fleetapp.DetachUnitCommand{
		GroupID: c.Param("id"),
		UnitID:  c.Param("unitId"),
		Delete:  strings.EqualFold(c.Query("delete"), "true"),
	}
	result, err := commands.Dispatch[fleetapp.DetachUnitCommand, *fleetapp.DetachUnitResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h FleetHandler) UploadImage(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("id"))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, fmt.Errorf("file is required: %w", err))
		return
	}
	if fileHeader.Size <= 0 {
		h.badRequest(c, errors.New("file is empty"))
		return
	}
	if fileHeader.Size > maxGroupImageSizeBytes {
		h.badRequest(c, fmt.Errorf("file too large (max %d MB)", maxGroupImageSizeBytes/1024/1024))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.badRequest(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxGroupImageSizeBytes+1))
	if err != nil {
		h.respond(c, http.StatusInternalServerError, codeInternal, fmt.Errorf("cannot read file: %w", err))
		return
	}
	if int64(len(data)) > maxGroupImageSizeBytes {
		h.badRequest(c, fmt.Errorf("file too large (max %d MB)", maxGroupImageSizeBytes/1024/1024))
		return
	}
	contentType := http.DetectContentType(data)
	if !isAllowedImageType(contentType) {
		h.badRequest(c, fmt.Errorf("unsupported content type: %s", contentType))
		return
	}

	cmd := fleetapp.UploadImageCommand{
		GroupID:     groupID,
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
	}
	result, err := commands.Dispatch[fleetapp.UploadImageCommand, *fleetapp.UploadImageResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h FleetHandler) Audit(c *gin.Context) {
	result, err := queries.Ask[fleetapp.AuditGroupsQuery, dto.AuditReport](c.Request.Context(), h.Queries, fleetapp.AuditGroupsQuery{})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func isAllowedImageType(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return true
	default:
		return false
	}
}

var _ FleetHTTP = FleetHandler{}
