package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentpool/internal/infra/config"
	"rentpool/internal/infra/obs"
)

type AvailabilityHTTP interface {
	Group(c *gin.Context)
	Unit(c *gin.Context)
}

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Confirm(c *gin.Context)
	Complete(c *gin.Context)
	Cancel(c *gin.Context)
	ListByUnit(c *gin.Context)
}

type FleetHTTP interface {
	CreateGroup(c *gin.Context)
	ConvertToGroup(c *gin.Context)
	GetGroup(c *gin.Context)
	BulkUpdate(c *gin.Context)
	UpdatePolicy(c *gin.Context)
	AddUnits(c *gin.Context)
	DetachUnit(c *gin.Context)
	UploadImage(c *gin.Context)
	CreateUnit(c *gin.Context)
	GetUnit(c *gin.Context)
	Audit(c *gin.Context)
}

type Handlers struct {
	Availability AvailabilityHTTP
	Booking      BookingHTTP
	Fleet        FleetHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health *obs.Health, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the engine without touching the global gin mode.
func NewRouter(obsMW obs.Middleware, health *obs.Health, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	if health != nil {
		router.GET("/livez", health.Livez)
		router.GET("/readyz", health.Readyz)
	}

	api := router.Group("/api/v1")
	if h.Availability != nil {
		api.GET("/groups/:id/availability", h.Availability.Group)
		api.GET("/units/:id/availability", h.Availability.Unit)
	}
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Create)
		api.GET("/bookings/:id", h.Booking.Get)
		api.POST("/bookings/:id/confirm", h.Booking.Confirm)
		api.POST("/bookings/:id/complete", h.Booking.Complete)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
		api.GET("/units/:id/bookings", h.Booking.ListByUnit)
	}
	if h.Fleet != nil {
		groups := api.Group("/groups")
		groups.POST("", h.Fleet.CreateGroup)
		groups.POST("/convert", h.Fleet.ConvertToGroup)
		groups.GET("/:id", h.Fleet.GetGroup)
		groups.PATCH("/:id/units", h.Fleet.BulkUpdate)
		groups.PUT("/:id/policy", h.Fleet.UpdatePolicy)
		groups.POST("/:id/units", h.Fleet.AddUnits)
		groups.DELETE("/:id/units/:unitId", h.Fleet.DetachUnit)
		groups.POST("/:id/images", h.Fleet.UploadImage)
		api.POST("/units", h.Fleet.CreateUnit)
		api.GET("/units/:id", h.Fleet.GetUnit)
		api.GET("/audit/groups", h.Fleet.Audit)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
