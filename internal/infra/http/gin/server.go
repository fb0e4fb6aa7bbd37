package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"stayhub/internal/infra/config"
	"stayhub/internal/infra/obs"
)

type BookingHTTP interface {
	Create(c *gin.Context)
	Quote(c *gin.Context)
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	Confirm(c *gin.Context)
	MarkFailed(c *gin.Context)
}

type AvailabilityHTTP interface {
	Calendar(c *gin.Context)
}

type MeHTTP interface {
	ListBookings(c *gin.Context)
	AwaitingPayment(c *gin.Context)
	PaidBookings(c *gin.Context)
}

type HostBookingHTTP interface {
	List(c *gin.Context)
	PaidGuests(c *gin.Context)
}

type AdminHTTP interface {
	ListBookings(c *gin.Context)
	AwaitingPayment(c *gin.Context)
	PaidBookings(c *gin.Context)
}

type PaymentHTTP interface {
	Process(c *gin.Context)
	Get(c *gin.Context)
}

type WebhookHTTP interface {
	Receive(c *gin.Context)
}

type Handlers struct {
	Booking        BookingHTTP
	Availability   AvailabilityHTTP
	Me             MeHTTP
	HostBooking    HostBookingHTTP
	Admin          AdminHTTP
	Payment        PaymentHTTP
	Webhook        WebhookHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(obsMW.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Create)
		api.GET("/bookings/quote", h.Booking.Quote)
		api.GET("/bookings/:id", h.Booking.Get)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
		api.POST("/bookings/:id/confirm", h.Booking.Confirm)
		api.POST("/bookings/:id/mark-failed", h.Booking.MarkFailed)
	}
	if h.Availability != nil {
		api.GET("/properties/:id/calendar", h.Availability.Calendar)
	}
	if h.Me != nil {
		meGroup := api.Group("/me")
		meGroup.GET("/bookings", h.Me.ListBookings)
		meGroup.GET("/bookings/awaiting-payment", h.Me.AwaitingPayment)
		meGroup.GET("/bookings/paid", h.Me.PaidBookings)
	}
	if h.HostBooking != nil {
		hostGroup := api.Group("/host")
		hostGroup.GET("/bookings", h.HostBooking.List)
		hostGroup.GET("/paid-guests", h.HostBooking.PaidGuests)
	}
	if h.Admin != nil {
		adminGroup := api.Group("/admin")
		adminGroup.GET("/bookings", h.Admin.ListBookings)
		adminGroup.GET("/bookings/awaiting-payment", h.Admin.AwaitingPayment)
		adminGroup.GET("/bookings/paid", h.Admin.PaidBookings)
	}
	if h.Payment != nil {
		api.POST("/payments", h.Payment.Process)
		api.GET("/payments/:id", h.Payment.Get)
	}
	if h.Webhook != nil {
		api.POST("/payments/webhook/:gateway", h.Webhook.Receive)
	}

	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
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
