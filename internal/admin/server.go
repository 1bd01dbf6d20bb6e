// Package admin serves the HTTP administration API: bot lifecycle control,
// tenant profile and schedule editing, availability lookups and booking
// cancellation.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/registry"
	"github.com/zulandar/parlor/internal/store"
)

// Bots is the part of the tenant registry the API drives.
type Bots interface {
	Start(ctx context.Context, tenantID, credential, adminContact string) error
	Stop(ctx context.Context, tenantID string) (registry.StopResult, error)
	Restart(ctx context.Context, tenantID, credential, adminContact string) error
	Status(tenantID string) registry.Status
	List() []registry.Status
	SendTestNotification(ctx context.Context, platform, credential, contact string) error
	ApplyProfile(ctx context.Context, before, after models.Tenant) error
	NotifyClient(ctx context.Context, tenantID string, c models.Client, msg notify.Message) notify.Result
}

// Opts holds configuration for the admin API.
type Opts struct {
	Store           *store.Store
	Bots            Bots
	JWTSecret       string // empty disables authentication
	DefaultPlatform string
	SlotStep        int
	Now             func() time.Time
}

// Server holds the API's dependencies.
type Server struct {
	opts Opts
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("admin: store is required")
	}
	if opts.Bots == nil {
		return nil, fmt.Errorf("admin: bot registry is required")
	}
	if opts.DefaultPlatform == "" {
		opts.DefaultPlatform = "telegram"
	}
	if opts.SlotStep <= 0 {
		opts.SlotStep = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.JWTSecret == "" {
		log.Warn().Msg("admin: jwt secret not set, API is unauthenticated")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{opts: opts}
	s.registerRoutes(router)
	return router, nil
}

// Serve runs the admin API on addr. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Serve(ctx context.Context, addr string, opts Opts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("admin API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(bearerAuth(s.opts.JWTSecret))

	api.GET("/bots", s.handleListBots)

	t := api.Group("/tenants/:id")
	t.POST("/bot/start", s.handleBotStart)
	t.POST("/bot/stop", s.handleBotStop)
	t.POST("/bot/restart", s.handleBotRestart)
	t.GET("/bot/status", s.handleBotStatus)
	t.POST("/bot/test", s.handleBotTest)

	t.GET("/profile", s.handleGetProfile)
	t.PUT("/profile", s.handlePutProfile)
	t.GET("/schedule", s.handleGetSchedule)
	t.PUT("/schedule", s.handlePutSchedule)
	t.GET("/availability", s.handleAvailability)

	t.GET("/services", s.handleListServices)
	t.POST("/services", s.handleAddService)
	t.PUT("/services/:sid", s.handleUpdateService)
	t.DELETE("/services/:sid", s.handleDeleteService)

	t.GET("/bookings", s.handleListBookings)
	t.POST("/bookings/:bid/cancel", s.handleCancelBooking)
}

// requestLogger logs each request at debug level, and server errors at
// warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := log.Debug()
		if status >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("admin request")
	}
}

// fail writes the JSON error body for err, mapping store sentinels onto
// HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrSlotTaken):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("admin request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
