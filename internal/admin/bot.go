package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/registry"
	"github.com/zulandar/parlor/internal/store"
	"github.com/zulandar/parlor/internal/worker"
)

// UseExisting in a test request means "use the stored bot token".
const UseExisting = "USE_EXISTING"

type botStatusView struct {
	registry.Status
	Configured   bool              `json:"configured"`
	Enabled      bool              `json:"enabled"`
	AdminContact string            `json:"admin_contact"`
	Clients      store.ClientStats `json:"clients"`
}

func (s *Server) tenant(c *gin.Context) (*models.Tenant, bool) {
	t, err := s.opts.Store.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return t, true
}

func (s *Server) handleListBots(c *gin.Context) {
	ok(c, s.opts.Bots.List())
}

func (s *Server) handleBotStart(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	err := s.opts.Bots.Start(c.Request.Context(), t.ID, t.BotToken, t.AdminContact)
	if errors.Is(err, worker.ErrNoCredential) {
		badRequest(c, "bot token is not configured")
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": s.opts.Bots.Status(t.ID)})
}

func (s *Server) handleBotStop(c *gin.Context) {
	id := c.Param("id")
	res, err := s.opts.Bots.Stop(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"result": res.String(), "status": s.opts.Bots.Status(id)})
}

// handleBotRestart restarts an enabled bot and stops a disabled one.
func (s *Server) handleBotRestart(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	if !t.BotConfigured() {
		badRequest(c, "bot token is not configured")
		return
	}
	ctx := c.Request.Context()
	if !t.NotificationsEnabled {
		res, err := s.opts.Bots.Stop(ctx, t.ID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"result": res.String(), "status": s.opts.Bots.Status(t.ID)})
		return
	}
	if err := s.opts.Bots.Restart(ctx, t.ID, t.BotToken, t.AdminContact); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": s.opts.Bots.Status(t.ID)})
}

func (s *Server) handleBotStatus(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	stats, err := s.opts.Store.CountClients(c.Request.Context(), t.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, botStatusView{
		Status:       s.opts.Bots.Status(t.ID),
		Configured:   t.BotConfigured(),
		Enabled:      t.NotificationsEnabled,
		AdminContact: t.AdminContact,
		Clients:      stats,
	})
}

type testRequest struct {
	Token        string `json:"token"`
	AdminContact string `json:"admin_contact"`
	Platform     string `json:"platform"`
}

// handleBotTest sends the test notification through a one-shot transport,
// independent of any running worker.
func (s *Server) handleBotTest(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == UseExisting {
		if !t.BotConfigured() {
			badRequest(c, "bot token is not saved")
			return
		}
		token = t.BotToken
	}
	if token == "" {
		badRequest(c, "bot token is required")
		return
	}
	contact := strings.TrimSpace(req.AdminContact)
	if contact == "" {
		contact = strings.TrimSpace(t.AdminContact)
	}
	if contact == "" {
		badRequest(c, "admin contact is required")
		return
	}
	platform := req.Platform
	if platform == "" {
		platform = t.Platform
	}
	if platform == "" {
		platform = s.opts.DefaultPlatform
	}

	if err := s.opts.Bots.SendTestNotification(c.Request.Context(), platform, token, contact); err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	ok(c, gin.H{"sent": true, "platform": platform})
}
