package admin

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/schedule"
	"github.com/zulandar/parlor/internal/store"
)

// profileView is a tenant profile as returned by the API. The bot token is
// never echoed back.
type profileView struct {
	ID                   string `json:"id"`
	SalonName            string `json:"salon_name"`
	Phone                string `json:"phone"`
	Address              string `json:"address"`
	Description          string `json:"description"`
	AdminContact         string `json:"admin_contact"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	Platform             string `json:"platform"`
	BotConfigured        bool   `json:"bot_configured"`
}

func newProfileView(t models.Tenant) profileView {
	return profileView{
		ID:                   t.ID,
		SalonName:            t.SalonName,
		Phone:                t.Phone,
		Address:              t.Address,
		Description:          t.Description,
		AdminContact:         t.AdminContact,
		NotificationsEnabled: t.NotificationsEnabled,
		Platform:             t.Platform,
		BotConfigured:        t.BotConfigured(),
	}
}

// profileUpdate carries a partial profile; nil fields are left unchanged.
type profileUpdate struct {
	SalonName            *string `json:"salon_name"`
	Phone                *string `json:"phone"`
	Address              *string `json:"address"`
	Description          *string `json:"description"`
	BotToken             *string `json:"bot_token"`
	AdminContact         *string `json:"admin_contact"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	Platform             *string `json:"platform"`
}

func (u profileUpdate) apply(t *models.Tenant) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&t.SalonName, u.SalonName)
	set(&t.Phone, u.Phone)
	set(&t.Address, u.Address)
	set(&t.Description, u.Description)
	set(&t.BotToken, u.BotToken)
	set(&t.AdminContact, u.AdminContact)
	set(&t.Platform, u.Platform)
	if u.NotificationsEnabled != nil {
		t.NotificationsEnabled = *u.NotificationsEnabled
	}
}

func (s *Server) handleGetProfile(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	ok(c, newProfileView(*t))
}

// handlePutProfile saves the profile, creating the tenant on first use, and
// brings the bot in line with the new settings.
func (s *Server) handlePutProfile(c *gin.Context) {
	var req profileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Platform != nil && !slices.Contains(config.Platforms, strings.TrimSpace(*req.Platform)) {
		badRequest(c, "platform must be one of "+strings.Join(config.Platforms, ", "))
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	t, err := s.opts.Store.GetTenant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		t, err = s.opts.Store.EnsureTenant(ctx, id, s.opts.DefaultPlatform)
	}
	if err != nil {
		fail(c, err)
		return
	}
	before := *t
	req.apply(t)
	if err := s.opts.Store.UpdateTenant(ctx, t); err != nil {
		fail(c, err)
		return
	}
	after, err := s.opts.Store.GetTenant(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{"profile": newProfileView(*after)}
	if err := s.opts.Bots.ApplyProfile(ctx, before, *after); err != nil {
		log.Warn().Err(err).Str("tenant", id).Msg("profile saved but bot update failed")
		resp["bot_error"] = err.Error()
	}
	resp["bot"] = s.opts.Bots.Status(id)
	ok(c, resp)
}

type ruleView struct {
	DayOfWeek int    `json:"day_of_week"`
	Working   bool   `json:"working"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

func newRuleViews(rules []models.ScheduleRule) []ruleView {
	out := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		v := ruleView{DayOfWeek: r.DayOfWeek, Working: r.Working}
		if r.StartTime != nil {
			v.StartTime = *r.StartTime
		}
		if r.EndTime != nil {
			v.EndTime = *r.EndTime
		}
		out = append(out, v)
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	rules, err := s.opts.Store.GetSchedule(c.Request.Context(), t.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, newRuleViews(rules))
}

func (s *Server) handlePutSchedule(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	var req struct {
		Rules []ruleView `json:"rules"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	rules := make([]models.ScheduleRule, len(req.Rules))
	for i, r := range req.Rules {
		rules[i] = models.ScheduleRule{
			DayOfWeek: r.DayOfWeek,
			Working:   r.Working,
			StartTime: optional(r.StartTime),
			EndTime:   optional(r.EndTime),
		}
	}
	ctx := c.Request.Context()
	if err := s.opts.Store.ReplaceSchedule(ctx, t.ID, rules); err != nil {
		fail(c, err)
		return
	}
	saved, err := s.opts.Store.GetSchedule(ctx, t.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, newRuleViews(saved))
}

func (s *Server) handleAvailability(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	date, err := schedule.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	serviceID, err := strconv.ParseUint(c.Query("service_id"), 10, 64)
	if err != nil {
		badRequest(c, "service_id must be a positive integer")
		return
	}
	av, err := s.opts.Store.Availability(c.Request.Context(), t.ID, date, uint(serviceID), s.opts.SlotStep)
	if err != nil {
		fail(c, err)
		return
	}
	slots := make([]string, len(av.Slots))
	for i, sl := range av.Slots {
		slots[i] = sl.String()
	}
	ok(c, gin.H{
		"date":       av.Date,
		"working":    av.Working,
		"service_id": av.Service.ID,
		"duration":   av.Service.Duration,
		"slots":      slots,
	})
}
