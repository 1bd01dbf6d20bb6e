package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/parlor/internal/conversation"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/schedule"
)

type serviceView struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Duration    int     `json:"duration"`
	Active      bool    `json:"active"`
}

func newServiceView(svc models.Service) serviceView {
	return serviceView{
		ID:          svc.ID,
		Name:        svc.Name,
		Description: svc.Description,
		Category:    svc.Category,
		Price:       svc.Price,
		Duration:    svc.Duration,
		Active:      svc.Active,
	}
}

type serviceRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Duration    int     `json:"duration"`
	Active      *bool   `json:"active"`
}

func (r serviceRequest) model(tenantID string) models.Service {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.Service{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Category:    r.Category,
		Price:       r.Price,
		Duration:    r.Duration,
		Active:      active,
	}
}

type appointmentView struct {
	ID          uint   `json:"id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Duration    int    `json:"duration"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	ClientID    uint   `json:"client_id"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ServiceID   uint   `json:"service_id"`
	ServiceName string `json:"service_name"`
}

func newAppointmentView(a models.Appointment) appointmentView {
	return appointmentView{
		ID:          a.ID,
		Date:        a.Date,
		Time:        a.Time,
		Duration:    a.Duration,
		Status:      a.Status,
		Notes:       a.Notes,
		ClientID:    a.ClientID,
		ClientName:  a.Client.Name,
		ClientPhone: a.Client.Phone,
		ServiceID:   a.ServiceID,
		ServiceName: a.Service.Name,
	}
}

// idParam parses a numeric path parameter, writing a 400 on failure.
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}

func (s *Server) handleListServices(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	services, err := s.opts.Store.ListServices(c.Request.Context(), t.ID, c.Query("active") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]serviceView, 0, len(services))
	for _, svc := range services {
		out = append(out, newServiceView(svc))
	}
	ok(c, out)
}

func (s *Server) handleAddService(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	svc := req.model(t.ID)
	if err := s.opts.Store.AddService(c.Request.Context(), &svc); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": newServiceView(svc)})
}

func (s *Server) handleUpdateService(c *gin.Context) {
	id, valid := idParam(c, "sid")
	if !valid {
		return
	}
	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	svc := req.model(c.Param("id"))
	svc.ID = id
	if err := s.opts.Store.UpdateService(ctx, &svc); err != nil {
		fail(c, err)
		return
	}
	saved, err := s.opts.Store.GetService(ctx, svc.TenantID, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, newServiceView(*saved))
}

func (s *Server) handleDeleteService(c *gin.Context) {
	id, valid := idParam(c, "sid")
	if !valid {
		return
	}
	deleted, err := s.opts.Store.DeleteService(c.Request.Context(), c.Param("id"), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": deleted, "deactivated": !deleted})
}

// handleListBookings lists one day's appointments, today by default.
func (s *Server) handleListBookings(c *gin.Context) {
	t, found := s.tenant(c)
	if !found {
		return
	}
	date := schedule.FormatDate(s.opts.Now())
	if q := c.Query("date"); q != "" {
		d, err := schedule.ParseDate(q)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		date = schedule.FormatDate(d)
	}
	var statuses []string
	if st := c.Query("status"); st != "" {
		if !models.ValidStatus(st) {
			badRequest(c, "unknown status "+st)
			return
		}
		statuses = append(statuses, st)
	}
	appts, err := s.opts.Store.ListAppointmentsByDate(c.Request.Context(), t.ID, date, statuses...)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, newAppointmentView(a))
	}
	ok(c, out)
}

// tenantNotifier routes client notifications through one tenant's worker.
type tenantNotifier struct {
	bots     Bots
	tenantID string
}

func (n tenantNotifier) NotifyClient(ctx context.Context, cl models.Client, msg notify.Message) notify.Result {
	return n.bots.NotifyClient(ctx, n.tenantID, cl, msg)
}

func (s *Server) handleCancelBooking(c *gin.Context) {
	id, valid := idParam(c, "bid")
	if !valid {
		return
	}
	tenantID := c.Param("id")
	n := tenantNotifier{bots: s.opts.Bots, tenantID: tenantID}
	a, res, err := conversation.CancelByAdmin(c.Request.Context(), s.opts.Store, n, tenantID, id)
	if err != nil {
		fail(c, err)
		return
	}
	data := gin.H{
		"booking":         newAppointmentView(*a),
		"client_notified": res.Delivered,
	}
	if res.Skipped != "" {
		data["notification_skipped"] = res.Skipped
	}
	if res.Err != nil {
		data["notification_error"] = res.Err.Error()
	}
	ok(c, data)
}
