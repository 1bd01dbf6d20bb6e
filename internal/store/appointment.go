package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/schedule"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetAppointment loads an appointment with its client and service.
func (s *Store) GetAppointment(ctx context.Context, tenantID string, id uint) (*models.Appointment, error) {
	var a models.Appointment
	err := s.with(ctx).Preload("Client").Preload("Service").
		First(&a, "tenant_id = ? AND id = ?", tenantID, id).Error
	if err != nil {
		return nil, notFound(fmt.Sprintf("get appointment %d", id), err)
	}
	return &a, nil
}

// ListAppointmentsByDate returns the day's appointments ordered by time,
// optionally limited to the given statuses.
func (s *Store) ListAppointmentsByDate(ctx context.Context, tenantID, date string, statuses ...string) ([]models.Appointment, error) {
	q := s.with(ctx).Preload("Client").Preload("Service").
		Where("tenant_id = ? AND date = ?", tenantID, date)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []models.Appointment
	if err := q.Order("time").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list appointments on %s: %w", date, err)
	}
	return out, nil
}

// ListAppointmentsByClient returns a client's confirmed appointments on or
// after fromDate, soonest first.
func (s *Store) ListAppointmentsByClient(ctx context.Context, tenantID string, clientID uint, fromDate string) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.with(ctx).Preload("Service").
		Where("tenant_id = ? AND client_id = ? AND status = ? AND date >= ?",
			tenantID, clientID, models.StatusConfirmed, fromDate).
		Order("date, time").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list appointments for client %d: %w", clientID, err)
	}
	return out, nil
}

// ListUpcomingUnreminded returns confirmed appointments dated between from
// and to inclusive whose reminder has not been sent yet.
func (s *Store) ListUpcomingUnreminded(ctx context.Context, tenantID, from, to string) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.with(ctx).Preload("Client").Preload("Service").
		Where("tenant_id = ? AND status = ? AND reminder_sent = ? AND date >= ? AND date <= ?",
			tenantID, models.StatusConfirmed, false, from, to).
		Order("date, time").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list upcoming unreminded: %w", err)
	}
	return out, nil
}

// Booked returns the confirmed bookings on date in the scheduling engine's
// form.
func (s *Store) Booked(ctx context.Context, tenantID, date string) ([]schedule.Booked, error) {
	return booked(s.with(ctx), tenantID, date, 0)
}

func booked(tx *gorm.DB, tenantID, date string, exclude uint) ([]schedule.Booked, error) {
	var rows []models.Appointment
	q := tx.Select("id", "time", "duration").
		Where("tenant_id = ? AND date = ? AND status = ?", tenantID, date, models.StatusConfirmed)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: booked on %s: %w", date, err)
	}
	out := make([]schedule.Booked, 0, len(rows))
	for _, a := range rows {
		start, err := schedule.ParseTimeOfDay(a.Time)
		if err != nil {
			return nil, fmt.Errorf("store: appointment %d: %w", a.ID, err)
		}
		out = append(out, schedule.Booked{ID: a.ID, Start: start, Duration: a.Duration})
	}
	return out, nil
}

// tenantLock selects the tenant row FOR UPDATE. Booking transactions take it
// first so concurrent writers for one tenant queue behind each other on
// MySQL and PostgreSQL. SQLite drops the clause; its writers are serialized
// by the database lock instead.
func tenantLock(tx *gorm.DB, tenantID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").Where("id = ?", tenantID).Limit(1).
		Find(&models.Tenant{})
}

// CreateAppointment inserts a confirmed appointment. The overlap check and
// the insert run in one transaction holding the tenant lock; a conflict
// returns ErrSlotTaken.
func (s *Store) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.Duration <= 0 {
		return fmt.Errorf("store: create appointment: duration %d: %w", a.Duration, ErrInvalid)
	}
	if _, err := schedule.ParseDate(a.Date); err != nil {
		return fmt.Errorf("store: create appointment: %v: %w", err, ErrInvalid)
	}
	start, err := schedule.ParseTimeOfDay(a.Time)
	if err != nil {
		return fmt.Errorf("store: create appointment: %v: %w", err, ErrInvalid)
	}
	a.Time = start.String()
	if a.Status == "" {
		a.Status = models.StatusConfirmed
	}
	return s.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tenantLock(tx, a.TenantID).Error; err != nil {
			return fmt.Errorf("store: create appointment: lock tenant: %w", err)
		}
		if a.Status == models.StatusConfirmed {
			existing, err := booked(tx, a.TenantID, a.Date, 0)
			if err != nil {
				return err
			}
			if !schedule.IsAvailable(start, a.Duration, existing) {
				return fmt.Errorf("store: create appointment %s %s: %w", a.Date, a.Time, ErrSlotTaken)
			}
		}
		if err := tx.Omit(clause.Associations).Create(a).Error; err != nil {
			return fmt.Errorf("store: create appointment: %w", err)
		}
		return nil
	})
}

// UpdateAppointment moves an appointment or edits its notes. A confirmed
// appointment is re-checked for overlap at its new position.
func (s *Store) UpdateAppointment(ctx context.Context, a *models.Appointment) error {
	start, err := schedule.ParseTimeOfDay(a.Time)
	if err != nil {
		return fmt.Errorf("store: update appointment %d: %v: %w", a.ID, err, ErrInvalid)
	}
	if a.Duration <= 0 {
		return fmt.Errorf("store: update appointment %d: duration %d: %w", a.ID, a.Duration, ErrInvalid)
	}
	a.Time = start.String()
	return s.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tenantLock(tx, a.TenantID).Error; err != nil {
			return fmt.Errorf("store: update appointment %d: lock tenant: %w", a.ID, err)
		}
		var cur models.Appointment
		if err := tx.First(&cur, "tenant_id = ? AND id = ?", a.TenantID, a.ID).Error; err != nil {
			return notFound(fmt.Sprintf("update appointment %d", a.ID), err)
		}
		if cur.Status != a.Status && !models.CanTransition(cur.Status, a.Status) {
			return fmt.Errorf("store: update appointment %d: %s -> %s: %w", a.ID, cur.Status, a.Status, ErrInvalidTransition)
		}
		if a.Status == models.StatusConfirmed {
			existing, err := booked(tx, a.TenantID, a.Date, a.ID)
			if err != nil {
				return err
			}
			if !schedule.IsAvailable(start, a.Duration, existing) {
				return fmt.Errorf("store: update appointment %d: %w", a.ID, ErrSlotTaken)
			}
		}
		err := tx.Model(&models.Appointment{}).Where("id = ?", a.ID).
			Select("ClientID", "ServiceID", "Date", "Time", "Duration", "Status", "Notes", "ReminderSent").
			Updates(a).Error
		if err != nil {
			return fmt.Errorf("store: update appointment %d: %w", a.ID, err)
		}
		return nil
	})
}

// DeleteAppointment removes an appointment.
func (s *Store) DeleteAppointment(ctx context.Context, tenantID string, id uint) error {
	res := s.with(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Appointment{})
	if res.Error != nil {
		return fmt.Errorf("store: delete appointment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: delete appointment %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetStatus moves an appointment to a new status and returns it with its
// client and service loaded.
func (s *Store) SetStatus(ctx context.Context, tenantID string, id uint, status string) (*models.Appointment, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("store: set status %q: %w", status, ErrInvalid)
	}
	err := s.with(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Appointment
		if err := tx.First(&cur, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
			return notFound(fmt.Sprintf("set status of appointment %d", id), err)
		}
		if !models.CanTransition(cur.Status, status) {
			return fmt.Errorf("store: set status of appointment %d: %s -> %s: %w", id, cur.Status, status, ErrInvalidTransition)
		}
		if err := tx.Model(&models.Appointment{}).Where("id = ?", id).Update("status", status).Error; err != nil {
			return fmt.Errorf("store: set status of appointment %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAppointment(ctx, tenantID, id)
}

// MarkReminded records that the reminder for an appointment was sent.
func (s *Store) MarkReminded(ctx context.Context, tenantID string, id uint) error {
	res := s.with(ctx).Model(&models.Appointment{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).Update("reminder_sent", true)
	if res.Error != nil {
		return fmt.Errorf("store: mark reminded %d: %w", id, res.Error)
	}
	return nil
}

// Availability is the booking picture for one service on one day.
type Availability struct {
	Date    string
	Working bool
	Service *models.Service
	Slots   []schedule.TimeOfDay
}

// Availability computes open slots for serviceID on date. A closed day
// yields Working=false and no slots.
func (s *Store) Availability(ctx context.Context, tenantID string, date time.Time, serviceID uint, step int) (*Availability, error) {
	svc, err := s.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return nil, err
	}
	day := schedule.FormatDate(date)
	out := &Availability{Date: day, Service: svc}
	r, err := s.GetRule(ctx, tenantID, schedule.Weekday(date))
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	rule := RuleFromModel(*r)
	out.Working = rule.Working && rule.Start != nil && rule.End != nil
	if !out.Working {
		return out, nil
	}
	existing, err := s.Booked(ctx, tenantID, day)
	if err != nil {
		return nil, err
	}
	out.Slots = schedule.AvailableSlots(rule, existing, svc.Duration, step)
	return out, nil
}
