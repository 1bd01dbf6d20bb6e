package store

import (
	"context"
	"fmt"

	"github.com/zulandar/parlor/internal/models"
)

// GetService loads one service of the tenant.
func (s *Store) GetService(ctx context.Context, tenantID string, id uint) (*models.Service, error) {
	var svc models.Service
	if err := s.with(ctx).First(&svc, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return nil, notFound(fmt.Sprintf("get service %d", id), err)
	}
	return &svc, nil
}

// ListServices returns the tenant's catalog ordered by category and name.
func (s *Store) ListServices(ctx context.Context, tenantID string, activeOnly bool) ([]models.Service, error) {
	q := s.with(ctx).Where("tenant_id = ?", tenantID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.Service
	if err := q.Order("category, name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	return out, nil
}

// AddService inserts a service. Duration must be positive.
func (s *Store) AddService(ctx context.Context, svc *models.Service) error {
	if svc.Duration <= 0 {
		return fmt.Errorf("store: add service: duration %d: %w", svc.Duration, ErrInvalid)
	}
	if svc.TenantID == "" || svc.Name == "" {
		return fmt.Errorf("store: add service: tenant and name are required: %w", ErrInvalid)
	}
	if err := s.with(ctx).Create(svc).Error; err != nil {
		return fmt.Errorf("store: add service: %w", err)
	}
	return nil
}

// UpdateService saves catalog fields. Existing appointments keep the
// duration they were booked with.
func (s *Store) UpdateService(ctx context.Context, svc *models.Service) error {
	if svc.Duration <= 0 {
		return fmt.Errorf("store: update service %d: duration %d: %w", svc.ID, svc.Duration, ErrInvalid)
	}
	if _, err := s.GetService(ctx, svc.TenantID, svc.ID); err != nil {
		return err
	}
	res := s.with(ctx).Model(&models.Service{}).
		Where("tenant_id = ? AND id = ?", svc.TenantID, svc.ID).
		Select("Name", "Description", "Category", "Price", "Duration", "Active").
		Updates(svc)
	if res.Error != nil {
		return fmt.Errorf("store: update service %d: %w", svc.ID, res.Error)
	}
	return nil
}

// DeleteService removes a service, or deactivates it when appointments
// still reference it. The returned bool is true when the row was deleted.
func (s *Store) DeleteService(ctx context.Context, tenantID string, id uint) (bool, error) {
	if _, err := s.GetService(ctx, tenantID, id); err != nil {
		return false, err
	}
	var refs int64
	if err := s.with(ctx).Model(&models.Appointment{}).
		Where("tenant_id = ? AND service_id = ?", tenantID, id).Count(&refs).Error; err != nil {
		return false, fmt.Errorf("store: delete service %d: %w", id, err)
	}
	if refs > 0 {
		err := s.with(ctx).Model(&models.Service{}).
			Where("tenant_id = ? AND id = ?", tenantID, id).Update("active", false).Error
		if err != nil {
			return false, fmt.Errorf("store: deactivate service %d: %w", id, err)
		}
		return false, nil
	}
	if err := s.with(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Service{}).Error; err != nil {
		return false, fmt.Errorf("store: delete service %d: %w", id, err)
	}
	return true, nil
}
