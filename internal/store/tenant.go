package store

import (
	"context"
	"fmt"

	"github.com/zulandar/parlor/internal/db"
	"github.com/zulandar/parlor/internal/models"
)

// GetTenant loads a tenant profile.
func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.with(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound("get tenant "+id, err)
	}
	return &t, nil
}

// EnsureTenant creates the tenant and its seven schedule rules when missing.
func (s *Store) EnsureTenant(ctx context.Context, id, platform string) (*models.Tenant, error) {
	if id == "" {
		return nil, fmt.Errorf("store: ensure tenant: id is required: %w", ErrInvalid)
	}
	if err := db.SeedTenant(s.with(ctx), id, platform); err != nil {
		return nil, fmt.Errorf("store: ensure tenant %s: %w", id, err)
	}
	return s.GetTenant(ctx, id)
}

// UpdateTenant saves every profile field of t.
func (s *Store) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	if _, err := s.GetTenant(ctx, t.ID); err != nil {
		return err
	}
	res := s.with(ctx).Model(&models.Tenant{}).Where("id = ?", t.ID).
		Select("SalonName", "Phone", "Address", "Description", "BotToken",
			"AdminContact", "NotificationsEnabled", "Platform").
		Updates(t)
	if res.Error != nil {
		return fmt.Errorf("store: update tenant %s: %w", t.ID, res.Error)
	}
	return nil
}

// ListTenants returns every tenant ordered by ID.
func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	if err := s.with(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list tenants: %w", err)
	}
	return out, nil
}

// ListEnabledTenants returns tenants whose bot should run: notifications
// enabled and a credential configured.
func (s *Store) ListEnabledTenants(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	err := s.with(ctx).
		Where("notifications_enabled = ? AND bot_token <> ''", true).
		Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list enabled tenants: %w", err)
	}
	return out, nil
}
