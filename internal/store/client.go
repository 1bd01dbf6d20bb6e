package store

import (
	"context"
	"fmt"

	"github.com/zulandar/parlor/internal/models"
	"gorm.io/gorm"
)

// GetClient loads one client of the tenant.
func (s *Store) GetClient(ctx context.Context, tenantID string, id uint) (*models.Client, error) {
	var c models.Client
	if err := s.with(ctx).First(&c, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return nil, notFound(fmt.Sprintf("get client %d", id), err)
	}
	return &c, nil
}

// GetClientByMessengerID looks a client up by messaging account ID.
func (s *Store) GetClientByMessengerID(ctx context.Context, tenantID, messengerID string) (*models.Client, error) {
	var c models.Client
	err := s.with(ctx).First(&c, "tenant_id = ? AND messenger_id = ?", tenantID, messengerID).Error
	if err != nil {
		return nil, notFound("get client by messenger id "+messengerID, err)
	}
	return &c, nil
}

// ListClients returns the tenant's clients ordered by name.
func (s *Store) ListClients(ctx context.Context, tenantID string) ([]models.Client, error) {
	var out []models.Client
	if err := s.with(ctx).Where("tenant_id = ?", tenantID).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list clients: %w", err)
	}
	return out, nil
}

// AddClient inserts a client.
func (s *Store) AddClient(ctx context.Context, c *models.Client) error {
	if c.TenantID == "" || c.Name == "" || c.Phone == "" {
		return fmt.Errorf("store: add client: tenant, name and phone are required: %w", ErrInvalid)
	}
	if err := s.with(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("store: add client: %w", err)
	}
	return nil
}

// UpdateClient saves profile fields of c.
func (s *Store) UpdateClient(ctx context.Context, c *models.Client) error {
	if _, err := s.GetClient(ctx, c.TenantID, c.ID); err != nil {
		return err
	}
	res := s.with(ctx).Model(&models.Client{}).
		Where("tenant_id = ? AND id = ?", c.TenantID, c.ID).
		Select("Name", "Phone", "Email", "BirthDate", "Notes", "MessengerID", "Username", "NotificationsEnabled").
		Updates(c)
	if res.Error != nil {
		return fmt.Errorf("store: update client %d: %w", c.ID, res.Error)
	}
	return nil
}

// DeleteClient removes a client.
func (s *Store) DeleteClient(ctx context.Context, tenantID string, id uint) error {
	res := s.with(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Client{})
	if res.Error != nil {
		return fmt.Errorf("store: delete client %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: delete client %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClientStats counts a tenant's clients for the bot status view.
type ClientStats struct {
	Total       int64 `json:"total"`
	Linked      int64 `json:"linked"`      // with a messenger ID
	Subscribers int64 `json:"subscribers"` // linked and opted in
}

// CountClients returns client totals for the tenant.
func (s *Store) CountClients(ctx context.Context, tenantID string) (ClientStats, error) {
	var st ClientStats
	base := func() *gorm.DB { return s.with(ctx).Model(&models.Client{}).Where("tenant_id = ?", tenantID) }
	if err := base().Count(&st.Total).Error; err != nil {
		return st, fmt.Errorf("store: count clients: %w", err)
	}
	if err := base().Where("messenger_id IS NOT NULL AND messenger_id <> ''").Count(&st.Linked).Error; err != nil {
		return st, fmt.Errorf("store: count clients: %w", err)
	}
	err := base().Where("messenger_id IS NOT NULL AND messenger_id <> '' AND notifications_enabled = ?", true).
		Count(&st.Subscribers).Error
	if err != nil {
		return st, fmt.Errorf("store: count clients: %w", err)
	}
	return st, nil
}
