package models

import "time"

// Client is an end customer of a tenant. MessengerID links the client to a
// messaging account and is unique within a tenant when present.
type Client struct {
	ID                   uint    `gorm:"primaryKey;autoIncrement"`
	TenantID             string  `gorm:"size:64;not null;index;uniqueIndex:idx_client_messenger"`
	Name                 string  `gorm:"size:128;not null"`
	Phone                string  `gorm:"size:32;not null"`
	Email                *string `gorm:"size:128"`
	BirthDate            *string `gorm:"size:10"` // YYYY-MM-DD
	Notes                string  `gorm:"type:text"`
	MessengerID          *string `gorm:"size:64;uniqueIndex:idx_client_messenger"`
	Username             string  `gorm:"size:64"`
	NotificationsEnabled bool    `gorm:"not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Reachable reports whether the client can receive bot messages.
func (c Client) Reachable() bool {
	return c.MessengerID != nil && *c.MessengerID != "" && c.NotificationsEnabled
}
