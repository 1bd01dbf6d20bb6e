package models

import "time"

// Tenant is one salon or independent master. Each tenant runs its own bot
// worker and owns its services, clients, schedule and appointments.
type Tenant struct {
	ID                   string `gorm:"primaryKey;size:64"`
	SalonName            string `gorm:"size:128"`
	Phone                string `gorm:"size:32"`
	Address              string `gorm:"size:255"`
	Description          string `gorm:"type:text"`
	BotToken             string `gorm:"size:255"`
	AdminContact         string `gorm:"size:64"` // messenger user/chat id of the administrator
	NotificationsEnabled bool   `gorm:"default:false;index"`
	Platform             string `gorm:"size:16;default:telegram"` // telegram, discord, slack
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BotConfigured reports whether the tenant has enough settings for its bot
// to be started.
func (t Tenant) BotConfigured() bool {
	return t.BotToken != ""
}
