package models

import (
	"strconv"
	"time"
)

// Service is a bookable catalog entry. Duration is in minutes. Services that
// are referenced by appointments are deactivated instead of deleted.
type Service struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	TenantID    string  `gorm:"size:64;not null;index"`
	Name        string  `gorm:"size:128;not null"`
	Description string  `gorm:"type:text"`
	Category    string  `gorm:"size:64"`
	Price       float64 `gorm:"not null;default:0"`
	Duration    int     `gorm:"not null;default:60"`
	Active      bool    `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PriceLabel renders the price without trailing zeros, e.g. "1500" or "99.5".
func (s Service) PriceLabel() string {
	return strconv.FormatFloat(s.Price, 'f', -1, 64)
}
