package models

import "time"

// Appointment statuses.
const (
	StatusConfirmed        = "confirmed"
	StatusCancelled        = "cancelled"
	StatusCancelledByAdmin = "cancelled_by_admin"
	StatusCompleted        = "completed"
)

// Appointment is a booked service for a client. Duration is copied from the
// service at creation time so later catalog edits do not move existing
// bookings.
type Appointment struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	TenantID     string `gorm:"size:64;not null;index:idx_appt_day"`
	ClientID     uint   `gorm:"not null;index"`
	ServiceID    uint   `gorm:"not null;index"`
	Date         string `gorm:"size:10;not null;index:idx_appt_day"` // YYYY-MM-DD
	Time         string `gorm:"size:5;not null"`                     // HH:MM
	Duration     int    `gorm:"not null"`
	Status       string `gorm:"size:24;default:confirmed;index"`
	Notes        string `gorm:"type:text"`
	ReminderSent bool   `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Client  Client  `gorm:"foreignKey:ClientID"`
	Service Service `gorm:"foreignKey:ServiceID"`
}

// ValidStatus reports whether s is one of the four appointment statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCancelledByAdmin, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether an appointment may move from one status to
// another. Only confirmed appointments move, and only to a terminal status.
func CanTransition(from, to string) bool {
	if from != StatusConfirmed {
		return false
	}
	switch to {
	case StatusCancelled, StatusCancelledByAdmin, StatusCompleted:
		return true
	}
	return false
}
