package models

// ScheduleRule is one day of a tenant's weekly calendar. DayOfWeek runs from
// 0 (Monday) to 6 (Sunday); every tenant has exactly seven rules.
type ScheduleRule struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	TenantID  string  `gorm:"size:64;not null;uniqueIndex:idx_schedule_day"`
	DayOfWeek int     `gorm:"not null;uniqueIndex:idx_schedule_day"`
	StartTime *string `gorm:"size:5"` // HH:MM
	EndTime   *string `gorm:"size:5"`
	Working   bool    `gorm:"not null"`
}

// DaysPerWeek is the number of rules in a complete weekly schedule.
const DaysPerWeek = 7
