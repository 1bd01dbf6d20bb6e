package store

import (
	"context"
	"fmt"

	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/schedule"
	"gorm.io/gorm"
)

// GetSchedule returns the tenant's weekly rules ordered Monday first.
func (s *Store) GetSchedule(ctx context.Context, tenantID string) ([]models.ScheduleRule, error) {
	var out []models.ScheduleRule
	err := s.with(ctx).Where("tenant_id = ?", tenantID).Order("day_of_week").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: get schedule: %w", err)
	}
	return out, nil
}

// GetRule returns the rule for one day of the week.
func (s *Store) GetRule(ctx context.Context, tenantID string, day int) (*models.ScheduleRule, error) {
	var r models.ScheduleRule
	err := s.with(ctx).First(&r, "tenant_id = ? AND day_of_week = ?", tenantID, day).Error
	if err != nil {
		return nil, notFound(fmt.Sprintf("get schedule rule day %d", day), err)
	}
	return &r, nil
}

// ReplaceSchedule swaps the tenant's weekly calendar for rules. Exactly one
// rule per day 0-6 is required; working days need a start before their end.
func (s *Store) ReplaceSchedule(ctx context.Context, tenantID string, rules []models.ScheduleRule) error {
	if err := ValidateSchedule(rules); err != nil {
		return fmt.Errorf("store: replace schedule: %w", err)
	}
	return s.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&models.ScheduleRule{}).Error; err != nil {
			return fmt.Errorf("store: replace schedule: clear: %w", err)
		}
		fresh := make([]models.ScheduleRule, len(rules))
		for i, r := range rules {
			fresh[i] = models.ScheduleRule{
				TenantID:  tenantID,
				DayOfWeek: r.DayOfWeek,
				StartTime: r.StartTime,
				EndTime:   r.EndTime,
				Working:   r.Working,
			}
		}
		if err := tx.Create(&fresh).Error; err != nil {
			return fmt.Errorf("store: replace schedule: insert: %w", err)
		}
		return nil
	})
}

// ValidateSchedule checks a full weekly calendar.
func ValidateSchedule(rules []models.ScheduleRule) error {
	if len(rules) != models.DaysPerWeek {
		return fmt.Errorf("%d rules given, want %d: %w", len(rules), models.DaysPerWeek, ErrInvalid)
	}
	var seen [models.DaysPerWeek]bool
	for _, r := range rules {
		if r.DayOfWeek < 0 || r.DayOfWeek >= models.DaysPerWeek {
			return fmt.Errorf("day_of_week %d out of range: %w", r.DayOfWeek, ErrInvalid)
		}
		if seen[r.DayOfWeek] {
			return fmt.Errorf("day_of_week %d given twice: %w", r.DayOfWeek, ErrInvalid)
		}
		seen[r.DayOfWeek] = true
		if !r.Working {
			continue
		}
		rule := RuleFromModel(r)
		if rule.Start == nil || rule.End == nil {
			return fmt.Errorf("day %d: working day needs start and end times: %w", r.DayOfWeek, ErrInvalid)
		}
		if *rule.Start >= *rule.End {
			return fmt.Errorf("day %d: start %s is not before end %s: %w", r.DayOfWeek, rule.Start, rule.End, ErrInvalid)
		}
	}
	return nil
}

// RuleFromModel converts a stored rule into the scheduling engine's form.
// Unparseable times are treated as missing.
func RuleFromModel(r models.ScheduleRule) schedule.Rule {
	rule := schedule.Rule{DayOfWeek: r.DayOfWeek, Working: r.Working}
	if r.StartTime != nil {
		if t, err := schedule.ParseTimeOfDay(*r.StartTime); err == nil {
			rule.Start = &t
		}
	}
	if r.EndTime != nil {
		if t, err := schedule.ParseTimeOfDay(*r.EndTime); err == nil {
			rule.End = &t
		}
	}
	return rule
}
