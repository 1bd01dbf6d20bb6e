// Package store is the tenant-scoped CRUD layer over GORM. Every query is
// filtered by tenant ID; records of one tenant are never visible to another.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist for the
	// tenant.
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken is returned when a new appointment would overlap a
	// confirmed one.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrInvalidTransition is returned when an appointment status change is
	// not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalid is returned for malformed input such as a non-positive
	// duration or an incomplete weekly schedule.
	ErrInvalid = errors.New("invalid input")
)

// Store wraps a GORM handle.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// notFound maps gorm.ErrRecordNotFound onto ErrNotFound.
func notFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("store: %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
