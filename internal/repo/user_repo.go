// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-only repository functions for the
// user directory. The directory is owned by an external identity service;
// this backend never writes to it.
package repo

import (
	"context"

	"gorm.io/gorm"

	"direct-chat/internal/domain"
)

// ListUsers returns every directory entry ordered deterministically by
// last name, first name, then id. On DB error, it returns the error.
func ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Order("last_name ASC, first_name ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetUser fetches a directory entry by ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
