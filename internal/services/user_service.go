// Package services – UserService
//
// This file implements the UserService, the read-only directory used to
// render contact lists. It projects stored users into UserSummary values
// (identifier plus display name) and otherwise stays out of the way: this
// service never writes, and storage failures surface as ErrStoreUnavailable
// like everywhere else in the package.
package services

import (
	"context"

	"gorm.io/gorm"

	"direct-chat/internal/repo"
)

// UserSummary is the directory projection of a user: a stable identifier and
// a display name suitable for rendering.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// UserService exposes the read-only user directory.
type UserService struct {
	DB *gorm.DB
}

// List returns every known user as a UserSummary, in the repository's stable
// directory order.
func (s *UserService) List(ctx context.Context) ([]UserSummary, error) {
	users, err := repo.ListUsers(ctx, s.DB)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{ID: u.ID, DisplayName: u.DisplayName()})
	}
	return out, nil
}
