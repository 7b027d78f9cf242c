// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateChat returns ErrDuplicateChat when the participant-key unique
//     index rejects the insert; the caller re-fetches the winning row.
//   - On other DB errors (connectivity, missing table, etc.), the raw gorm
//     error is propagated.
//
// Functions:
//
//   - CreateChat(ctx, db, participants) -> *domain.Chat, error
//     Conditionally inserts a new Chat row keyed by the canonical
//     participant sequence.
//
//   - GetChat(ctx, db, id) -> *domain.Chat, error
//     Fetches a single chat by ID, or ErrNotFound if missing.
//
//   - FindChatByKey(ctx, db, key) -> *domain.Chat, error
//     Fetches the chat whose participant set matches the canonical key,
//     or ErrNotFound.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ChatService) which performs canonicalization and the
// get-or-create / lost-race handling.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"direct-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicateChat indicates that a chat for the same participant set was
// inserted concurrently; the unique index on participant_key rejected ours.
var ErrDuplicateChat = errors.New("chat already exists for participant set")

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations,
// so the message is inspected in addition to gorm's sentinel.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateChat inserts a new Chat row for the given canonical (sorted)
// participant sequence. The chat ID is a randomly generated UUID and
// CreatedAt is set to UTC. The insert is conditional: the unique index on
// participant_key guarantees at most one chat per participant set, and a
// concurrent duplicate insert surfaces as ErrDuplicateChat.
func CreateChat(ctx context.Context, db *gorm.DB, participants domain.ParticipantList) (*domain.Chat, error) {
	c := &domain.Chat{
		ID:             uuid.NewString(),
		ParticipantKey: participants.Key(),
		Participants:   participants,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateChat
		}
		return nil, err
	}
	return c, nil
}

// GetChat fetches a single chat by its ID. If the record does not exist, it
// returns ErrNotFound. On other DB errors, the raw error is returned.
func GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChatByKey fetches the chat whose canonical participant key equals key.
// Returns ErrNotFound when no chat exists for that participant set.
func FindChatByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("participant_key = ?", key).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountChats returns the total number of chat rows. Used by health/stats
// reporting and tests.
func CountChats(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Count(&total).Error
	return total, err
}
