// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the transactional append that keeps a chat's message list
// an ordered, gap-tolerant sequence.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"direct-chat/internal/domain"
)

// AppendMessage persists a new message and links it into the chat's ordered
// list as one atomic operation. Inside a single transaction it:
//
//  1. verifies the chat row still exists (ErrNotFound otherwise),
//  2. assigns the next per-chat sequence number (MAX(seq)+1),
//  3. inserts the message with status "sent" and a UTC timestamp,
//  4. bumps the chat's UpdatedAt so conditional reads observe the append.
//
// Either all four happen or none do; a crash mid-append leaves no orphaned
// message. The returned Message is exactly what was persisted.
func AppendMessage(ctx context.Context, db *gorm.DB, chatID, senderID, text string) (*domain.Message, error) {
	var m *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		var next int64
		if err := tx.Raw(
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE chat_id = ?", chatID,
		).Scan(&next).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		m = &domain.Message{
			ID:        uuid.NewString(),
			ChatID:    chatID,
			Seq:       next,
			SenderID:  senderID,
			Text:      text,
			Status:    domain.StatusSent,
			CreatedAt: now,
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Chat{}).
			Where("id = ?", chatID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the chat's messages in append order (Seq ASC).
// A limit <= 0 returns the full history.
func ListMessages(ctx context.Context, db *gorm.DB, chatID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListMessagesPage returns a paginated slice in append order (Seq ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, chatID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(ctx context.Context, db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).
		Scan(&total).Error
	return total, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
