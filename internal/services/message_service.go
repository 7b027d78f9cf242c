// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of chat messages. It validates inputs before touching
// storage, verifies that the target chat exists and that the sender belongs
// to it, persists the message atomically (the message row and the chat's
// list-append happen in one transaction), and hands the committed message to
// the notification sink.
//
// The sink call is strictly post-commit: a failed publish is logged and
// counted but never rolls back or fails the send. Retrying a send without an
// idempotency key can therefore duplicate a message; the HTTP layer offers
// Idempotency-Key support for clients that need safe retries.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// chat identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"direct-chat/internal/domain"
	"direct-chat/internal/notify"
	"direct-chat/internal/repo"
	"direct-chat/internal/search"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageService coordinates message persistence, history reads, and
// notification delivery.
type MessageService struct {
	DB   *gorm.DB
	Sink notify.Sink

	// MaxTextRunes caps message bodies by rune length; 0 disables the cap.
	MaxTextRunes int
}

// Send validates and appends a message to an existing chat, then notifies the
// sink with the persisted payload.
//
// Validation order (nothing is written until all checks pass):
//   - text must be non-empty after trimming (ErrEmptyText)
//   - senderID must be non-empty (ErrEmptySender)
//   - text must fit MaxTextRunes when configured (ErrTextTooLong)
//   - the chat must exist (ErrChatNotFound)
//   - the sender must be one of the chat's participants (ErrSenderNotParticipant)
//
// On success the returned Message is exactly what was persisted and the
// chat's message list is exactly one entry longer.
func (s *MessageService) Send(ctx context.Context, chatID, senderID, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("sender.id", senderID),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return nil, ErrEmptySender
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return nil, ErrTextTooLong
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if !chat.Participants.Contains(senderID) {
		return nil, ErrSenderNotParticipant
	}

	m, err := repo.AppendMessage(ctx, s.DB, chatID, senderID, text)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	// Post-commit hand-off. A sink failure is an observability event, not a
	// send failure: the message is already durable.
	if s.Sink != nil {
		if perr := s.Sink.Publish(ctx, chatID, m); perr != nil {
			log.Warn().
				Err(perr).
				Str("chat_id", chatID).
				Str("message_id", m.ID).
				Msg("notification publish failed")
		}
	}

	return m, nil
}

// History returns the chat's full message history in append order. The read
// is pure: no cursor state is retained between calls.
func (s *MessageService) History(ctx context.Context, chatID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(attribute.String("chat.id", chatID)),
	)
	defer span.End()

	if err := s.ensureChat(ctx, chatID); err != nil {
		return nil, err
	}
	out, err := repo.ListMessages(ctx, s.DB, chatID, 0)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// ListPage returns paginated messages for a chat in append order, plus the
// total count for pagination metadata.
func (s *MessageService) ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if err := s.ensureChat(ctx, chatID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, chatID, offset, pageSize)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return items, total, nil
}

// SearchHit is one ranked match from Search. Snippet is a display-ready
// excerpt of the message text; Score is the similarity in (0, 1].
type SearchHit struct {
	Message domain.Message `json:"message"`
	Snippet string         `json:"snippet"`
	Score   float64        `json:"score"`
}

// Search ranks the chat's messages against a free-text query. The index is
// built per call from the chat's history; at direct-chat scale (two-party
// conversations) that is cheaper than maintaining an incremental index.
// Results come back best first; an empty result is a valid answer.
func (s *MessageService) Search(ctx context.Context, chatID, query string, k int) ([]SearchHit, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("k", k),
		),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = 10
	}

	if err := s.ensureChat(ctx, chatID); err != nil {
		return nil, err
	}
	msgs, err := repo.ListMessages(ctx, s.DB, chatID, 0)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(msgs) == 0 {
		return []SearchHit{}, nil
	}

	byID := make(map[string]*domain.Message, len(msgs))
	docs := make([]search.Document, 0, len(msgs))
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
		docs = append(docs, search.Document{ID: msgs[i].ID, Text: msgs[i].Text})
	}

	results := search.NewIndex(docs).TopK(query, k)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		m, ok := byID[r.DocID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Message: *m, Snippet: r.Snippet, Score: r.Score})
	}
	return hits, nil
}

// ensureChat maps a chat-existence check onto service errors.
func (s *MessageService) ensureChat(ctx context.Context, chatID string) error {
	_, err := repo.GetChat(ctx, s.DB, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return storeErr(err)
	}
	return nil
}
