// Package services – ChatService
//
// This file implements the ChatService, which resolves participant sets to
// chat sessions. It normalizes the incoming participant sequence into a
// canonical sorted list, then performs a get-or-create against the store.
// The at-most-one-chat-per-participant-set invariant is not enforced here by
// a check-then-act sequence alone: the repository's unique participant-key
// index makes creation an atomic conditional insert, and a lost race is
// resolved by re-fetching the winner's row.
//
// Service-level errors (e.g., ErrChatNotFound, ErrInvalidParticipants) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"direct-chat/internal/domain"
	"direct-chat/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChatRepo defines the repository contract required by ChatService.
// Implementations are responsible for persistence of chat aggregates.
type ChatRepo interface {
	// CreateChat conditionally inserts a chat row for a canonical
	// participant sequence; returns repo.ErrDuplicateChat if one exists.
	CreateChat(ctx context.Context, db *gorm.DB, participants domain.ParticipantList) (*domain.Chat, error)

	// GetChat fetches a chat by ID.
	GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error)

	// FindChatByKey fetches the chat for a canonical participant key.
	FindChatByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Chat, error)
}

// ChatService resolves participant sets to chats: an idempotent get-or-create
// plus a must-exist lookup variant used by read paths.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the chat repository used by this service.
	Repo ChatRepo
}

// NewChatService constructs a ChatService over the given handle and repository.
func NewChatService(db *gorm.DB, r ChatRepo) *ChatService {
	return &ChatService{DB: db, Repo: r}
}

// CanonicalParticipants normalizes a raw participant sequence into the
// canonical sorted list used for set equality. Identifiers are trimmed;
// blank entries, duplicates, and sets smaller than two members are rejected
// with ErrInvalidParticipants. The input slice is not mutated.
func CanonicalParticipants(ids []string) (domain.ParticipantList, error) {
	if len(ids) < 2 {
		return nil, ErrInvalidParticipants
	}
	out := make(domain.ParticipantList, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, ErrInvalidParticipants
		}
		if _, dup := seen[id]; dup {
			return nil, ErrInvalidParticipants
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveOrCreate returns the single chat for the given participant set,
// creating it if none exists. The boolean reports whether a new chat was
// created by this call. Identical sets always resolve to the same chat
// regardless of request order; under concurrent creation the storage-level
// unique index picks one winner and every caller receives that chat.
func (s *ChatService) ResolveOrCreate(ctx context.Context, participants []string) (*domain.Chat, bool, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ResolveOrCreate",
		trace.WithAttributes(attribute.Int("participants.count", len(participants))),
	)
	defer span.End()

	canonical, err := CanonicalParticipants(participants)
	if err != nil {
		return nil, false, err
	}
	key := canonical.Key()

	// Fast path: the chat already exists.
	c, err := s.Repo.FindChatByKey(ctx, s.DB, key)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, storeErr(err)
	}

	c, err = s.Repo.CreateChat(ctx, s.DB, canonical)
	if err == nil {
		span.SetAttributes(attribute.Bool("chat.created", true))
		return c, true, nil
	}
	if !errors.Is(err, repo.ErrDuplicateChat) {
		return nil, false, storeErr(err)
	}

	// Lost the creation race; return the winner's row.
	c, err = s.Repo.FindChatByKey(ctx, s.DB, key)
	if err != nil {
		return nil, false, storeErr(err)
	}
	return c, false, nil
}

// GetByParticipants returns the chat for an existing participant set. Unlike
// ResolveOrCreate it never creates: an unknown set yields ErrChatNotFound.
func (s *ChatService) GetByParticipants(ctx context.Context, participants []string) (*domain.Chat, error) {
	canonical, err := CanonicalParticipants(participants)
	if err != nil {
		return nil, err
	}
	c, err := s.Repo.FindChatByKey(ctx, s.DB, canonical.Key())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return c, nil
}

// GetByID fetches a chat by its identifier. An unknown id yields
// ErrChatNotFound.
func (s *ChatService) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	c, err := s.Repo.GetChat(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return c, nil
}

// storeErr tags a storage failure with ErrStoreUnavailable while keeping the
// underlying error text.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
