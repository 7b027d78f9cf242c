// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - POST /chats         (resolve-or-create by participant set)
//   - POST /chats/lookup  (resolve an existing chat, never creates)
//   - GET  /chats/{id}    (fetch a chat by id)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. A chat is addressed by its
// participant set; the same set always resolves to the same chat regardless
// of request order.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"direct-chat/internal/domain"
	"direct-chat/internal/services"
	"direct-chat/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService defines chat resolution operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// ResolveOrCreate returns the chat for a participant set, creating it on
	// first use. The boolean reports whether this call created the chat.
	ResolveOrCreate(ctx context.Context, participants []string) (*domain.Chat, bool, error)
	// GetByParticipants returns an existing chat for a participant set or
	// services.ErrChatNotFound.
	GetByParticipants(ctx context.Context, participants []string) (*domain.Chat, error)
	// GetByID fetches a chat by its identifier or services.ErrChatNotFound.
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
}

// MessageService defines message append and history operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// Send validates and appends a message to a chat, then notifies the
	// real-time sink with the persisted payload.
	Send(ctx context.Context, chatID, senderID, text string) (*domain.Message, error)
	// ListPage returns a page of messages within a chat and the total count.
	ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error)
	// Search ranks a chat's messages against a free-text query, best first.
	Search(ctx context.Context, chatID, query string, k int) ([]services.SearchHit, error)
}

// UserService exposes the read-only user directory.
type UserService interface {
	// List returns every known user as a directory summary.
	List(ctx context.Context) ([]services.UserSummary, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chats, messages, and users.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	chatSvc ChatService
	msgSvc  MessageService
	userSvc UserService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(chatSvc ChatService, msgSvc MessageService, userSvc UserService) *Handlers {
	return &Handlers{chatSvc: chatSvc, msgSvc: msgSvc, userSvc: userSvc}
}

//
// DTOs
//

// ResolveChatRequest is the JSON payload for resolving a chat by its
// participant set.
type ResolveChatRequest struct {
	// Participants is the set of user ids the chat is between. Order does
	// not matter; at least two distinct ids are required.
	Participants []string `json:"participants" binding:"required"`
}

// ChatResponse is the JSON shape of a chat resource.
type ChatResponse struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"created_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// chatResponse projects a domain chat into its wire shape.
func chatResponse(ch *domain.Chat) ChatResponse {
	return ChatResponse{
		ID:           ch.ID,
		Participants: ch.Participants,
		CreatedAt:    ch.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

//
// Handlers
//

// ResolveChat returns the single chat for the posted participant set,
// creating it if none exists yet. Responds 201 when this request created the
// chat and 200 when it already existed, with the same body shape either way.
func (h *Handlers) ResolveChat(c *gin.Context) {
	var req ResolveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "participants required")
		return
	}

	ch, created, err := h.chatSvc.ResolveOrCreate(c.Request.Context(), req.Participants)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidParticipants):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeResolveFailed, err.Error())
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, chatResponse(ch))
}

// LookupChat resolves an existing chat for the posted participant set. Unlike
// ResolveChat it never creates: an unknown set yields 404.
func (h *Handlers) LookupChat(c *gin.Context) {
	var req ResolveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "participants required")
		return
	}

	ch, err := h.chatSvc.GetByParticipants(c.Request.Context(), req.Participants)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidParticipants):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeResolveFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, chatResponse(ch))
}

// GetChat fetches a single chat by id.
func (h *Handlers) GetChat(c *gin.Context) {
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	ch, err := h.chatSvc.GetByID(c.Request.Context(), chatID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, chatResponse(ch))
}
