// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /chats/{id}/messages         (append a message to the chat)
//   - GET  /chats/{id}/messages         (list paginated messages for a chat)
//   - GET  /chats/{id}/messages/search  (rank messages against a query)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (sender, chat, key), the handler returns that recorded
// message and sets `Idempotency-Replayed: true`. Without a key, a retried
// send appends again.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"direct-chat/internal/domain"
	"direct-chat/internal/repo"
	"direct-chat/internal/services"
	"direct-chat/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
//
// Text is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer. The service enforces the sender
// membership rule and an optional maximum rune count.
type PostMessageRequest struct {
	// SenderID identifies the participant sending the message.
	SenderID string `json:"sender_id" binding:"required"`
	// Text is the message body. It must be non-empty.
	Text string `json:"text" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for a newly appended message.
type PostMessageResponse struct {
	// Message is the persisted message created by the request.
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes message bodies for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// maxTextRunes inspects the concrete MessageService for a configured
// body-length limit. If unavailable, it returns a conservative fallback.
func maxTextRunes(msgSvc MessageService) int {
	const fallback = 4000
	if ms, ok := msgSvc.(*services.MessageService); ok {
		if ms.MaxTextRunes > 0 {
			return ms.MaxTextRunes
		}
	}
	return fallback
}

// idempotencyKey extracts an idempotency key if an upstream middleware has
// already validated/stashed it. The fallback behavior reads the
// "Idempotency-Key" header directly when no dedicated middleware exists.
func idempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

//
// Handlers
//

// PostMessage appends a message to the chat identified by the path id. The
// sender must be one of the chat's participants. On success the persisted
// message is returned and the real-time sink is notified by the service; a
// sink failure never turns a durable write into an error response.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")

	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sender_id and text required")
		return
	}

	text := sanitizeText(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	sender := strings.TrimSpace(req.SenderID)
	if sender == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sender_id required")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, sender, chatID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(ctx, svc.DB, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, PostMessageResponse{Message: prev})
					return
				}
			}
		}
	}

	m, err := h.msgSvc.Send(ctx, chatID, sender, text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrSenderNotParticipant):
			fail(c, http.StatusUnprocessableEntity, ErrCodeSenderNotParticipant, "sender is not a chat participant")
		case errors.Is(err, services.ErrTextTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("text too long: max %d runes", maxTextRunes(h.msgSvc)))
		case errors.Is(err, services.ErrEmptyText), errors.Is(err, services.ErrEmptySender):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, sender, chatID, idemKey, m.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages returns a paginated list of messages for the given chat in
// append order. Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")

	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	// ETag pre-check (best effort). Only for chats known to exist; an
	// unknown chat must 404 without a validator header.
	var db *gorm.DB
	if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc {
		db = svc.DB
	}
	if db != nil {
		if _, err := repo.GetChat(ctx, db, chatID); errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
			return
		}
		count, maxTS, err := repo.MessagesStats(ctx, db, chatID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, chatID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.ListPage(ctx, chatID, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SearchMessagesResponse contains ranked matches for an in-chat search.
type SearchMessagesResponse struct {
	Query string               `json:"query"`
	Hits  []services.SearchHit `json:"hits"`
}

// SearchMessages handles GET /chats/{id}/messages/search.
//
// Query parameters:
//   - q: free-text query (required, non-blank)
//   - k: maximum number of hits (default 10, capped at 50)
//
// An empty hit list is a successful response, not an error.
func (h *Handlers) SearchMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")

	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 10)
	if k < 1 {
		k = 10
	}
	if k > 50 {
		k = 50
	}

	hits, err := h.msgSvc.Search(ctx, chatID, query, k)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyQuery):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, SearchMessagesResponse{Query: query, Hits: hits})
}
