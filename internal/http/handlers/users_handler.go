// User directory HTTP handlers.
//
// This file exposes the read-only user directory:
//   - GET /users  (list all users with display names)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"direct-chat/internal/services"
)

// ListUsersResponse wraps the user directory listing.
type ListUsersResponse struct {
	Users []services.UserSummary `json:"users"`
}

// ListUsers returns every known user with a display name suitable for
// rendering a contact list.
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.userSvc.List(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: users})
}
