package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/auth"
	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	authService *auth.Service
	presence    *core.PresenceTracker
	log         *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(authService *auth.Service, presence *core.PresenceTracker, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		authService: authService,
		presence:    presence,
		log:         logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	IsOnline  bool      `json:"isOnline"`
	CreatedAt time.Time `json:"createdAt"`
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

// Profile returns the authenticated user.
// GET /api/users/profile
func (h *UserHandlers) Profile(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	user, err := h.authService.Profile(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err, "failed to load profile")
		return
	}

	resp := userToResponse(user)
	resp.IsOnline = h.presence.Online(uid)
	c.JSON(http.StatusOK, resp)
}
