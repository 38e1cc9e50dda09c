package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/auth"
	"github.com/vovakirdan/huddle-server/internal/core"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyIdentity is the context key for storing the caller's core.Identity.
	ContextKeyIdentity = "identity"
)

// bearerToken extracts the token from "Bearer <token>". ok is false when
// the header is present but malformed.
func bearerToken(header string) (token string, ok bool) {
	if header == "" {
		return "", true
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header", Code: core.ErrCodeUnauthorized})
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok || token == "" {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format", Code: core.ErrCodeUnauthorized})
			return
		}

		identity, err := authService.Verify(c.Request.Context(), token)
		if err != nil {
			if ce, ok := core.AsCoreError(err); ok && ce.Code == core.ErrCodeUnauthorized {
				logger.Debug().Err(err).Msg("invalid token")
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: core.ErrCodeUnauthorized})
				return
			}
			logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("verify token")
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		c.Set(ContextKeyUserID, identity.ID)
		c.Set(ContextKeyIdentity, identity)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// currentUserID returns the authenticated caller. It writes a 401 and
// returns false when the middleware did not run.
func currentUserID(c *gin.Context, logger *zerolog.Logger) (string, bool) {
	uid := c.GetString(ContextKeyUserID)
	if uid == "" {
		logger.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthorized})
		return "", false
	}
	return uid, true
}
