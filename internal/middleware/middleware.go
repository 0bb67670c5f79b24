package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/helpers"
	"github.com/joshua-takyi/attendance/internal/models"
)

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		requestID, _ := c.Get("request_id")

		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if id, ok := helpers.IdentityFrom(c); ok {
			attrs = append(attrs, "user_id", id.UserID)
		}
		logger.Info("HTTP Request", attrs...)
	}
}

// Timeout bounds the request context, and with it every storage call the
// handlers make.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ErrorHandler logs errors attached to the context and answers with a generic
// 500 when no handler has written a response.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		requestID, _ := c.Get("request_id")

		logger.Error("Request error",
			"request_id", requestID,
			"error", err.Error(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":    false,
				"error":      "Internal server error",
				"request_id": requestID,
			})
		}
	}
}

// TokenVerifier checks an access token and returns its claims.
type TokenVerifier interface {
	Validate(token string) (*helpers.Claims, error)
}

// AuthMiddleware authenticates the caller from a bearer token or the
// access_token cookie and resolves their role from the user directory.
func AuthMiddleware(verifier TokenVerifier, users models.UserDirectory, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := helpers.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("access token not found"))
			return
		}

		claims, err := verifier.Validate(token)
		if err != nil {
			logger.Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("invalid or expired token"))
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			logger.Error("Invalid user ID in token", "user_id", claims.Subject, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("invalid user ID in token"))
			return
		}

		identity := helpers.Identity{
			UserID: userID,
			Email:  claims.Email,
			Role:   models.RoleGuest,
		}
		user, err := users.FindUserByID(c.Request.Context(), userID)
		switch {
		case err == nil:
			identity.Username = user.Username
			identity.Role = user.Role
			if user.Email != "" {
				identity.Email = user.Email
			}
		case errors.Is(err, models.ErrNotFound):
			logger.Info("Profile not found, using default role", "user_id", userID)
		default:
			logger.Warn("Failed to load profile, using default role", "user_id", userID, "error", err)
		}
		identity.Role = identity.GetSafeRole()

		c.Set(helpers.IdentityKey, identity)
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := helpers.IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		if !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse(models.ErrPrivileged.Error()))
			return
		}
		c.Next()
	}
}
