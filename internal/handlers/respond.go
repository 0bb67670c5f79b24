package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/helpers"
	"github.com/joshua-takyi/attendance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// statusFor maps an error category to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrCredentialMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		// logged by the error middleware; details stay out of the response
		_ = c.Error(err)
		msg := "Internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "service temporarily unavailable"
		}
		c.JSON(status, models.ErrorResponse(msg))
		return
	}

	var fe models.FieldError
	if errors.As(err, &fe) {
		c.JSON(status, models.FieldErrorResponse(err.Error(), fe.FieldName()))
		return
	}
	c.JSON(status, models.ErrorResponse(err.Error()))
}

func badRequest(c *gin.Context, field, reason string) {
	respondError(c, &models.InvalidInputError{Field: field, Reason: reason})
}

func currentIdentity(c *gin.Context) (helpers.Identity, bool) {
	id, ok := helpers.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
		return helpers.Identity{}, false
	}
	return id, true
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	raw := strings.Trim(strings.TrimSpace(c.Param(name)), "\"'")
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		badRequest(c, name, "must be a 24 character hex id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func userIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		badRequest(c, name, "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(c, name, "must be an RFC 3339 timestamp")
		return nil, false
	}
	return &t, true
}

func boolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, name, "must be true or false")
		return false, false
	}
	return v, true
}

// eventFilter reads the listing query: from, to, at, buffered, before, after.
func eventFilter(c *gin.Context) (models.EventFilter, bool) {
	var f models.EventFilter
	var ok bool
	if f.From, ok = timeQuery(c, "from"); !ok {
		return f, false
	}
	if f.To, ok = timeQuery(c, "to"); !ok {
		return f, false
	}
	if f.At, ok = timeQuery(c, "at"); !ok {
		return f, false
	}
	if f.Before, ok = timeQuery(c, "before"); !ok {
		return f, false
	}
	if f.After, ok = timeQuery(c, "after"); !ok {
		return f, false
	}
	if f.Buffered, ok = boolQuery(c, "buffered"); !ok {
		return f, false
	}
	return f, true
}
