package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/credential"
	"github.com/joshua-takyi/attendance/internal/models"
	"github.com/joshua-takyi/attendance/internal/services"
)

const maxQRSize = 1024

type checkInRequest struct {
	// UserID defaults to the caller; any other value is rejected by the service.
	UserID     *uuid.UUID `json:"user_id"`
	Credential string     `json:"credential"`
}

func bindCheckIn(c *gin.Context, self uuid.UUID) (uuid.UUID, string, bool) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return uuid.Nil, "", false
	}
	if req.Credential == "" {
		badRequest(c, "credential", "required")
		return uuid.Nil, "", false
	}
	target := self
	if req.UserID != nil {
		target = *req.UserID
	}
	return target, req.Credential, true
}

func CheckIn(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		target, token, ok := bindCheckIn(c, id.UserID)
		if !ok {
			return
		}

		view, err := s.CheckInWithCredential(c.Request.Context(), eventID, id, target, token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(view, "Checked in successfully"))
	}
}

func CheckInSubEvent(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		subID, ok := objectIDParam(c, "sub_id")
		if !ok {
			return
		}
		target, token, ok := bindCheckIn(c, id.UserID)
		if !ok {
			return
		}

		if err := s.CheckInSubEvent(c.Request.Context(), eventID, subID, id, target, token); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Checked in successfully"))
	}
}

func GetCredentials(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		bundle, err := s.IssueCredentials(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(bundle, ""))
	}
}

func GetCredentialQR(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		size := credential.DefaultQRSize
		if raw := c.Query("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 64 || n > maxQRSize {
				badRequest(c, "size", "must be between 64 and 1024")
				return
			}
			size = n
		}

		png, err := s.CredentialQR(c.Request.Context(), id, size)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", png)
	}
}
