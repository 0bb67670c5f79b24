package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/models"
	"github.com/joshua-takyi/attendance/internal/services"
)

type attachRequest struct {
	// UserID defaults to the caller.
	UserID           *uuid.UUID             `json:"user_id"`
	AdditionalFields map[string]interface{} `json:"additional_fields"`
}

func AttachRegistrant(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var req attachRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body", err.Error())
			return
		}
		target := id.UserID
		if req.UserID != nil {
			target = *req.UserID
		}

		r, err := s.AttachRegistrant(c.Request.Context(), eventID, id, target, req.AdditionalFields)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(r, "Registered successfully"))
	}
}

func UpdateRegistrant(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		userID, ok := userIDParam(c, "user_id")
		if !ok {
			return
		}
		var update models.RegistrantUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			badRequest(c, "body", err.Error())
			return
		}

		r, err := s.UpdateRegistrantFields(c.Request.Context(), eventID, id, userID, update)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(r, "Registration updated"))
	}
}

func ListRegistrants(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		views, err := s.ListRegistrants(c.Request.Context(), eventID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(views, len(views)))
	}
}

func GetRegistrant(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		userID, ok := userIDParam(c, "user_id")
		if !ok {
			return
		}
		view, err := s.GetRegistrant(c.Request.Context(), eventID, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(view, ""))
	}
}

func RemoveRegistrant(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		userID, ok := userIDParam(c, "user_id")
		if !ok {
			return
		}
		if err := s.RemoveRegistrant(c.Request.Context(), eventID, userID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Registrant removed"))
	}
}
