package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/attendance/internal/models"
	"github.com/joshua-takyi/attendance/internal/services"
)

func CreateEvent(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.EventInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "body", err.Error())
			return
		}

		event, err := s.CreateEvent(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(event, "Event created successfully"))
	}
}

func ListEvents(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		filter, ok := eventFilter(c)
		if !ok {
			return
		}

		events, err := s.ListEvents(c.Request.Context(), filter, id.IsAdmin())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(events, len(events)))
	}
}

func GetEvent(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			return
		}
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}

		event, err := s.GetEvent(c.Request.Context(), eventID, id.IsAdmin())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, ""))
	}
}

func UpdateEvent(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var patch models.EventPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			badRequest(c, "body", err.Error())
			return
		}

		event, err := s.UpdateEvent(c.Request.Context(), eventID, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, "Event updated successfully"))
	}
}

func DeleteEvent(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		if err := s.DeleteEvent(c.Request.Context(), eventID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Event deleted successfully"))
	}
}

func AddSubEvent(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var input models.SubEventInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, "body", err.Error())
			return
		}

		sub, err := s.AddSubEvent(c.Request.Context(), eventID, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(sub, "Sub-event added successfully"))
	}
}

// RotateEventSecret revokes all credentials for the event. Pass
// reset_check_ins=true to clear attendance as well.
func RotateEventSecret(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		reset, ok := boolQuery(c, "reset_check_ins")
		if !ok {
			return
		}

		report, err := s.RotateEventSecret(c.Request.Context(), eventID, reset)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(report, "Event secret rotated"))
	}
}

func AttendanceReport(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		report, err := s.AttendanceReport(c.Request.Context(), eventID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(report, ""))
	}
}

func EnrollUser(s *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c, "user_id")
		if !ok {
			return
		}
		n, err := s.EnrollUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"enrolled": n}, "User enrolled in open events"))
	}
}
