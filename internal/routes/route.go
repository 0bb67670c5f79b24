package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/attendance/internal/container"
	"github.com/joshua-takyi/attendance/internal/handlers"
	"github.com/joshua-takyi/attendance/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     container.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"service": "attendance-api",
		})
	})

	protected := v1.Group("")
	if container.StorageTimeout > 0 {
		protected.Use(middleware.Timeout(container.StorageTimeout))
	}
	protected.Use(middleware.AuthMiddleware(container.Tokens, container.Users, container.Logger))

	s := container.EventService

	eventRoutes := protected.Group("/events")
	{
		eventRoutes.GET("", handlers.ListEvents(s))
		eventRoutes.GET("/:id", handlers.GetEvent(s))
		eventRoutes.POST("/:id/registrants", handlers.AttachRegistrant(s))
		eventRoutes.PATCH("/:id/registrants/:user_id", handlers.UpdateRegistrant(s))
		eventRoutes.POST("/:id/checkin", handlers.CheckIn(s))
		eventRoutes.POST("/:id/sub-events/:sub_id/checkin", handlers.CheckInSubEvent(s))
	}

	credentialRoutes := protected.Group("/credentials")
	{
		credentialRoutes.GET("", handlers.GetCredentials(s))
		credentialRoutes.GET("/qr", handlers.GetCredentialQR(s))
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/events", handlers.CreateEvent(s))
		admin.PATCH("/events/:id", handlers.UpdateEvent(s))
		admin.DELETE("/events/:id", handlers.DeleteEvent(s))
		admin.POST("/events/:id/sub-events", handlers.AddSubEvent(s))
		admin.GET("/events/:id/registrants", handlers.ListRegistrants(s))
		admin.GET("/events/:id/registrants/:user_id", handlers.GetRegistrant(s))
		admin.DELETE("/events/:id/registrants/:user_id", handlers.RemoveRegistrant(s))
		admin.POST("/events/:id/rotate-secret", handlers.RotateEventSecret(s))
		admin.GET("/events/:id/attendance", handlers.AttendanceReport(s))
		admin.POST("/users/:user_id/enroll", handlers.EnrollUser(s))
	}

	return r
}
