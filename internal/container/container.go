package container

import (
	"log/slog"
	"time"

	"github.com/joshua-takyi/attendance/internal/credential"
	"github.com/joshua-takyi/attendance/internal/middleware"
	"github.com/joshua-takyi/attendance/internal/models"
	"github.com/joshua-takyi/attendance/internal/services"
)

// Container holds all application dependencies
type Container struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	StorageTimeout time.Duration
	EventRepo      models.EventRepo
	Users          models.UserDirectory
	Tokens         middleware.TokenVerifier
	Issuer         *credential.Issuer
	EventService   *services.EventService
}

// NewContainer wires the services over the given stores. main picks the
// stores from configuration; tests pass in-memory ones.
func NewContainer(
	logger *slog.Logger,
	allowedOrigins []string,
	storageTimeout time.Duration,
	eventRepo models.EventRepo,
	users models.UserDirectory,
	tokens middleware.TokenVerifier,
	issuer *credential.Issuer,
	opts ...services.Option,
) *Container {
	return &Container{
		Logger:         logger,
		AllowedOrigins: allowedOrigins,
		StorageTimeout: storageTimeout,
		EventRepo:      eventRepo,
		Users:          users,
		Tokens:         tokens,
		Issuer:         issuer,
		EventService:   services.NewEventService(eventRepo, users, issuer, logger, opts...),
	}
}
