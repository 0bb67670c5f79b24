package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/joshua-takyi/attendance/internal/config"
	"github.com/joshua-takyi/attendance/internal/connect"
	"github.com/joshua-takyi/attendance/internal/container"
	"github.com/joshua-takyi/attendance/internal/credential"
	"github.com/joshua-takyi/attendance/internal/helpers"
	"github.com/joshua-takyi/attendance/internal/models"
	"github.com/joshua-takyi/attendance/internal/routes"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Starting attendance API server", "environment", cfg.Environment, "store", cfg.StoreDriver)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	supaClient, err := connect.InitSupabase(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	if err != nil {
		logger.Error("Failed to connect to Supabase", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to Supabase successfully")

	var (
		mongoClient *mongo.Client
		eventRepo   models.EventRepo
	)
	switch cfg.StoreDriver {
	case config.StoreMongo:
		mongoClient, err = connect.MongoDBConnect(context.Background(), cfg.MongoDBURI, cfg.MongoDBPassword, cfg.StorageTimeout)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to MongoDB successfully", "database", cfg.MongoDBName)
		eventRepo = models.MongodbNewRepo(mongoClient, cfg.MongoDBName)
	default:
		logger.Warn("Using in-memory event store; data is lost on restart")
		eventRepo = models.NewMemoryRepo()
	}

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), cfg.StorageTimeout)
	err = eventRepo.EnsureIndexes(indexCtx)
	cancelIndex()
	if err != nil {
		logger.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	issuer, err := credential.NewIssuer([]byte(cfg.CredentialSecret))
	if err != nil {
		logger.Error("Invalid credential secret", "error", err)
		os.Exit(1)
	}
	logger.Info("Credential issuer ready", "fingerprint", issuer.Fingerprint())

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = helpers.SupabaseJWKSURL(cfg.SupabaseURL)
	}
	validator, err := helpers.NewTokenValidator(context.Background(), jwksURL, cfg.JWTSecret, logger)
	if err != nil {
		logger.Error("Failed to set up token validation", "error", err)
		os.Exit(1)
	}

	appContainer := container.NewContainer(
		logger,
		cfg.AllowedOrigins,
		cfg.StorageTimeout,
		eventRepo,
		models.SupabaseNewRepo(supaClient),
		validator,
		issuer,
	)

	router := routes.SetupRoutes(appContainer)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	validator.Close()
	if err := connect.MongoDBDisconnect(mongoClient); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
