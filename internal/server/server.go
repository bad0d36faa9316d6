package server

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/tapehead/tapehead/internal/config"
	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/session"
)

// Control is the slice of the recording session the HTTP API drives.
type Control interface {
	StartRecording()
	StopRecording()
	IsRecording() bool
	Multitrack() bool
	SetMultitrack(on bool)
	SetChannelEnabled(index int, enabled bool) error
	SetChannelGain(index int, gain float32) error
	Renegotiate()
	Devices(ctx context.Context) ([]device.Descriptor, error)
	Status() session.Status
}

// Server represents the HTTP control server
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	router  *gin.Engine
	control Control
}

// New creates a new Server instance
func New(cfg *config.Config, logger *slog.Logger, control Control) *Server {
	// Set Gin mode based on environment
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.Default()

	// The recorder serves direct clients, no reverse proxy in front
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Warn("Failed to clear trusted proxies", "error", err)
	}

	server := &Server{
		config:  cfg,
		logger:  logger,
		router:  router,
		control: control,
	}

	// Setup middleware and routes
	setupSecurityMiddleware(router, cfg, logger)
	server.setupRoutes()

	return server
}

// Run starts the HTTP server
func Run(s *Server) error {
	s.logger.Info("Server listening", "port", s.config.Port)
	return s.router.Run(":" + s.config.Port)
}

// Router returns the underlying engine so tests can drive requests directly.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/devices", s.handleDevices)
		api.POST("/devices/rescan", s.handleRescan)
		api.POST("/recordings/start", s.handleStartRecording)
		api.POST("/recordings/stop", s.handleStopRecording)
		api.PATCH("/channels/:index", s.handlePatchChannel)
	}
}
