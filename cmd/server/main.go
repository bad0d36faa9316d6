package main

import (
	"context"
	"log"

	"github.com/tapehead/tapehead/internal/capture"
	"github.com/tapehead/tapehead/internal/config"
	"github.com/tapehead/tapehead/internal/device"
	"github.com/tapehead/tapehead/internal/logger"
	"github.com/tapehead/tapehead/internal/server"
	"github.com/tapehead/tapehead/internal/session"
	"github.com/tapehead/tapehead/internal/workdir"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup structured logging
	lg := logger.SetupLogger(cfg)

	// Log startup information
	lg.Info("Starting tapehead server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	dir := cfg.RecordingsDir
	if dir == "" {
		root, err := workdir.Root()
		if err != nil {
			lg.Error("Failed to resolve recordings directory", "error", err)
			log.Fatalf("Fatal: %v", err)
		}
		dir = root
	}

	// Build the capture stack behind the session facade
	negotiator := device.NewNegotiator(device.SystemEnumerator{})
	controller := capture.NewController(capture.ControllerConfig{RecordingsDir: dir}, negotiator)
	sess := session.New(controller, negotiator)

	if err := sess.Run(context.Background()); err != nil {
		lg.Error("Failed to run recording session", "error", err)
		log.Fatalf("Fatal: %v", err)
	}

	srv := server.New(cfg, lg, sess)

	// Start server
	if err := server.Run(srv); err != nil {
		lg.Error("Failed to start server", "error", err)
		log.Fatalf("Fatal: %v", err)
	}
}
