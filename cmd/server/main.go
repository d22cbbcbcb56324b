// Package main is the entry point for the user directory server.
//
// main only reads configuration, builds the logger and hands both to the
// server package; everything else lives under internal/.
//
//	@title			User Directory API
//	@version		1.0
//	@description	User account CRUD and password sign-in.
//	@BasePath		/
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/user-directory/internal/config"
	"github.com/sakif/user-directory/internal/logging"
	"github.com/sakif/user-directory/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()
	cfg.Version = version

	logger := logging.New(logging.Config{
		Service: "user-directory",
		Version: cfg.Version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
