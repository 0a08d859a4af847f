// Package main is the entry point for the TTS task server. It wires
// configuration, logging, the task manager with its worker pool, optional
// persistence and event publishing, and the HTTP API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxhall/tts-api/internal/config"
	"github.com/voxhall/tts-api/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	app, err := initializeApp(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	if err := app.run(shutdownCh); err != nil {
		app.logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// initializeApp loads configuration, sets up logging and builds the
// application with all its dependencies.
func initializeApp(configPath string) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)
	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"workers", cfg.Task.MaxConcurrentTasks,
		"queue_size", cfg.Task.MaxQueueSize)

	return newApplication(cfg, appLogger)
}
