package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/voxhall/tts-api/internal/config"
	"github.com/voxhall/tts-api/internal/console"
	"github.com/voxhall/tts-api/internal/engine"
	"github.com/voxhall/tts-api/internal/events"
	"github.com/voxhall/tts-api/internal/recovery"
	"github.com/voxhall/tts-api/internal/result"
	"github.com/voxhall/tts-api/internal/state"
	"github.com/voxhall/tts-api/internal/task"
)

// application holds the composed server and its long-lived dependencies.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	caps    config.Capabilities
	manager *task.Manager
	emitter *events.Emitter
	archive *state.Archive

	stopCleanup context.CancelFunc
}

// newApplication wires all components. Optional collaborators (snapshot
// archive, event publisher, audio converter) are resolved here, once, into
// the capability set the rest of the system consults.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	emitter := events.NewEmitter(logger)
	if cfg.Events.RedisAddr != "" {
		publisher, err := events.NewRedisPublisher(
			context.Background(),
			cfg.Events.RedisAddr,
			cfg.Events.RedisPassword,
			cfg.Events.RedisDB,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event publisher: %w", err)
		}
		emitter.Register(publisher)
		app.caps.EventPublishing = true
		logger.Info("event publishing enabled", "redis_addr", cfg.Events.RedisAddr)
	}
	app.emitter = emitter

	var archive *state.Archive
	if cfg.Persistence.Enabled && cfg.Persistence.ArchivePath != "" {
		var err error
		archive, err = state.OpenArchive(cfg.Persistence.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot archive: %w", err)
		}
		app.archive = archive
		app.caps.SnapshotArchive = true
		logger.Info("snapshot archive enabled", "path", cfg.Persistence.ArchivePath)
	}

	var converter engine.Converter
	if cfg.Engine.ConverterPath != "" {
		converter = engine.NewFFmpegConverter(cfg.Engine.ConverterPath)
		app.caps.AudioConversion = true
	}

	app.manager = task.NewManager(
		cfg.Task,
		app.caps,
		engine.NewHTTPEngine(cfg.Engine.URL, cfg.Task.TaskTimeout),
		converter,
		task.Dependencies{
			Console:    console.NewManager(logger),
			Recovery:   recovery.NewHandler(logger),
			Recoveries: recovery.NewTracker(),
			State:      state.NewManager(cfg.Persistence.Enabled, archive, logger),
			Results:    result.NewManager(logger),
			Emitter:    emitter,
			Logger:     logger,
		},
	)

	return app, nil
}

// run starts the worker pool and HTTP server, blocking until a shutdown
// signal arrives or the server fails.
func (app *application) run(shutdownCh <-chan os.Signal) error {
	if err := app.manager.Start(); err != nil {
		return fmt.Errorf("failed to start task manager: %w", err)
	}
	app.startCleanupLoop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case sig := <-shutdownCh:
		app.logger.Info("shutdown signal received", "signal", sig)
	case err := <-serverErr:
		app.logger.Error("server failed", "error", err)
		app.cleanup()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
	}

	app.cleanup()
	app.logger.Info("server shutdown completed")
	return nil
}

// startCleanupLoop sweeps aged-out terminal tasks on a fixed interval.
func (app *application) startCleanupLoop() {
	maxAge := app.config.Task.CleanupCompletedAfter
	if maxAge <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.stopCleanup = cancel

	interval := maxAge / 4
	if interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := app.manager.CleanupOld(maxAge); removed > 0 {
					app.logger.Info("periodic cleanup removed tasks", "count", removed)
				}
			}
		}
	}()
}

// cleanup releases long-lived resources in dependency order.
func (app *application) cleanup() {
	if app.stopCleanup != nil {
		app.stopCleanup()
	}
	if err := app.manager.Shutdown(); err != nil {
		app.logger.Warn("task manager shutdown incomplete", "error", err)
	}
	app.emitter.Close()
	if app.archive != nil {
		if err := app.archive.Close(); err != nil {
			app.logger.Warn("failed to close snapshot archive", "error", err)
		}
	}
}
