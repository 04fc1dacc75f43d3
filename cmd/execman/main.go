package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/execman/execman/internal/common/config"
	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/events/bus"
	"github.com/execman/execman/internal/exec/api"
	"github.com/execman/execman/internal/exec/color"
	"github.com/execman/execman/internal/exec/display"
	"github.com/execman/execman/internal/exec/history"
	"github.com/execman/execman/internal/exec/lifecycle"
	"github.com/execman/execman/internal/exec/registry"
	"github.com/execman/execman/internal/exec/router"
	"github.com/execman/execman/internal/exec/runner"
)

const coreSurfaceName = "core"

const surfaceLines = 10000

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting execman service...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect event bus (in-memory unless a NATS URL is configured)
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS event bus")
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// 5. Initialize color decoder
	decoder := color.NewDecoder(color.NewAnsiModifier())
	defaultColor, err := color.ParsePolicy(cfg.Exec.DefaultColor)
	if err != nil {
		log.Fatal("Invalid default color policy", zap.Error(err))
	}

	// 6. Initialize command registry
	reg := registry.NewRegistry(log)

	// 7. Initialize display surfaces. Lines re-injected into a surface
	// run as new shell commands displayed back on the same surface.
	var mgr *lifecycle.Manager
	reinject := func(surfaceName, line string) {
		if _, err := mgr.Run(ctx, lifecycle.StartRequest{
			CommandLine:    line,
			UseShell:       true,
			Target:         surfaceName,
			ShowReturnCode: true,
		}); err != nil {
			log.Warn("re-injected command failed to start",
				zap.String("surface", surfaceName),
				zap.String("command", line),
				zap.Error(err))
		}
	}
	core := display.NewBufferSurface(coreSurfaceName, surfaceLines, reinject)
	displays := display.NewRegistry(core)

	// 8. Initialize output router and process runner
	rt := router.New(decoder, displays, log)
	run := runner.New(cfg.Exec.Shell, log)

	// 9. Initialize lifecycle manager
	mgr = lifecycle.NewManager(reg, displays, rt, run, decoder, eventBus, log)
	mgr.SetPurgeDelay(func() int { return cfg.Exec.PurgeDelay })
	mgr.SetDefaultColor(defaultColor)

	// 10. Initialize history store when enabled
	var hist history.Store
	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			log.Fatal("Failed to open history store", zap.Error(err))
		}
		defer store.Close()
		hist = store
		mgr.SetHistory(store, cfg.History.MaxOutputBytes)
		log.Info("Command history enabled", zap.String("path", cfg.History.Path))
	}

	// 11. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(api.Recovery(log))
	ginRouter.Use(api.RequestLogger(log))
	ginRouter.Use(api.CORS())

	// 12. Register API routes
	v1 := ginRouter.Group("/api/v1")
	api.SetupRoutes(ctx, v1, mgr, displays, hist, log)

	// Health check endpoint at root level
	handler := api.NewHandler(ctx, mgr, displays, hist, log)
	ginRouter.GET("/health", handler.HealthCheck)

	// 13. Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      ginRouter,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 14. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 15. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down execman service...")

	// 16. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Remove every record, killing still-running commands
	mgr.Shutdown()

	log.Info("execman service stopped")
}
