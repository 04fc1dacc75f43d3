package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/exec/display"
	"github.com/execman/execman/internal/exec/history"
	"github.com/execman/execman/internal/exec/lifecycle"
)

// SetupRoutes configures the command API routes. ctx is the daemon
// lifetime context commands are spawned under.
func SetupRoutes(ctx context.Context, router *gin.RouterGroup, mgr *lifecycle.Manager, displays *display.Registry, hist history.Store, log *logger.Logger) {
	handler := NewHandler(ctx, mgr, displays, hist, log)

	// Command routes
	commands := router.Group("/commands")
	{
		commands.POST("", handler.RunCommand)
		commands.GET("", handler.ListCommands)
		commands.DELETE("", handler.DeleteFinished)
		commands.GET("/:id", handler.GetCommand)
		commands.DELETE("/:id", handler.DeleteCommand)
		commands.POST("/:id/signal", handler.SignalCommand)
		commands.POST("/:id/input", handler.SendInput)
	}

	// Surface routes
	surfaces := router.Group("/surfaces")
	{
		surfaces.GET("", handler.ListSurfaces)
		surfaces.GET("/:name", handler.GetSurface)
		surfaces.GET("/:name/stream", handler.StreamSurface)
	}

	// History routes
	historyGroup := router.Group("/history")
	{
		historyGroup.GET("", handler.ListHistory)
		historyGroup.GET("/:entryId", handler.GetHistoryEntry)
	}
}
