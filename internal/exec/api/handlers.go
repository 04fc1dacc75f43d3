package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/execman/execman/internal/common/errors"
	"github.com/execman/execman/internal/common/logger"
	"github.com/execman/execman/internal/exec/display"
	"github.com/execman/execman/internal/exec/history"
	"github.com/execman/execman/internal/exec/lifecycle"
)

// Handler contains HTTP handlers for the command API
type Handler struct {
	ctx      context.Context // daemon lifetime, commands are spawned under it
	manager  *lifecycle.Manager
	displays *display.Registry
	hist     history.Store // nil when history is disabled
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(ctx context.Context, mgr *lifecycle.Manager, displays *display.Registry, hist history.Store, log *logger.Logger) *Handler {
	return &Handler{
		ctx:      ctx,
		manager:  mgr,
		displays: displays,
		hist:     hist,
		logger:   log,
	}
}

// Command endpoints

// RunCommand spawns a new command
// POST /api/v1/commands
func (h *Handler) RunCommand(c *gin.Context) {
	var req RunCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	useShell := true
	if req.Shell != nil {
		useShell = *req.Shell
	}

	// Spawned commands outlive the HTTP request; the request context is
	// cancelled as soon as the response is written and would kill them.
	snap, err := h.manager.Run(h.ctx, lifecycle.StartRequest{
		CommandLine:    req.Command,
		Name:           req.Name,
		UseShell:       useShell,
		Detached:       req.Detached,
		Stdin:          req.Stdin,
		Dir:            req.Dir,
		Env:            req.Env,
		Target:         req.Target,
		ToTarget:       req.ToTarget,
		Pipe:           req.Pipe,
		Event:          req.Event,
		LineNumbers:    req.LineNumbers,
		ShowReturnCode: req.ShowReturnCode,
		Color:          req.Color,
	})
	if err != nil {
		h.logger.Error("failed to run command", zap.String("command", req.Command), zap.Error(err))
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusCreated, commandToResponse(snap))
}

// GetCommand retrieves a command by numeric id or name
// GET /api/v1/commands/:id
func (h *Handler) GetCommand(c *gin.Context) {
	token := c.Param("id")

	snap, ok := h.manager.Inspect(token)
	if !ok {
		appErr := errors.NotFound("command", token)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, commandToResponse(snap))
}

// ListCommands returns all live commands
// GET /api/v1/commands
func (h *Handler) ListCommands(c *gin.Context) {
	snaps := h.manager.InspectAll()

	resp := CommandsListResponse{
		Commands: make([]*CommandResponse, len(snaps)),
		Total:    len(snaps),
	}
	for i, s := range snaps {
		resp.Commands[i] = commandToResponse(s)
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteCommand removes a command by id or name, killing it if still
// running
// DELETE /api/v1/commands/:id
func (h *Handler) DeleteCommand(c *gin.Context) {
	token := c.Param("id")

	if err := h.manager.Remove(token); err != nil {
		appErr := errors.NotFound("command", token)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteFinished removes every finished command
// DELETE /api/v1/commands
func (h *Handler) DeleteFinished(c *gin.Context) {
	removed := h.manager.RemoveFinished()
	c.JSON(http.StatusOK, RemovedResponse{Removed: removed})
}

// SignalCommand sends a signal to a running command
// POST /api/v1/commands/:id/signal
func (h *Handler) SignalCommand(c *gin.Context) {
	token := c.Param("id")

	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	sig, err := lifecycle.ParseSignal(req.Signal)
	if err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.manager.Signal(token, sig); err != nil {
		h.logger.Error("failed to signal command", zap.String("token", token), zap.Error(err))
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.Status(http.StatusNoContent)
}

// SendInput writes to a running command's stdin
// POST /api/v1/commands/:id/input
func (h *Handler) SendInput(c *gin.Context) {
	token := c.Param("id")

	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.manager.SendInput(token, []byte(req.Data), req.Close); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.Status(http.StatusNoContent)
}

// Surface endpoints

// ListSurfaces returns all display surfaces
// GET /api/v1/surfaces
func (h *Handler) ListSurfaces(c *gin.Context) {
	surfaces := h.displays.List()

	resp := SurfacesListResponse{
		Surfaces: make([]*SurfaceResponse, len(surfaces)),
		Total:    len(surfaces),
	}
	for i, s := range surfaces {
		sr := &SurfaceResponse{Name: s.FullName()}
		if buf, ok := s.(*display.BufferSurface); ok {
			sr.Lines = buf.Count()
		}
		resp.Surfaces[i] = sr
	}

	c.JSON(http.StatusOK, resp)
}

// GetSurface returns the last lines of a surface
// GET /api/v1/surfaces/:name
func (h *Handler) GetSurface(c *gin.Context) {
	name := c.Param("name")

	surface := h.displays.Find(name)
	if surface == nil {
		appErr := errors.NotFound("surface", name)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	buf, ok := surface.(*display.BufferSurface)
	if !ok {
		appErr := errors.BadRequest("surface does not buffer lines")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	last, err := strconv.Atoi(c.DefaultQuery("last", "100"))
	if err != nil || last < 1 {
		last = 100
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  buf.FullName(),
		"lines": buf.GetLast(last),
		"total": buf.Count(),
	})
}

// History endpoints

// ListHistory returns the most recent finalized commands
// GET /api/v1/history
func (h *Handler) ListHistory(c *gin.Context) {
	if h.hist == nil {
		appErr := errors.ServiceUnavailable("history")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}

	entries, err := h.hist.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", zap.Error(err))
		appErr := errors.InternalError("failed to list history", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}

// GetHistoryEntry returns one history entry
// GET /api/v1/history/:entryId
func (h *Handler) GetHistoryEntry(c *gin.Context) {
	if h.hist == nil {
		appErr := errors.ServiceUnavailable("history")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	entryID := c.Param("entryId")
	entry, err := h.hist.Get(c.Request.Context(), entryID)
	if err != nil {
		appErr := errors.NotFound("history entry", entryID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// HealthCheck reports service liveness
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"commands": len(h.manager.InspectAll()),
	})
}

func commandToResponse(s *lifecycle.Snapshot) *CommandResponse {
	resp := &CommandResponse{
		ID:          s.ID,
		Name:        s.Name,
		Command:     s.CommandLine,
		PID:         s.PID,
		Detached:    s.Detached,
		Running:     s.Running,
		StartTime:   s.StartTime,
		ReturnCode:  s.ReturnCode,
		Route:       s.Route,
		Target:      s.Target,
		Pipe:        s.Pipe,
		Event:       s.Event,
		Color:       s.Color,
		StdoutBytes: s.StdoutBytes,
		StderrBytes: s.StderrBytes,
	}
	if !s.EndTime.IsZero() {
		end := s.EndTime
		resp.EndTime = &end
	}
	return resp
}
