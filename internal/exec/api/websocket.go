package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/execman/execman/internal/exec/display"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamSurface streams a surface's lines via WebSocket
// GET /api/v1/surfaces/:name/stream
func (h *Handler) StreamSurface(c *gin.Context) {
	name := c.Param("name")

	surface := h.displays.Find(name)
	if surface == nil {
		c.Status(http.StatusNotFound)
		return
	}
	buf, ok := surface.(*display.BufferSurface)
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("surface stream connected", zap.String("surface", name))

	// Check if client wants history first
	sendHistory := c.DefaultQuery("history", "false") == "true"
	historyCount, _ := strconv.Atoi(c.DefaultQuery("history_count", "100"))

	if sendHistory {
		for _, line := range buf.GetLast(historyCount) {
			data, err := json.Marshal(line)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write error (history)", zap.Error(err))
				return
			}
		}
	}

	// Subscribe to real-time lines
	sub := buf.Subscribe()
	defer buf.Unsubscribe(sub)

	// Handle WebSocket close
	closeCh := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(closeCh)
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(line)
			if err != nil {
				h.logger.Error("failed to marshal surface line", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		case <-closeCh:
			h.logger.Info("surface stream closed by client", zap.String("surface", name))
			return
		}
	}
}
