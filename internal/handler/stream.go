package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"xboard/internal/session"
)

// StreamHandler pushes each applied snapshot to the UI over a websocket so
// the browser does not have to poll the local API between cycles.
type StreamHandler struct {
	Session *session.Session
	Logger  *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/stream", h.stream)
}

func (h *StreamHandler) stream(c *gin.Context) {
	if !h.Session.Active() {
		Error(c, http.StatusUnauthorized, "not logged in")
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.Logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := c.Request.Context()
	updates, cancel := h.Session.Subscribe()
	defer cancel()

	// Seed the client with the current view before the next cycle lands.
	if err := wsjson.Write(ctx, conn, h.Session.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, snap); err != nil {
				return
			}
		}
	}
}
