package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xboard/internal/session"
)

type HealthHandler struct {
	Session *session.Session
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.Session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "session_missing"})
		return
	}
	status := "logged_out"
	if h.Session.Active() {
		status = "ready"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
