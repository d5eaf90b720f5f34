package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xboard/internal/models"
	"xboard/internal/session"
)

type DashboardHandler struct {
	Session *session.Session
}

func (h *DashboardHandler) Register(r *gin.Engine) {
	r.GET("/api/dashboard", h.dashboard)
	r.POST("/api/refresh", h.refresh)
}

// dashboardView is the snapshot plus the derived fields the UI renders
// directly.
type dashboardView struct {
	models.Snapshot
	AverageOrderValue string `json:"average_order_value"`
	Loading           bool   `json:"loading"`
	Refreshing        bool   `json:"refreshing"`
}

func (h *DashboardHandler) view() dashboardView {
	snap := h.Session.Snapshot()
	aov := "0"
	if snap.Overview != nil {
		aov = snap.Overview.AverageOrderValue().String()
	}
	return dashboardView{
		Snapshot:          snap,
		AverageOrderValue: aov,
		Loading:           h.Session.Loading(),
		Refreshing:        h.Session.Refreshing(),
	}
}

func (h *DashboardHandler) dashboard(c *gin.Context) {
	if !h.Session.Active() {
		Error(c, http.StatusUnauthorized, "not logged in")
		return
	}
	Ok(c, h.view())
}

func (h *DashboardHandler) refresh(c *gin.Context) {
	if !h.Session.Active() {
		Error(c, http.StatusUnauthorized, "not logged in")
		return
	}
	h.Session.ManualRefresh(c.Request.Context())
	if !h.Session.Active() {
		// The sync or refetch hit a dead credential.
		Error(c, http.StatusUnauthorized, "session expired")
		return
	}
	Ok(c, h.view())
}
