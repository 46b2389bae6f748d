package handlers

import (
	"net/http"

	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/DeafHustle/vrs-live-final/internal/websocket"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	matcher *service.MatchingService
	hub     *websocket.Hub
}

func NewHealthHandler(matcher *service.MatchingService, hub *websocket.Hub) *HealthHandler {
	return &HealthHandler{matcher: matcher, hub: hub}
}

// HealthCheck 서버 상태와 실시간 매칭 현황
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	snapshot := h.matcher.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "vrs-live-final",
		"activeSessions": snapshot.ActiveSessions,
		"waiting":        snapshot.WaitingTotal,
		"connections":    h.hub.Count(),
	})
}
