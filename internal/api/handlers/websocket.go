package handlers

import (
	"github.com/DeafHustle/vrs-live-final/internal/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub     *websocket.Hub
	matcher websocket.Matchmaker
	opts    websocket.Options
	logger  *zap.Logger
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub, matcher websocket.Matchmaker, opts websocket.Options, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		matcher: matcher,
		opts:    opts,
		logger:  logger,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트. 참가자 정보는 join-room 이벤트로 받는다.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWs(h.hub, h.matcher, h.opts, c.Writer, c.Request, h.logger)
}
