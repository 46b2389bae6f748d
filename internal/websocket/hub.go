package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"go.uber.org/zap"
)

const closePollInterval = 10 * time.Millisecond

// Hub 연결 ID 별 WebSocket 연결 관리. MatchingService 의 Notifier 구현.
type Hub struct {
	// connID -> *Client
	clients map[string]*Client
	mu      sync.RWMutex

	logger *zap.Logger
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register 클라이언트 등록. 등록 직후부터 Notify 를 받을 수 있다.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.connID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("conn", client.connID),
		zap.Int("totalClients", len(h.clients)))
}

// Unregister 클라이언트 해제 및 전송 채널 닫기
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.connID]; exists && current == client {
		delete(h.clients, client.connID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("conn", client.connID),
			zap.Int("totalClients", len(h.clients)))
	}
}

// Notify 특정 연결에 이벤트 전송. 없는 연결은 건너뛰고, 전송 버퍼가 가득 차면 버린다.
// 매칭 서비스가 락을 잡은 채로 호출하므로 절대 블록하지 않는다.
func (h *Hub) Notify(connID string, event models.OutboundEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[connID]
	if !exists {
		return
	}

	select {
	case client.send <- event:
	default:
		h.logger.Warn("Client send channel full, dropping event",
			zap.String("conn", connID),
			zap.String("type", event.Type))
	}
}

// Count 연결된 클라이언트 수
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll 모든 연결 종료 (서버 종료 시). 각 연결의 readPump 가 Disconnect 로 세션을 정산하고
// 등록 해제할 때까지 기다린다.
func (h *Hub) CloseAll(ctx context.Context) error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}

	ticker := time.NewTicker(closePollInterval)
	defer ticker.Stop()

	for h.Count() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d connections still open: %w", h.Count(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
