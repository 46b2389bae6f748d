package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/DeafHustle/vrs-live-final/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (SDP/ICE 포함)
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Matchmaker 클라이언트가 사용하는 매칭 서비스 기능
type Matchmaker interface {
	Join(ctx context.Context, req service.JoinRequest) (*service.JoinOutcome, error)
	End(connID string) bool
	LeaveQueue(connID string) bool
	Disconnect(connID string)
	PeerOf(connID string) (string, bool)
	Participant(connID string) (models.Participant, bool)
}

// Options 연결 설정
type Options struct {
	JoinRateCapacity int
	JoinRateRefill   float64
	AllowedOrigins   []string
}

// Client WebSocket 클라이언트 (연결 하나 = 참가자 하나)
type Client struct {
	hub     *Hub
	matcher Matchmaker
	conn    *websocket.Conn
	send    chan models.OutboundEvent
	connID  string
	joins   *ratelimit.TokenBucket
	logger  *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, matcher Matchmaker, conn *websocket.Conn, opts Options, logger *zap.Logger) *Client {
	connID := uuid.New().String()
	return &Client{
		hub:     hub,
		matcher: matcher,
		conn:    conn,
		send:    make(chan models.OutboundEvent, sendBufferSize),
		connID:  connID,
		joins:   ratelimit.NewTokenBucket(int64(opts.JoinRateCapacity), opts.JoinRateRefill),
		logger:  logger.With(zap.String("conn", connID)),
	}
}

// readPump 클라이언트 이벤트 수신 및 처리. 종료 시 연결 끊김으로 처리한다.
func (c *Client) readPump() {
	defer func() {
		c.matcher.Disconnect(c.connID)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(data)
	}
}

// handleMessage 이벤트 타입별 분기
func (c *Client) handleMessage(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError(service.CodeInvalidRequest, "malformed message")
		return
	}

	switch {
	case env.Type == models.EventJoinRoom:
		c.handleJoin(env.Payload)

	case env.Type == models.EventEndSession:
		// 진행 중인 세션이 없으면 조용히 무시
		c.matcher.End(c.connID)

	case env.Type == models.EventLeaveQueue:
		c.matcher.LeaveQueue(c.connID)

	case models.IsRelayEvent(env.Type):
		c.relay(env)

	default:
		c.sendError(service.CodeInvalidRequest, "unknown event type: "+env.Type)
	}
}

func (c *Client) handleJoin(payload json.RawMessage) {
	if !c.joins.Allow() {
		c.sendError(service.CodeRateLimited, "too many join attempts")
		return
	}

	var req models.JoinRoomRequest
	if len(payload) == 0 {
		c.sendError(service.CodeInvalidRequest, "join-room requires a payload")
		return
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(service.CodeInvalidRequest, "malformed join-room payload")
		return
	}
	if err := req.Normalize(); err != nil {
		c.sendError(service.CodeInvalidRequest, err.Error())
		return
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		c.sendError(service.CodeInvalidRequest, "unknown role: "+req.Role)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	_, err := c.matcher.Join(ctx, service.JoinRequest{
		ConnID:      c.connID,
		RoomID:      req.Room,
		Role:        role,
		Identity:    req.Identity,
		DisplayName: req.DisplayName,
		Token:       req.Token,
	})
	if err != nil {
		code := service.ErrorCode(err)
		if code == service.CodeInternal {
			c.logger.Error("Join failed", zap.Error(err))
		}
		c.sendError(code, joinErrorMessage(err))
	}
}

// joinErrorMessage 클라이언트에 노출할 메시지
func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrUnknownRoom):
		return "room does not exist"
	case errors.Is(err, service.ErrAlreadyWaiting):
		return "already waiting for a match"
	case errors.Is(err, service.ErrAlreadyInSession):
		return "already in a session"
	case errors.Is(err, service.ErrNotAuthorizedProvider):
		return "interpreter verification required"
	case errors.Is(err, service.ErrRoleMismatch):
		return "connection already joined with a different role"
	default:
		return err.Error()
	}
}

// relay 시그널링 이벤트를 현재 세션 상대에게만 전달
func (c *Client) relay(env models.Envelope) {
	peer, ok := c.matcher.PeerOf(c.connID)
	if !ok {
		c.logger.Debug("Dropping relay outside session", zap.String("type", env.Type))
		return
	}
	if env.To != "" && env.To != peer {
		c.logger.Warn("Dropping relay to non-peer", zap.String("type", env.Type), zap.String("to", env.To))
		return
	}

	switch env.Type {
	case models.EventScreenShareStarted, models.EventScreenShareStopped:
		c.hub.Notify(peer, models.OutboundEvent{
			Type: models.EventPartnerScreenSharing,
			Payload: models.ScreenSharingPayload{
				From:    c.connID,
				Sharing: env.Type == models.EventScreenShareStarted,
			},
		})

	case models.EventChatMessage:
		name := "User"
		if p, ok := c.matcher.Participant(c.connID); ok && p.DisplayName != "" {
			name = p.DisplayName
		}
		c.hub.Notify(peer, models.OutboundEvent{
			Type: env.Type,
			Payload: models.RelayPayload{
				From:      c.connID,
				FromName:  name,
				Data:      env.Payload,
				Timestamp: time.Now().UnixMilli(),
			},
		})

	default:
		c.hub.Notify(peer, models.OutboundEvent{
			Type:    env.Type,
			Payload: models.RelayPayload{From: c.connID, Data: env.Payload},
		})
	}
}

func (c *Client) sendError(code, message string) {
	c.hub.Notify(c.connID, models.OutboundEvent{
		Type:    models.EventError,
		Payload: models.ErrorPayload{Code: code, Message: message},
	})
}

// writePump Hub 로부터 이벤트를 받아 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				c.logger.Error("Failed to marshal event", zap.String("type", event.Type), zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// newUpgrader 허용 origin 목록으로 upgrader 생성 ("*" 는 전체 허용)
func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
func ServeWs(hub *Hub, matcher Matchmaker, opts Options, w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	upgrader := newUpgrader(opts.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(hub, matcher, conn, opts, logger)
	hub.Register(client)
	hub.Notify(client.connID, models.OutboundEvent{
		Type:    models.EventConnected,
		Payload: models.ConnectedPayload{ConnID: client.connID},
	})

	// 고루틴 시작
	go client.writePump()
	go client.readPump()
}
