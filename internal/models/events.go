package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 클라이언트 -> 서버 이벤트
const (
	EventJoinRoom           = "join-room"
	EventEndSession         = "end-session"
	EventLeaveQueue         = "leave-queue"
	EventWebRTCOffer        = "webrtc-offer"
	EventWebRTCAnswer       = "webrtc-answer"
	EventWebRTCICECandidate = "webrtc-ice-candidate"
	EventChatMessage        = "chat-message"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
)

// 서버 -> 클라이언트 이벤트
const (
	EventConnected     = "connected"
	EventWaiting       = "waiting"
	EventMatchFound    = "match-found"
	EventBillingResult = "billing-result"
	EventCallEnded     = "call-ended"
	EventPartnerEnded  = "partner-ended-call"
	EventLeftQueue     = "left-queue"
	EventError         = "error"

	EventPartnerScreenSharing = "partner-screen-sharing"
)

// IsRelayEvent 상대방에게 그대로 전달하는 시그널링 이벤트인지 여부
func IsRelayEvent(t string) bool {
	switch t {
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICECandidate,
		EventChatMessage, EventScreenShareStarted, EventScreenShareStopped:
		return true
	}
	return false
}

// Envelope 수신 메시지. Payload 는 Type 에 따라 해석한다.
// 시그널링 이벤트의 To 는 생략 가능하며, 지정된 경우 현재 세션 상대와 같아야 한다.
type Envelope struct {
	Type    string          `json:"type"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var ErrMissingField = errors.New("missing required field")

// JoinRoomRequest join-room 페이로드
type JoinRoomRequest struct {
	Room        string `json:"room"`
	Role        string `json:"role"`
	Identity    string `json:"identity"`
	Wallet      string `json:"wallet,omitempty"`
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName,omitempty"`
	Token       string `json:"token,omitempty"`
}

// Normalize 구버전 필드(wallet, userName)를 흡수하고 필수 필드를 검증한다.
func (r *JoinRoomRequest) Normalize() error {
	if r.Identity == "" {
		r.Identity = r.Wallet
	}
	if r.DisplayName == "" {
		r.DisplayName = r.UserName
	}
	r.Room = strings.TrimSpace(r.Room)
	r.Identity = NormalizeIdentity(r.Identity)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if r.DisplayName == "" {
		r.DisplayName = "Anonymous"
	}

	switch {
	case r.Room == "":
		return fmt.Errorf("%w: room", ErrMissingField)
	case r.Role == "":
		return fmt.Errorf("%w: role", ErrMissingField)
	case r.Identity == "":
		return fmt.Errorf("%w: identity", ErrMissingField)
	}
	return nil
}

// OutboundEvent 클라이언트로 보내는 메시지
type OutboundEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type ConnectedPayload struct {
	ConnID string `json:"connId"`
}

type WaitingPayload struct {
	Room            string `json:"room"`
	Role            Role   `json:"role"`
	Position        int    `json:"position"`
	OppositeWaiting int    `json:"oppositeWaiting"`
	AutoMatch       bool   `json:"autoMatch"`
}

type MatchFoundPayload struct {
	SessionID    string `json:"sessionId"`
	Room         string `json:"room"`
	PeerID       string `json:"peerId"`
	PeerIdentity string `json:"peerIdentity"`
	PeerName     string `json:"peerName"`
	PeerRole     Role   `json:"peerRole"`
	Rate         int64  `json:"rate"`
}

type BillingResultPayload struct {
	SessionID           string `json:"sessionId"`
	RoomName            string `json:"roomName"`
	ElapsedMinutes      int64  `json:"elapsedMinutes"`
	Rate                int64  `json:"rate"`
	Total               int64  `json:"total"`
	InterpreterShare    int64  `json:"interpreterShare"`
	PlatformShare       int64  `json:"platformShare"`
	RequesterShare      int64  `json:"requesterShare"`
	InterpreterIdentity string `json:"interpreterIdentity"`
	RequesterIdentity   string `json:"requesterIdentity"`
}

type CallEndedPayload struct {
	SessionID string    `json:"sessionId"`
	Reason    EndReason `json:"reason"`
}

// RelayPayload 상대방에게 전달되는 시그널링 메시지.
// chat-message 에는 보낸 사람 이름과 서버 시각(ms)이 붙는다.
type RelayPayload struct {
	From      string          `json:"from"`
	FromName  string          `json:"fromName,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// ScreenSharingPayload screen-share-started/stopped 를 상대에게 알리는 이벤트
type ScreenSharingPayload struct {
	From    string `json:"from"`
	Sharing bool   `json:"sharing"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
