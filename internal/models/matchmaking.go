package models

import (
	"strings"
	"time"
)

// Role 참가자 역할
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

// ParseRole 역할 문자열 파싱. 기존 클라이언트의 user/interpreter 표기도 허용한다.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requester", "user":
		return RoleRequester, true
	case "provider", "interpreter":
		return RoleProvider, true
	default:
		return "", false
	}
}

// Opposite 매칭 상대 역할
func (r Role) Opposite() Role {
	if r == RoleProvider {
		return RoleRequester
	}
	return RoleProvider
}

type ParticipantState string

const (
	ParticipantIdle      ParticipantState = "idle"
	ParticipantWaiting   ParticipantState = "waiting"
	ParticipantInSession ParticipantState = "in_session"
)

// Participant 연결 하나에 대응하는 참가자
type Participant struct {
	ConnID      string           `json:"connId"`
	Role        Role             `json:"role"`
	Identity    string           `json:"identity"`
	DisplayName string           `json:"displayName"`
	State       ParticipantState `json:"state"`
	RoomID      string           `json:"roomId,omitempty"`
	SessionID   string           `json:"sessionId,omitempty"`
	QueuedAt    time.Time        `json:"queuedAt"`
}

// NormalizeIdentity identity 비교용 정규화 (소문자)
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// PoolCounts 방 하나의 대기 인원
type PoolCounts struct {
	Requesters int `json:"requesters"`
	Providers  int `json:"providers"`
}

// For 역할별 대기 인원
func (c PoolCounts) For(role Role) int {
	if role == RoleProvider {
		return c.Providers
	}
	return c.Requesters
}

// MatchmakingStats 실시간 매칭 현황
type MatchmakingStats struct {
	Waiting        map[string]PoolCounts `json:"waiting"`
	WaitingTotal   int                   `json:"waitingTotal"`
	ActiveSessions int                   `json:"activeSessions"`
}
