package models

import "time"

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// EndReason 세션 종료 사유
type EndReason string

const (
	EndReasonExplicit   EndReason = "ended"
	EndReasonDisconnect EndReason = "disconnect"
)

// Session 매칭된 요청자/통역사 한 쌍의 통화
type Session struct {
	ID        string
	RoomID    string
	Requester *Participant
	Provider  *Participant
	Status    SessionStatus
	StartedAt time.Time
	EndedAt   *time.Time
	EndReason EndReason
	EndedBy   string
}

// Peer 상대방 참가자
func (s *Session) Peer(connID string) *Participant {
	switch connID {
	case s.Requester.ConnID:
		return s.Provider
	case s.Provider.ConnID:
		return s.Requester
	}
	return nil
}

// BillingResult 세션 종료 시 정산 결과
type BillingResult struct {
	ElapsedMinutes   int64 `json:"elapsedMinutes"`
	Rate             int64 `json:"rate"`
	Total            int64 `json:"total"`
	InterpreterShare int64 `json:"interpreterShare"`
	PlatformShare    int64 `json:"platformShare"`
	RequesterShare   int64 `json:"requesterShare"`
}

// Billable 과금 대상 여부 (0분 세션은 정산 이벤트를 보내지 않는다)
func (b BillingResult) Billable() bool {
	return b.ElapsedMinutes > 0
}

// SessionRecord 종료된 세션의 영속 기록
type SessionRecord struct {
	ID                string        `json:"id" bson:"_id" db:"id"`
	RoomID            string        `json:"roomId" bson:"roomId" db:"room_id"`
	RoomName          string        `json:"roomName" bson:"roomName" db:"room_name"`
	RequesterIdentity string        `json:"requesterIdentity" bson:"requesterIdentity" db:"requester_identity"`
	ProviderIdentity  string        `json:"providerIdentity" bson:"providerIdentity" db:"provider_identity"`
	Status            SessionStatus `json:"status" bson:"status" db:"status"`
	EndReason         EndReason     `json:"endReason" bson:"endReason" db:"end_reason"`
	StartedAt         time.Time     `json:"startedAt" bson:"startedAt" db:"started_at"`
	EndedAt           time.Time     `json:"endedAt" bson:"endedAt" db:"ended_at"`
	Minutes           int64         `json:"minutes" bson:"minutes" db:"minutes"`
	Rate              int64         `json:"rate" bson:"rate" db:"rate"`
	Total             int64         `json:"total" bson:"total" db:"total"`
	InterpreterShare  int64         `json:"interpreterShare" bson:"interpreterShare" db:"interpreter_share"`
	PlatformShare     int64         `json:"platformShare" bson:"platformShare" db:"platform_share"`
	RequesterShare    int64         `json:"requesterShare" bson:"requesterShare" db:"requester_share"`
}

// SessionStats 완료된 세션 집계
type SessionStats struct {
	TotalSessions int64 `json:"totalSessions" bson:"totalSessions"`
	TotalMinutes  int64 `json:"totalMinutes" bson:"totalMinutes"`
	TotalBilled   int64 `json:"totalBilled" bson:"totalBilled"`
}

// InterpreterEarnings 통역사별 누적 수익
type InterpreterEarnings struct {
	Identity     string `json:"identity" bson:"-"`
	TotalShare   int64  `json:"totalShare" bson:"totalShare"`
	TotalMinutes int64  `json:"totalMinutes" bson:"totalMinutes"`
	SessionCount int64  `json:"sessionCount" bson:"sessionCount"`
}
