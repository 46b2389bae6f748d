package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/metrics"
	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier 연결 ID 로 이벤트 전달. 끊긴 연결은 조용히 건너뛴다.
type Notifier interface {
	Notify(connID string, event models.OutboundEvent)
}

// Recorder 종료된 세션 기록 (논블로킹)
type Recorder interface {
	Record(rec models.SessionRecord)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, models.OutboundEvent) {}

// JoinRequest 참가 요청
type JoinRequest struct {
	ConnID      string
	RoomID      string
	Role        models.Role
	Identity    string
	DisplayName string
	Token       string
}

// JoinOutcome 참가 결과
type JoinOutcome struct {
	Matched    bool
	SessionID  string
	PeerConnID string
	Position   int
}

// MatchingService 대기열, 매칭, 세션 종료와 정산을 담당한다.
//
// 락 순서: 방 락 -> WaitingPool 내부 락 -> mu. mu 를 잡은 채로 다른 락을 잡지 않는다.
type MatchingService struct {
	rooms    *RoomRegistry
	pool     *WaitingPool
	billing  *BillingEngine
	gate     ProviderGate
	recorder Recorder
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	roomLocksMu sync.Mutex
	roomLocks   map[string]*sync.Mutex

	mu           sync.Mutex
	participants map[string]*models.Participant // connID -> participant
	identities   map[string]string              // identity -> connID (대기 또는 통화 중)
	sessions     map[string]*models.Session     // sessionID -> active session
	byConn       map[string]*models.Session     // connID -> active session
}

func NewMatchingService(
	rooms *RoomRegistry,
	pool *WaitingPool,
	billing *BillingEngine,
	gate ProviderGate,
	recorder Recorder,
	logger *zap.Logger,
) *MatchingService {
	if gate == nil {
		gate = OpenProviderGate{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchingService{
		rooms:        rooms,
		pool:         pool,
		billing:      billing,
		gate:         gate,
		recorder:     recorder,
		notifier:     noopNotifier{},
		logger:       logger,
		now:          time.Now,
		roomLocks:    make(map[string]*sync.Mutex),
		participants: make(map[string]*models.Participant),
		identities:   make(map[string]string),
		sessions:     make(map[string]*models.Session),
		byConn:       make(map[string]*models.Session),
	}
}

// SetNotifier Hub 연결 (Hub 가 서비스에 의존하므로 생성 후 주입)
func (s *MatchingService) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

// SetClock 테스트용 시계 교체
func (s *MatchingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MatchingService) Rooms() *RoomRegistry {
	return s.rooms
}

func (s *MatchingService) Billing() *BillingEngine {
	return s.billing
}

func (s *MatchingService) lockRoom(roomID string) func() {
	s.roomLocksMu.Lock()
	l, ok := s.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.roomLocks[roomID] = l
	}
	s.roomLocksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Join 방 참가. 상대가 있으면 즉시 세션을 만들고, 없으면 대기 상태로 남는다.
func (s *MatchingService) Join(ctx context.Context, req JoinRequest) (*JoinOutcome, error) {
	outcome, err := s.join(ctx, req)
	if err != nil {
		metrics.JoinRejections.WithLabelValues(ErrorCode(err)).Inc()
		s.logger.Debug("Join rejected",
			zap.String("conn", req.ConnID),
			zap.String("room", req.RoomID),
			zap.Error(err))
	}
	return outcome, err
}

func (s *MatchingService) join(ctx context.Context, req JoinRequest) (*JoinOutcome, error) {
	identity := models.NormalizeIdentity(req.Identity)
	if req.ConnID == "" || req.RoomID == "" || identity == "" {
		return nil, fmt.Errorf("%w: connection, room and identity are required", ErrInvalidJoin)
	}
	if req.Role != models.RoleRequester && req.Role != models.RoleProvider {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	room, err := s.rooms.Lookup(req.RoomID)
	if err != nil {
		return nil, err
	}

	if req.Role == models.RoleProvider {
		if err := s.gate.Authorize(ctx, identity, req.Token); err != nil {
			return nil, err
		}
	}

	unlock := s.lockRoom(room.ID)
	defer unlock()

	participant, err := s.markWaiting(req, identity, room.ID)
	if err != nil {
		return nil, err
	}

	if err := s.pool.Enqueue(room.ID, participant); err != nil {
		s.mu.Lock()
		s.releaseLocked(participant)
		s.mu.Unlock()
		return nil, err
	}
	metrics.WaitingParticipants.WithLabelValues(room.ID, string(req.Role)).Inc()

	s.logger.Info("Participant waiting",
		zap.String("conn", req.ConnID),
		zap.String("room", room.ID),
		zap.String("role", string(req.Role)))

	if room.AutoMatch() {
		if requester, provider, ok := s.pool.DequeueOldestPair(room.ID); ok {
			sess := s.createSession(room, requester, provider)
			outcome := &JoinOutcome{Matched: true, SessionID: sess.ID}
			if peer := sess.Peer(req.ConnID); peer != nil {
				outcome.PeerConnID = peer.ConnID
			}
			return outcome, nil
		}
	}

	opposite := s.pool.Counts(room.ID).For(req.Role.Opposite())
	position := s.pool.Position(room.ID, req.ConnID)

	s.notifier.Notify(req.ConnID, models.OutboundEvent{
		Type: models.EventWaiting,
		Payload: models.WaitingPayload{
			Room:            room.ID,
			Role:            req.Role,
			Position:        position,
			OppositeWaiting: opposite,
			AutoMatch:       room.AutoMatch(),
		},
	})

	return &JoinOutcome{Position: position}, nil
}

// markWaiting 연결/identity 단위 중복 참가를 거부하고 waiting 으로 전환
func (s *MatchingService) markWaiting(req JoinRequest, identity, roomID string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[req.ConnID]
	if ok {
		if err := stateError(participant.State); err != nil {
			return nil, err
		}
		if participant.Role != req.Role {
			return nil, fmt.Errorf("%w: joined as %s", ErrRoleMismatch, participant.Role)
		}
	}

	if connID, taken := s.identities[identity]; taken {
		if other, ok := s.participants[connID]; ok {
			if err := stateError(other.State); err != nil {
				return nil, fmt.Errorf("identity %s: %w", identity, err)
			}
		}
	}

	if participant == nil {
		participant = &models.Participant{ConnID: req.ConnID, Role: req.Role}
		s.participants[req.ConnID] = participant
	}

	participant.Identity = identity
	participant.DisplayName = req.DisplayName
	participant.State = models.ParticipantWaiting
	participant.RoomID = roomID
	participant.SessionID = ""
	participant.QueuedAt = s.now()
	s.identities[identity] = req.ConnID

	return participant, nil
}

func stateError(state models.ParticipantState) error {
	switch state {
	case models.ParticipantWaiting:
		return ErrAlreadyWaiting
	case models.ParticipantInSession:
		return ErrAlreadyInSession
	}
	return nil
}

// releaseLocked 참가자를 idle 로 되돌린다. mu 필요.
func (s *MatchingService) releaseLocked(p *models.Participant) {
	p.State = models.ParticipantIdle
	p.RoomID = ""
	p.SessionID = ""
	if s.identities[p.Identity] == p.ConnID {
		delete(s.identities, p.Identity)
	}
}

// createSession 한 쌍을 세션으로 묶고 양쪽에 match-found 전송. 방 락 필요.
func (s *MatchingService) createSession(room models.Room, requester, provider *models.Participant) *models.Session {
	sess := &models.Session{
		ID:        uuid.New().String(),
		RoomID:    room.ID,
		Requester: requester,
		Provider:  provider,
		Status:    models.SessionStatusActive,
		StartedAt: s.now(),
	}

	s.mu.Lock()
	for _, p := range []*models.Participant{requester, provider} {
		p.State = models.ParticipantInSession
		p.SessionID = sess.ID
		s.byConn[p.ConnID] = sess
	}
	s.sessions[sess.ID] = sess
	toRequester := matchPayload(sess, room, provider)
	toProvider := matchPayload(sess, room, requester)
	s.mu.Unlock()

	metrics.WaitingParticipants.WithLabelValues(room.ID, string(models.RoleRequester)).Dec()
	metrics.WaitingParticipants.WithLabelValues(room.ID, string(models.RoleProvider)).Dec()
	metrics.MatchesTotal.WithLabelValues(room.ID).Inc()
	metrics.ActiveSessions.Inc()

	s.logger.Info("Session created",
		zap.String("session", sess.ID),
		zap.String("room", room.ID),
		zap.String("requester", requester.ConnID),
		zap.String("provider", provider.ConnID))

	s.notifier.Notify(requester.ConnID, models.OutboundEvent{Type: models.EventMatchFound, Payload: toRequester})
	s.notifier.Notify(provider.ConnID, models.OutboundEvent{Type: models.EventMatchFound, Payload: toProvider})

	return sess
}

func matchPayload(sess *models.Session, room models.Room, peer *models.Participant) models.MatchFoundPayload {
	return models.MatchFoundPayload{
		SessionID:    sess.ID,
		Room:         room.ID,
		PeerID:       peer.ConnID,
		PeerIdentity: peer.Identity,
		PeerName:     peer.DisplayName,
		PeerRole:     peer.Role,
		Rate:         room.Rate,
	}
}

// lockParticipantRoom 참가자가 속한 방의 락을 잡는다. idle 이거나 없으면 unlock 은 nil.
func (s *MatchingService) lockParticipantRoom(connID string) (*models.Participant, func()) {
	for {
		s.mu.Lock()
		p, ok := s.participants[connID]
		roomID := ""
		if ok {
			roomID = p.RoomID
		}
		s.mu.Unlock()

		if !ok || roomID == "" {
			return p, nil
		}

		unlock := s.lockRoom(roomID)
		s.mu.Lock()
		same := p.RoomID == roomID
		s.mu.Unlock()
		if same {
			return p, unlock
		}
		unlock()
	}
}

// End 명시적 통화 종료. 진행 중인 세션이 없으면 아무 일도 하지 않고 false.
func (s *MatchingService) End(connID string) bool {
	_, unlock := s.lockParticipantRoom(connID)
	if unlock == nil {
		return false
	}

	s.mu.Lock()
	sess := s.byConn[connID]
	s.mu.Unlock()

	var (
		rec   models.SessionRecord
		ended bool
	)
	if sess != nil {
		rec, ended = s.endSessionLocked(sess, connID, models.EndReasonExplicit)
	}
	unlock()

	if ended {
		s.record(rec)
	}
	return ended
}

// LeaveQueue 대기열에서 나가기 (연결은 유지). 대기 중이 아니면 false.
func (s *MatchingService) LeaveQueue(connID string) bool {
	p, unlock := s.lockParticipantRoom(connID)
	if unlock == nil {
		return false
	}
	defer unlock()

	roomID, ok := s.removeWaitingLocked(p)
	if !ok {
		return false
	}

	s.logger.Info("Participant left queue", zap.String("conn", connID), zap.String("room", roomID))
	s.notifier.Notify(connID, models.OutboundEvent{
		Type:    models.EventLeftQueue,
		Payload: map[string]string{"room": roomID},
	})
	return true
}

// removeWaitingLocked 대기 중인 참가자를 풀에서 빼고 idle 로 전환. 방 락 필요.
func (s *MatchingService) removeWaitingLocked(p *models.Participant) (string, bool) {
	s.mu.Lock()
	waiting := p.State == models.ParticipantWaiting
	roomID, role := p.RoomID, p.Role
	s.mu.Unlock()

	if !waiting || !s.pool.Remove(roomID, p.ConnID) {
		return "", false
	}
	metrics.WaitingParticipants.WithLabelValues(roomID, string(role)).Dec()

	s.mu.Lock()
	s.releaseLocked(p)
	s.mu.Unlock()
	return roomID, true
}

// Disconnect 연결 종료. 대기 중이면 대기열에서 제거, 통화 중이면 즉시 종료 및 정산.
func (s *MatchingService) Disconnect(connID string) {
	p, unlock := s.lockParticipantRoom(connID)
	if p == nil {
		return
	}

	var (
		rec   models.SessionRecord
		ended bool
	)
	if unlock != nil {
		if _, removed := s.removeWaitingLocked(p); removed {
			s.logger.Info("Waiting participant disconnected", zap.String("conn", connID))
		} else {
			s.mu.Lock()
			sess := s.byConn[connID]
			s.mu.Unlock()
			if sess != nil {
				rec, ended = s.endSessionLocked(sess, connID, models.EndReasonDisconnect)
			}
		}
	}

	s.mu.Lock()
	s.releaseLocked(p)
	delete(s.participants, connID)
	s.mu.Unlock()

	if unlock != nil {
		unlock()
	}

	if ended {
		s.record(rec)
	}
}

// endSessionLocked 세션 종료의 단일 경로. 이미 종료된 세션이면 false. 방 락 필요.
func (s *MatchingService) endSessionLocked(sess *models.Session, triggerConnID string, reason models.EndReason) (models.SessionRecord, bool) {
	s.mu.Lock()
	if sess.Status != models.SessionStatusActive {
		s.mu.Unlock()
		return models.SessionRecord{}, false
	}

	endedAt := s.now()
	sess.Status = models.SessionStatusCompleted
	sess.EndedAt = &endedAt
	sess.EndReason = reason
	sess.EndedBy = triggerConnID

	requester, provider := sess.Requester, sess.Provider
	for _, p := range []*models.Participant{requester, provider} {
		delete(s.byConn, p.ConnID)
		s.releaseLocked(p)
	}
	delete(s.sessions, sess.ID)

	requesterConn, providerConn := requester.ConnID, provider.ConnID
	requesterIdentity, providerIdentity := requester.Identity, provider.Identity
	s.mu.Unlock()

	room, err := s.rooms.Lookup(sess.RoomID)
	if err != nil {
		s.logger.Error("Session room vanished", zap.String("session", sess.ID), zap.Error(err))
	}

	result := s.billing.Compute(endedAt.Sub(sess.StartedAt), room.Rate)

	metrics.ActiveSessions.Dec()
	metrics.SessionsCompleted.WithLabelValues(sess.RoomID, string(reason)).Inc()
	metrics.BilledUnits.WithLabelValues(sess.RoomID).Add(float64(result.Total))
	metrics.SessionMinutes.Observe(float64(result.ElapsedMinutes))

	s.logger.Info("Session ended",
		zap.String("session", sess.ID),
		zap.String("room", sess.RoomID),
		zap.String("reason", string(reason)),
		zap.Int64("minutes", result.ElapsedMinutes),
		zap.Int64("total", result.Total))

	ended := models.OutboundEvent{
		Type:    models.EventCallEnded,
		Payload: models.CallEndedPayload{SessionID: sess.ID, Reason: reason},
	}
	for _, connID := range []string{requesterConn, providerConn} {
		s.notifier.Notify(connID, ended)
		if connID != triggerConnID {
			s.notifier.Notify(connID, models.OutboundEvent{
				Type:    models.EventPartnerEnded,
				Payload: models.CallEndedPayload{SessionID: sess.ID, Reason: reason},
			})
		}
	}

	if result.Billable() {
		billing := models.OutboundEvent{
			Type: models.EventBillingResult,
			Payload: models.BillingResultPayload{
				SessionID:           sess.ID,
				RoomName:            room.Name,
				ElapsedMinutes:      result.ElapsedMinutes,
				Rate:                result.Rate,
				Total:               result.Total,
				InterpreterShare:    result.InterpreterShare,
				PlatformShare:       result.PlatformShare,
				RequesterShare:      result.RequesterShare,
				InterpreterIdentity: providerIdentity,
				RequesterIdentity:   requesterIdentity,
			},
		}
		s.notifier.Notify(requesterConn, billing)
		s.notifier.Notify(providerConn, billing)
	}

	return models.SessionRecord{
		ID:                sess.ID,
		RoomID:            sess.RoomID,
		RoomName:          room.Name,
		RequesterIdentity: requesterIdentity,
		ProviderIdentity:  providerIdentity,
		Status:            models.SessionStatusCompleted,
		EndReason:         reason,
		StartedAt:         sess.StartedAt,
		EndedAt:           endedAt,
		Minutes:           result.ElapsedMinutes,
		Rate:              result.Rate,
		Total:             result.Total,
		InterpreterShare:  result.InterpreterShare,
		PlatformShare:     result.PlatformShare,
		RequesterShare:    result.RequesterShare,
	}, true
}

func (s *MatchingService) record(rec models.SessionRecord) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(rec)
}

// PeerOf 현재 세션 상대의 연결 ID
func (s *MatchingService) PeerOf(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byConn[connID]
	if !ok {
		return "", false
	}
	peer := sess.Peer(connID)
	if peer == nil {
		return "", false
	}
	return peer.ConnID, true
}

// Participant 참가자 상태 복사본
func (s *MatchingService) Participant(connID string) (models.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[connID]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// Snapshot 방별 대기 인원과 진행 중 세션 수
func (s *MatchingService) Snapshot() models.MatchmakingStats {
	stats := models.MatchmakingStats{Waiting: make(map[string]models.PoolCounts)}

	for _, room := range s.rooms.List() {
		counts := s.pool.Counts(room.ID)
		stats.Waiting[room.ID] = counts
		stats.WaitingTotal += counts.Requesters + counts.Providers
	}

	s.mu.Lock()
	stats.ActiveSessions = len(s.sessions)
	s.mu.Unlock()

	return stats
}
