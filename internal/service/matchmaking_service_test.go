package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingService_VRIScenario(t *testing.T) {
	env := newTestEnv(t, nil)

	first := env.join(t, "R", "vri", models.RoleRequester, "0xRequester")
	assert.False(t, first.Matched)
	assert.Equal(t, 1, first.Position)

	waiting := env.notifier.ofType("R", models.EventWaiting)
	require.Len(t, waiting, 1)
	assert.Equal(t, 0, waiting[0].Payload.(models.WaitingPayload).OppositeWaiting)

	env.clock.Advance(5 * time.Second)
	second := env.join(t, "P", "vri", models.RoleProvider, "0xInterp")
	require.True(t, second.Matched)
	assert.Equal(t, "R", second.PeerConnID)

	toR := env.notifier.ofType("R", models.EventMatchFound)
	toP := env.notifier.ofType("P", models.EventMatchFound)
	require.Len(t, toR, 1)
	require.Len(t, toP, 1)

	rPayload := toR[0].Payload.(models.MatchFoundPayload)
	assert.Equal(t, int64(20), rPayload.Rate)
	assert.Equal(t, "P", rPayload.PeerID)
	assert.Equal(t, "0xinterp", rPayload.PeerIdentity)
	assert.Equal(t, models.RoleProvider, rPayload.PeerRole)

	pPayload := toP[0].Payload.(models.MatchFoundPayload)
	assert.Equal(t, int64(20), pPayload.Rate)
	assert.Equal(t, models.RoleRequester, pPayload.PeerRole)
	assert.Equal(t, rPayload.SessionID, pPayload.SessionID)

	// 대기 알림은 방금 참가한 쪽에만
	assert.Empty(t, env.notifier.ofType("P", models.EventWaiting))

	env.clock.Advance(3 * time.Minute)
	assert.True(t, env.svc.End("R"))

	for _, connID := range []string{"R", "P"} {
		billing := env.notifier.ofType(connID, models.EventBillingResult)
		require.Len(t, billing, 1, connID)

		payload := billing[0].Payload.(models.BillingResultPayload)
		assert.Equal(t, int64(3), payload.ElapsedMinutes)
		assert.Equal(t, int64(60), payload.Total)
		assert.Equal(t, int64(27), payload.InterpreterShare)
		assert.Equal(t, int64(27), payload.PlatformShare)
		assert.Equal(t, int64(6), payload.RequesterShare)
		assert.Equal(t, "0xinterp", payload.InterpreterIdentity)
		assert.Equal(t, "0xrequester", payload.RequesterIdentity)
		assert.Equal(t, "VRI (Hospital/School)", payload.RoomName)

		assert.Len(t, env.notifier.ofType(connID, models.EventCallEnded), 1)
	}

	// partner-ended-call 은 종료를 요청하지 않은 쪽만
	assert.Empty(t, env.notifier.ofType("R", models.EventPartnerEnded))
	assert.Len(t, env.notifier.ofType("P", models.EventPartnerEnded), 1)

	records := env.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, int64(60), records[0].Total)
	assert.Equal(t, models.EndReasonExplicit, records[0].EndReason)

	// 양쪽 모두 idle
	for _, connID := range []string{"R", "P"} {
		p, ok := env.svc.Participant(connID)
		require.True(t, ok)
		assert.Equal(t, models.ParticipantIdle, p.State)
	}
	assert.Equal(t, 0, env.svc.Snapshot().ActiveSessions)
}

func TestMatchingService_FIFOAcrossRequesters(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "R1", "vri", models.RoleRequester, "r1")
	env.clock.Advance(time.Second)
	second := env.join(t, "R2", "vri", models.RoleRequester, "r2")
	assert.Equal(t, 2, second.Position)

	outcome := env.join(t, "P", "vri", models.RoleProvider, "p")
	require.True(t, outcome.Matched)
	assert.Equal(t, "R1", outcome.PeerConnID)

	peer, ok := env.svc.PeerOf("R1")
	require.True(t, ok)
	assert.Equal(t, "P", peer)

	r2, ok := env.svc.Participant("R2")
	require.True(t, ok)
	assert.Equal(t, models.ParticipantWaiting, r2.State)
	assert.Empty(t, env.notifier.ofType("R2", models.EventMatchFound))

	snapshot := env.svc.Snapshot()
	assert.Equal(t, models.PoolCounts{Requesters: 1}, snapshot.Waiting["vri"])
	assert.Equal(t, 1, snapshot.WaitingTotal)
	assert.Equal(t, 1, snapshot.ActiveSessions)
}

func TestMatchingService_ManualPairingRoomNeverMatches(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 3; i++ {
		out := env.join(t, fmt.Sprintf("r%d", i), "dating", models.RoleRequester, fmt.Sprintf("r%d", i))
		assert.False(t, out.Matched)
		out = env.join(t, fmt.Sprintf("p%d", i), "dating", models.RoleProvider, fmt.Sprintf("p%d", i))
		assert.False(t, out.Matched)
	}

	assert.Equal(t, 0, env.notifier.countType(models.EventMatchFound))
	assert.Equal(t, models.PoolCounts{Requesters: 3, Providers: 3}, env.svc.Snapshot().Waiting["dating"])

	waiting := env.notifier.ofType("p0", models.EventWaiting)
	require.Len(t, waiting, 1)
	assert.False(t, waiting[0].Payload.(models.WaitingPayload).AutoMatch)
}

func TestMatchingService_DoubleEndBillsOnce(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "R", "vrs", models.RoleRequester, "r")
	env.join(t, "P", "vrs", models.RoleProvider, "p")
	env.clock.Advance(2 * time.Minute)

	assert.True(t, env.svc.End("R"))
	assert.False(t, env.svc.End("R"))
	assert.False(t, env.svc.End("P"))
	env.svc.Disconnect("P")

	assert.Len(t, env.notifier.ofType("R", models.EventBillingResult), 1)
	assert.Len(t, env.notifier.ofType("P", models.EventBillingResult), 1)
	assert.Len(t, env.recorder.all(), 1)
}

func TestMatchingService_ConcurrentEndBillsOnce(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "R", "vrs", models.RoleRequester, "r")
	env.join(t, "P", "vrs", models.RoleProvider, "p")
	env.clock.Advance(4 * time.Minute)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ended int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := "R"
			if i%2 == 1 {
				connID = "P"
			}
			if i%5 == 0 {
				env.svc.Disconnect(connID)
				return
			}
			if env.svc.End(connID) {
				mu.Lock()
				ended++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, ended, 1)
	assert.Len(t, env.recorder.all(), 1)
	assert.Equal(t, 2, env.notifier.countType(models.EventBillingResult))
}

func TestMatchingService_DisconnectWhileWaiting(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "R", "vri", models.RoleRequester, "r")
	env.svc.Disconnect("R")

	assert.Equal(t, models.PoolCounts{}, env.svc.Snapshot().Waiting["vri"])
	assert.Equal(t, 0, env.notifier.countType(models.EventBillingResult))
	assert.Empty(t, env.recorder.all())

	_, ok := env.svc.Participant("R")
	assert.False(t, ok)

	// 이후 통역사가 들어와도 매칭되지 않는다
	out := env.join(t, "P", "vri", models.RoleProvider, "p")
	assert.False(t, out.Matched)
}

func TestMatchingService_DisconnectInSession(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "R", "vri", models.RoleRequester, "r")
	env.join(t, "P", "vri", models.RoleProvider, "p")
	env.clock.Advance(90 * time.Second)

	env.svc.Disconnect("P")

	billing := env.notifier.ofType("R", models.EventBillingResult)
	require.Len(t, billing, 1)
	assert.Equal(t, int64(20), billing[0].Payload.(models.BillingResultPayload).Total)
	assert.Len(t, env.notifier.ofType("R", models.EventPartnerEnded), 1)

	records := env.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.EndReasonDisconnect, records[0].EndReason)

	// 남은 쪽은 idle 이 되어 다시 참가할 수 있다
	r, ok := env.svc.Participant("R")
	require.True(t, ok)
	assert.Equal(t, models.ParticipantIdle, r.State)
	env.join(t, "R", "vri", models.RoleRequester, "r")
}

func TestMatchingService_ZeroMinuteSession(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "R", "vri", models.RoleRequester, "r")
	env.join(t, "P", "vri", models.RoleProvider, "p")
	env.clock.Advance(45 * time.Second)

	assert.True(t, env.svc.End("P"))

	assert.Equal(t, 0, env.notifier.countType(models.EventBillingResult))
	assert.Equal(t, 2, env.notifier.countType(models.EventCallEnded))

	records := env.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, int64(0), records[0].Minutes)
	assert.Equal(t, models.SessionStatusCompleted, records[0].Status)
}

func TestMatchingService_JoinRejections(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "W", "vri", models.RoleRequester, "waiter")
	env.join(t, "S1", "vrs", models.RoleRequester, "s1")
	env.join(t, "S2", "vrs", models.RoleProvider, "s2")

	tests := []struct {
		name string
		req  JoinRequest
		err  error
		code string
	}{
		{
			name: "unknown room",
			req:  JoinRequest{ConnID: "x", RoomID: "nope", Role: models.RoleRequester, Identity: "x"},
			err:  ErrUnknownRoom,
			code: CodeUnknownRoom,
		},
		{
			name: "missing identity",
			req:  JoinRequest{ConnID: "x", RoomID: "vri", Role: models.RoleRequester},
			err:  ErrInvalidJoin,
			code: CodeInvalidRequest,
		},
		{
			name: "invalid role",
			req:  JoinRequest{ConnID: "x", RoomID: "vri", Role: "admin", Identity: "x"},
			err:  ErrInvalidRole,
			code: CodeInvalidRequest,
		},
		{
			name: "connection already waiting",
			req:  JoinRequest{ConnID: "W", RoomID: "vrs", Role: models.RoleRequester, Identity: "waiter"},
			err:  ErrAlreadyWaiting,
			code: CodeAlreadyWaiting,
		},
		{
			name: "connection already in session",
			req:  JoinRequest{ConnID: "S1", RoomID: "vri", Role: models.RoleRequester, Identity: "s1"},
			err:  ErrAlreadyInSession,
			code: CodeAlreadyInSession,
		},
		{
			name: "identity waiting on another connection",
			req:  JoinRequest{ConnID: "other", RoomID: "vrs", Role: models.RoleProvider, Identity: "WAITER"},
			err:  ErrAlreadyWaiting,
			code: CodeAlreadyWaiting,
		},
		{
			name: "identity in session on another connection",
			req:  JoinRequest{ConnID: "other2", RoomID: "vri", Role: models.RoleProvider, Identity: "s2"},
			err:  ErrAlreadyInSession,
			code: CodeAlreadyInSession,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := env.svc.Snapshot()

			_, err := env.svc.Join(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.code, ErrorCode(err))

			// 거부된 참가는 상태를 바꾸지 않는다
			assert.Equal(t, before, env.svc.Snapshot())
		})
	}
}

func TestMatchingService_RoleFixedPerConnection(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "C", "vri", models.RoleRequester, "c")
	require.True(t, env.svc.LeaveQueue("C"))

	_, err := env.svc.Join(context.Background(), JoinRequest{
		ConnID: "C", RoomID: "vri", Role: models.RoleProvider, Identity: "c",
	})
	assert.ErrorIs(t, err, ErrRoleMismatch)
	assert.Equal(t, CodeRoleConflict, ErrorCode(err))
}

func TestMatchingService_LeaveQueue(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.False(t, env.svc.LeaveQueue("ghost"))

	env.join(t, "R", "vri", models.RoleRequester, "r")
	assert.True(t, env.svc.LeaveQueue("R"))
	assert.False(t, env.svc.LeaveQueue("R"))
	assert.Len(t, env.notifier.ofType("R", models.EventLeftQueue), 1)
	assert.Equal(t, models.PoolCounts{}, env.svc.Snapshot().Waiting["vri"])

	// 같은 identity 로 다른 방 참가 가능
	env.join(t, "R", "vrs", models.RoleRequester, "r")

	// 통화 중에는 leave-queue 가 아무 일도 하지 않는다
	env.join(t, "P", "vrs", models.RoleProvider, "p")
	assert.False(t, env.svc.LeaveQueue("R"))
	_, ok := env.svc.PeerOf("R")
	assert.True(t, ok)
}

type denyGate struct{}

func (denyGate) Authorize(context.Context, string, string) error {
	return ErrNotAuthorizedProvider
}

func TestMatchingService_ProviderGate(t *testing.T) {
	env := newTestEnv(t, denyGate{})

	_, err := env.svc.Join(context.Background(), JoinRequest{
		ConnID: "P", RoomID: "vri", Role: models.RoleProvider, Identity: "p",
	})
	assert.ErrorIs(t, err, ErrNotAuthorizedProvider)
	assert.Equal(t, CodeNotAuthorizedProvider, ErrorCode(err))
	assert.Equal(t, 0, env.svc.Snapshot().WaitingTotal)

	// 요청자는 게이트를 거치지 않는다
	env.join(t, "R", "vri", models.RoleRequester, "r")
}

func TestMatchingService_ConcurrentJoinsPairEveryone(t *testing.T) {
	env := newTestEnv(t, nil)
	const perRole = 100

	var wg sync.WaitGroup
	for i := 0; i < perRole; i++ {
		for _, role := range []models.Role{models.RoleRequester, models.RoleProvider} {
			wg.Add(1)
			go func(i int, role models.Role) {
				defer wg.Done()
				connID := fmt.Sprintf("%s-%d", role, i)
				room := "vri"
				if i%2 == 0 {
					room = "vrs"
				}
				_, err := env.svc.Join(context.Background(), JoinRequest{
					ConnID: connID, RoomID: room, Role: role, Identity: connID,
				})
				assert.NoError(t, err)
			}(i, role)
		}
	}
	wg.Wait()

	snapshot := env.svc.Snapshot()
	assert.Equal(t, perRole, snapshot.ActiveSessions)
	assert.Equal(t, 0, snapshot.WaitingTotal)

	// 모든 참가자는 정확히 한 번 match-found 를 받는다
	for i := 0; i < perRole; i++ {
		for _, role := range []models.Role{models.RoleRequester, models.RoleProvider} {
			connID := fmt.Sprintf("%s-%d", role, i)
			assert.Len(t, env.notifier.ofType(connID, models.EventMatchFound), 1, connID)

			peer, ok := env.svc.PeerOf(connID)
			require.True(t, ok)
			back, ok := env.svc.PeerOf(peer)
			require.True(t, ok)
			assert.Equal(t, connID, back)
		}
	}

	// 동시에 모두 연결 종료
	for i := 0; i < perRole; i++ {
		for _, role := range []models.Role{models.RoleRequester, models.RoleProvider} {
			wg.Add(1)
			go func(connID string) {
				defer wg.Done()
				env.svc.Disconnect(connID)
			}(fmt.Sprintf("%s-%d", role, i))
		}
	}
	wg.Wait()

	assert.Len(t, env.recorder.all(), perRole)
	assert.Equal(t, 0, env.svc.Snapshot().ActiveSessions)
}

func TestMatchingService_WaitingReportsOppositeRole(t *testing.T) {
	env := newTestEnv(t, nil)

	env.join(t, "P1", "dating", models.RoleProvider, "0xp1")
	env.join(t, "P2", "dating", models.RoleProvider, "0xp2")
	out := env.join(t, "R", "dating", models.RoleRequester, "0xr")
	assert.False(t, out.Matched)

	waiting := env.notifier.ofType("R", models.EventWaiting)
	require.Len(t, waiting, 1)
	payload := waiting[0].Payload.(models.WaitingPayload)
	assert.Equal(t, 2, payload.OppositeWaiting)
	assert.Equal(t, 1, payload.Position)

	providerWaiting := env.notifier.ofType("P2", models.EventWaiting)
	require.Len(t, providerWaiting, 1)
	assert.Equal(t, 0, providerWaiting[0].Payload.(models.WaitingPayload).OppositeWaiting)
}
