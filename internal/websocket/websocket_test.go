package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *Hub, *service.MatchingService) {
	t.Helper()

	rooms, err := service.NewRoomRegistry([]models.Room{
		{ID: "vri", Name: "VRI (Hospital/School)", Rate: 20},
	})
	require.NoError(t, err)
	billing, err := service.NewBillingEngine(service.DefaultSplit, 0)
	require.NoError(t, err)

	svc := service.NewMatchingService(rooms, service.NewWaitingPool(), billing, nil, nil, nil)
	hub := NewHub(nil)
	svc.SetNotifier(hub)

	if opts.JoinRateCapacity == 0 {
		opts.JoinRateCapacity = 10
		opts.JoinRateRefill = 1
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, svc, opts, w, r, nil)
	}))
	t.Cleanup(server.Close)

	return server, hub, svc
}

// dial 연결 후 connected 이벤트에서 connID 를 읽는다
func dial(t *testing.T, server *httptest.Server) (*websocket.Conn, string) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readEvent(t, conn, models.EventConnected)
	var payload models.ConnectedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.NotEmpty(t, payload.ConnID)

	return conn, payload.ConnID
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": eventType, "payload": payload}))
}

// readEvent 원하는 타입의 이벤트가 올 때까지 읽는다
func readEvent(t *testing.T, conn *websocket.Conn, eventType string) inbound {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", eventType)
		if msg.Type == eventType {
			return msg
		}
	}
}

func join(room, role, identity string) map[string]string {
	return map[string]string{"room": room, "role": role, "identity": identity, "displayName": identity}
}

func TestWebSocket_MatchRelayAndBilling(t *testing.T) {
	server, hub, svc := newTestServer(t, Options{})

	requester, requesterID := dial(t, server)
	provider, providerID := dial(t, server)
	assert.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	send(t, requester, models.EventJoinRoom, join("vri", "user", "0xRequester"))
	waiting := readEvent(t, requester, models.EventWaiting)
	var wp models.WaitingPayload
	require.NoError(t, json.Unmarshal(waiting.Payload, &wp))
	assert.Equal(t, 1, wp.Position)

	send(t, provider, models.EventJoinRoom, join("vri", "interpreter", "0xInterp"))

	var match models.MatchFoundPayload
	require.NoError(t, json.Unmarshal(readEvent(t, requester, models.EventMatchFound).Payload, &match))
	assert.Equal(t, providerID, match.PeerID)
	assert.Equal(t, int64(20), match.Rate)
	readEvent(t, provider, models.EventMatchFound)

	// 시그널링은 상대에게 from 과 함께 전달
	send(t, requester, models.EventWebRTCOffer, map[string]string{"sdp": "v=0"})
	offer := readEvent(t, provider, models.EventWebRTCOffer)
	var relay models.RelayPayload
	require.NoError(t, json.Unmarshal(offer.Payload, &relay))
	assert.Equal(t, requesterID, relay.From)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(relay.Data))

	// 채팅은 보낸 사람 이름과 시각이 붙는다
	send(t, provider, models.EventChatMessage, map[string]string{"message": "hello"})
	chat := readEvent(t, requester, models.EventChatMessage)
	var chatPayload models.RelayPayload
	require.NoError(t, json.Unmarshal(chat.Payload, &chatPayload))
	assert.Equal(t, providerID, chatPayload.From)
	assert.Equal(t, "0xInterp", chatPayload.FromName)
	assert.NotZero(t, chatPayload.Timestamp)
	assert.JSONEq(t, `{"message":"hello"}`, string(chatPayload.Data))

	// 화면 공유 토글은 partner-screen-sharing 으로 전달
	for _, tt := range []struct {
		event   string
		sharing bool
	}{
		{models.EventScreenShareStarted, true},
		{models.EventScreenShareStopped, false},
	} {
		send(t, requester, tt.event, nil)
		var sharing models.ScreenSharingPayload
		require.NoError(t, json.Unmarshal(readEvent(t, provider, models.EventPartnerScreenSharing).Payload, &sharing))
		assert.Equal(t, requesterID, sharing.From)
		assert.Equal(t, tt.sharing, sharing.Sharing)
	}

	// 0분 통화 종료: call-ended 는 오지만 billing-result 는 없다
	send(t, provider, models.EventEndSession, nil)
	var ended models.CallEndedPayload
	require.NoError(t, json.Unmarshal(readEvent(t, requester, models.EventCallEnded).Payload, &ended))
	assert.Equal(t, models.EndReasonExplicit, ended.Reason)
	readEvent(t, requester, models.EventPartnerEnded)

	_, inSession := svc.PeerOf(requesterID)
	assert.False(t, inSession)
}

func TestWebSocket_JoinErrors(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	conn, _ := dial(t, server)

	tests := []struct {
		name    string
		payload interface{}
		code    string
	}{
		{"unknown room", join("nope", "requester", "a"), service.CodeUnknownRoom},
		{"missing identity", map[string]string{"room": "vri", "role": "requester"}, service.CodeInvalidRequest},
		{"bad role", join("vri", "admin", "a"), service.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, models.EventJoinRoom, tt.payload)
			var payload models.ErrorPayload
			require.NoError(t, json.Unmarshal(readEvent(t, conn, models.EventError).Payload, &payload))
			assert.Equal(t, tt.code, payload.Code)
		})
	}

	send(t, conn, models.EventJoinRoom, join("vri", "requester", "a"))
	readEvent(t, conn, models.EventWaiting)
	send(t, conn, models.EventJoinRoom, join("vri", "requester", "a"))
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readEvent(t, conn, models.EventError).Payload, &payload))
	assert.Equal(t, service.CodeAlreadyWaiting, payload.Code)
}

func TestWebSocket_JoinRateLimited(t *testing.T) {
	server, _, _ := newTestServer(t, Options{JoinRateCapacity: 1, JoinRateRefill: 0.001})
	conn, _ := dial(t, server)

	send(t, conn, models.EventJoinRoom, join("nope", "requester", "a"))
	readEvent(t, conn, models.EventError)

	send(t, conn, models.EventJoinRoom, join("vri", "requester", "a"))
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readEvent(t, conn, models.EventError).Payload, &payload))
	assert.Equal(t, service.CodeRateLimited, payload.Code)
}

func TestWebSocket_DisconnectEndsSession(t *testing.T) {
	server, _, svc := newTestServer(t, Options{})

	requester, requesterID := dial(t, server)
	provider, _ := dial(t, server)

	send(t, requester, models.EventJoinRoom, join("vri", "requester", "r"))
	readEvent(t, requester, models.EventWaiting)
	send(t, provider, models.EventJoinRoom, join("vri", "provider", "p"))
	readEvent(t, requester, models.EventMatchFound)

	require.NoError(t, provider.Close())

	var ended models.CallEndedPayload
	require.NoError(t, json.Unmarshal(readEvent(t, requester, models.EventPartnerEnded).Payload, &ended))
	assert.Equal(t, models.EndReasonDisconnect, ended.Reason)

	participant, ok := svc.Participant(requesterID)
	require.True(t, ok)
	assert.Equal(t, models.ParticipantIdle, participant.State)
}

func TestWebSocket_RelayOutsideSessionIsDropped(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	conn, _ := dial(t, server)
	other, _ := dial(t, server)

	send(t, conn, models.EventChatMessage, map[string]string{"text": "hello"})
	send(t, conn, models.EventLeaveQueue, nil)
	send(t, conn, "bogus", nil)

	// 알 수 없는 이벤트에 대한 에러만 돌아온다
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readEvent(t, conn, models.EventError).Payload, &payload))
	assert.Equal(t, service.CodeInvalidRequest, payload.Code)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_NotifyUnknownConnectionIsSkipped(t *testing.T) {
	hub := NewHub(nil)
	hub.Notify("missing", models.OutboundEvent{Type: models.EventWaiting})
	assert.Equal(t, 0, hub.Count())
}

func TestHub_CloseAllEndsActiveSessions(t *testing.T) {
	server, hub, svc := newTestServer(t, Options{})

	requester, requesterID := dial(t, server)
	provider, _ := dial(t, server)

	send(t, requester, models.EventJoinRoom, join("vri", "requester", "r"))
	readEvent(t, requester, models.EventWaiting)
	send(t, provider, models.EventJoinRoom, join("vri", "provider", "p"))
	readEvent(t, requester, models.EventMatchFound)
	require.Equal(t, 1, svc.Snapshot().ActiveSessions)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, hub.CloseAll(ctx))

	// CloseAll 이 반환되면 모든 연결의 정산과 등록 해제가 끝나 있다
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 0, svc.Snapshot().ActiveSessions)
	_, inSession := svc.PeerOf(requesterID)
	assert.False(t, inSession)
	_, tracked := svc.Participant(requesterID)
	assert.False(t, tracked)
}
