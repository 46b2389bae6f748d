package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/stretchr/testify/require"
)

var testRooms = []models.Room{
	{ID: "vrs", Name: "VRS Call", Rate: 10},
	{ID: "vri", Name: "VRI (Hospital/School)", Rate: 20},
	{ID: "dating", Name: "Deaf Dating", Rate: 12, ManualPairing: true},
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]models.OutboundEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]models.OutboundEvent)}
}

func (n *recordingNotifier) Notify(connID string, event models.OutboundEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[connID] = append(n.events[connID], event)
}

func (n *recordingNotifier) ofType(connID, eventType string) []models.OutboundEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []models.OutboundEvent
	for _, ev := range n.events[connID] {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (n *recordingNotifier) countType(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, events := range n.events {
		for _, ev := range events {
			if ev.Type == eventType {
				count++
			}
		}
	}
	return count
}

type capturingRecorder struct {
	mu      sync.Mutex
	records []models.SessionRecord
}

func (r *capturingRecorder) Record(rec models.SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *capturingRecorder) all() []models.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SessionRecord(nil), r.records...)
}

type testEnv struct {
	svc      *MatchingService
	pool     *WaitingPool
	notifier *recordingNotifier
	clock    *fakeClock
	recorder *capturingRecorder
}

func newTestEnv(t *testing.T, gate ProviderGate) *testEnv {
	t.Helper()

	rooms, err := NewRoomRegistry(testRooms)
	require.NoError(t, err)
	billing, err := NewBillingEngine(DefaultSplit, 0)
	require.NoError(t, err)

	env := &testEnv{
		pool:     NewWaitingPool(),
		notifier: newRecordingNotifier(),
		clock:    newFakeClock(),
		recorder: &capturingRecorder{},
	}
	env.svc = NewMatchingService(rooms, env.pool, billing, gate, env.recorder, nil)
	env.svc.SetNotifier(env.notifier)
	env.svc.SetClock(env.clock.Now)
	return env
}

func (e *testEnv) join(t *testing.T, connID, room string, role models.Role, identity string) *JoinOutcome {
	t.Helper()
	outcome, err := e.svc.Join(context.Background(), JoinRequest{
		ConnID:      connID,
		RoomID:      room,
		Role:        role,
		Identity:    identity,
		DisplayName: connID,
	})
	require.NoError(t, err)
	return outcome
}
