package service

import (
	"fmt"
	"sync"

	"github.com/DeafHustle/vrs-live-final/internal/models"
)

// roomQueue 방 하나의 요청자/통역사 대기열 (도착 순서)
type roomQueue struct {
	mu         sync.Mutex
	requesters []*models.Participant
	providers  []*models.Participant
}

func (q *roomQueue) queueFor(role models.Role) *[]*models.Participant {
	if role == models.RoleProvider {
		return &q.providers
	}
	return &q.requesters
}

// WaitingPool 방별 대기열. 한 연결은 시스템 전체에서 최대 한 자리만 차지한다.
type WaitingPool struct {
	mu    sync.RWMutex
	rooms map[string]*roomQueue

	indexMu sync.Mutex
	index   map[string]string // connID -> roomID
}

func NewWaitingPool() *WaitingPool {
	return &WaitingPool{
		rooms: make(map[string]*roomQueue),
		index: make(map[string]string),
	}
}

func (p *WaitingPool) room(roomID string) *roomQueue {
	p.mu.RLock()
	q, ok := p.rooms[roomID]
	p.mu.RUnlock()
	if ok {
		return q
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok = p.rooms[roomID]; !ok {
		q = &roomQueue{}
		p.rooms[roomID] = q
	}
	return q
}

// Enqueue 역할에 맞는 대기열 끝에 추가
func (p *WaitingPool) Enqueue(roomID string, participant *models.Participant) error {
	q := p.room(roomID)
	q.mu.Lock()
	defer q.mu.Unlock()

	p.indexMu.Lock()
	if existing, ok := p.index[participant.ConnID]; ok {
		p.indexMu.Unlock()
		return fmt.Errorf("%w: connection %s in room %s", ErrAlreadyWaiting, participant.ConnID, existing)
	}
	p.index[participant.ConnID] = roomID
	p.indexMu.Unlock()

	queue := q.queueFor(participant.Role)
	*queue = append(*queue, participant)
	return nil
}

// DequeueOldestPair 양쪽 대기열이 모두 비어있지 않으면 가장 오래 기다린 한 쌍을 꺼낸다
func (p *WaitingPool) DequeueOldestPair(roomID string) (requester, provider *models.Participant, ok bool) {
	q := p.room(roomID)
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requesters) == 0 || len(q.providers) == 0 {
		return nil, nil, false
	}

	requester, provider = q.requesters[0], q.providers[0]
	q.requesters[0], q.providers[0] = nil, nil
	q.requesters = q.requesters[1:]
	q.providers = q.providers[1:]

	p.indexMu.Lock()
	delete(p.index, requester.ConnID)
	delete(p.index, provider.ConnID)
	p.indexMu.Unlock()

	return requester, provider, true
}

// Remove 대기 중이면 제거. 없으면 false.
func (p *WaitingPool) Remove(roomID, connID string) bool {
	q := p.room(roomID)
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queue := range []*[]*models.Participant{&q.requesters, &q.providers} {
		for i, waiting := range *queue {
			if waiting.ConnID != connID {
				continue
			}

			*queue = append((*queue)[:i:i], (*queue)[i+1:]...)

			p.indexMu.Lock()
			delete(p.index, connID)
			p.indexMu.Unlock()
			return true
		}
	}
	return false
}

// Contains 연결이 어느 방에서든 대기 중인지 여부
func (p *WaitingPool) Contains(connID string) (string, bool) {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	roomID, ok := p.index[connID]
	return roomID, ok
}

// Counts 방의 역할별 대기 인원
func (p *WaitingPool) Counts(roomID string) models.PoolCounts {
	q := p.room(roomID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.PoolCounts{Requesters: len(q.requesters), Providers: len(q.providers)}
}

// Position 대기열 내 순번 (1부터). 대기 중이 아니면 0.
func (p *WaitingPool) Position(roomID, connID string) int {
	q := p.room(roomID)
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queue := range [][]*models.Participant{q.requesters, q.providers} {
		for i, waiting := range queue {
			if waiting.ConnID == connID {
				return i + 1
			}
		}
	}
	return 0
}
