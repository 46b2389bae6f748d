package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/DeafHustle/vrs-live-final/internal/models"
)

var ErrNotFound = errors.New("record not found")

// SessionRepository 종료된 세션 기록 저장소.
// Save 는 같은 ID 에 대해 멱등이어야 한다 (재시도 시 중복 저장 방지).
type SessionRepository interface {
	Save(ctx context.Context, rec models.SessionRecord) error
	Get(ctx context.Context, id string) (*models.SessionRecord, error)
	Stats(ctx context.Context) (models.SessionStats, error)
	InterpreterEarnings(ctx context.Context, identity string) (models.InterpreterEarnings, error)
}

// MemorySessionRepository 프로세스 메모리 저장소 (개발/테스트용)
type MemorySessionRepository struct {
	mu      sync.RWMutex
	records map[string]models.SessionRecord
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{records: make(map[string]models.SessionRecord)}
}

func (r *MemorySessionRepository) Save(_ context.Context, rec models.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; !exists {
		r.records[rec.ID] = rec
	}
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, id string) (*models.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *MemorySessionRepository) Stats(_ context.Context) (models.SessionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats models.SessionStats
	for _, rec := range r.records {
		stats.TotalSessions++
		stats.TotalMinutes += rec.Minutes
		stats.TotalBilled += rec.Total
	}
	return stats, nil
}

func (r *MemorySessionRepository) InterpreterEarnings(_ context.Context, identity string) (models.InterpreterEarnings, error) {
	identity = models.NormalizeIdentity(identity)

	r.mu.RLock()
	defer r.mu.RUnlock()

	earnings := models.InterpreterEarnings{Identity: identity}
	for _, rec := range r.records {
		if rec.ProviderIdentity != identity {
			continue
		}
		earnings.TotalShare += rec.InterpreterShare
		earnings.TotalMinutes += rec.Minutes
		earnings.SessionCount++
	}
	return earnings, nil
}
