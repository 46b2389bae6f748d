package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/metrics"
	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/internal/repository"
	"github.com/DeafHustle/vrs-live-final/pkg/distributed"
	"go.uber.org/zap"
)

const (
	recordKind       = "session_record"
	recordBufferSize = 1024
	saveTimeout      = 5 * time.Second
	staleAfter       = 2 * time.Minute
)

// Outbox 세션 기록 대기열 (Redis 구현: distributed.RedisOutbox)
type Outbox interface {
	Push(ctx context.Context, item *distributed.OutboxItem) error
	Pop(ctx context.Context) (*distributed.OutboxItem, error)
	Ack(ctx context.Context, itemID string) error
	Retry(ctx context.Context, item *distributed.OutboxItem, reason string) (bool, error)
	MoveToDLQ(ctx context.Context, item *distributed.OutboxItem, reason string) error
	RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error)
}

// Publisher 저장된 세션 이벤트 발행 (Redis 구현: distributed.EventPublisher)
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
}

type pendingRecord struct {
	rec      models.SessionRecord
	attempts int
}

// SessionRecorder 종료된 세션을 백그라운드에서 저장한다.
// 저장 실패는 매칭 흐름에 영향을 주지 않는다 (재시도 후 포기).
type SessionRecorder struct {
	repo       repository.SessionRepository
	outbox     Outbox
	publisher  Publisher
	logger     *zap.Logger
	interval   time.Duration
	maxRetries int

	incoming chan models.SessionRecord
	retries  []pendingRecord

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSessionRecorder(
	repo repository.SessionRepository,
	outbox Outbox,
	publisher Publisher,
	interval time.Duration,
	maxRetries int,
	logger *zap.Logger,
) *SessionRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &SessionRecorder{
		repo:       repo,
		outbox:     outbox,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		maxRetries: maxRetries,
		incoming:   make(chan models.SessionRecord, recordBufferSize),
		stopChan:   make(chan struct{}),
	}
}

// Record 기록 요청. 버퍼가 가득 차면 버리고 로그를 남긴다.
func (r *SessionRecorder) Record(rec models.SessionRecord) {
	select {
	case r.incoming <- rec:
	default:
		metrics.RecordFailures.WithLabelValues("dropped").Inc()
		r.logger.Error("Session record buffer full, dropping record", zap.String("session", rec.ID))
	}
}

// Start 저장 루프 시작
func (r *SessionRecorder) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("Starting SessionRecorder",
		zap.Duration("interval", r.interval),
		zap.Int("max_retries", r.maxRetries),
		zap.Bool("outbox", r.outbox != nil))

	r.wg.Add(1)
	go r.recordLoop()
}

// Stop 저장 루프 중지. 버퍼에 남은 기록은 한 번씩 저장을 시도한다.
func (r *SessionRecorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("Stopping SessionRecorder")
	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info("SessionRecorder stopped")
}

func (r *SessionRecorder) recordLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-r.incoming:
			r.handle(rec)
		case <-ticker.C:
			r.flush()
		case <-r.stopChan:
			r.drain()
			return
		}
	}
}

// drain 종료 시 남은 기록 처리
func (r *SessionRecorder) drain() {
	for {
		select {
		case rec := <-r.incoming:
			r.handle(rec)
		default:
			r.flush()
			return
		}
	}
}

func (r *SessionRecorder) handle(rec models.SessionRecord) {
	if r.outbox == nil {
		r.attempt(pendingRecord{rec: rec})
		return
	}

	payload, err := json.Marshal(rec)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err = r.outbox.Push(ctx, &distributed.OutboxItem{
			ID:          rec.ID,
			Kind:        recordKind,
			Payload:     payload,
			MaxAttempts: r.maxRetries,
		})
		cancel()
	}
	if err != nil {
		// outbox 장애 시 직접 저장으로 대체
		r.logger.Warn("Outbox push failed, saving directly", zap.String("session", rec.ID), zap.Error(err))
		r.attempt(pendingRecord{rec: rec})
		return
	}

	r.drainOutbox()
}

// flush 재시도 대기 기록과 outbox 처리
func (r *SessionRecorder) flush() {
	retries := r.retries
	r.retries = nil
	for _, p := range retries {
		r.attempt(p)
	}

	if r.outbox == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	recovered, err := r.outbox.RecoverStale(ctx, staleAfter)
	cancel()
	if err != nil {
		r.logger.Warn("Failed to recover stale outbox items", zap.Error(err))
	} else if recovered > 0 {
		r.logger.Info("Recovered stale outbox items", zap.Int("count", recovered))
	}

	r.drainOutbox()
}

// attempt 직접 저장. 실패하면 다음 tick 에 재시도, maxRetries 초과 시 포기.
func (r *SessionRecorder) attempt(p pendingRecord) {
	p.attempts++
	if err := r.save(p.rec); err != nil {
		if p.attempts >= r.maxRetries {
			metrics.RecordFailures.WithLabelValues("dropped").Inc()
			r.logger.Error("Giving up on session record",
				zap.String("session", p.rec.ID),
				zap.Int("attempts", p.attempts),
				zap.Error(err))
			return
		}

		metrics.RecordFailures.WithLabelValues("retry").Inc()
		r.logger.Warn("Failed to save session record, will retry",
			zap.String("session", p.rec.ID),
			zap.Int("attempts", p.attempts),
			zap.Error(err))
		r.retries = append(r.retries, p)
	}
}

func (r *SessionRecorder) drainOutbox() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		item, err := r.outbox.Pop(ctx)
		cancel()
		if errors.Is(err, distributed.ErrQueueEmpty) {
			return
		}
		if err != nil {
			r.logger.Warn("Failed to pop outbox item", zap.Error(err))
			return
		}

		var rec models.SessionRecord
		if err := json.Unmarshal(item.Payload, &rec); err != nil {
			r.logger.Error("Malformed outbox item", zap.String("id", item.ID), zap.Error(err))
			r.deadLetter(item, "malformed payload")
			continue
		}

		if err := r.save(rec); err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			dead, retryErr := r.outbox.Retry(ctx, item, err.Error())
			cancel()

			outcome := "retry"
			if dead {
				outcome = "dropped"
			}
			metrics.RecordFailures.WithLabelValues(outcome).Inc()
			r.logger.Warn("Failed to save session record from outbox",
				zap.String("session", rec.ID),
				zap.Int("attempts", item.Attempts),
				zap.Bool("dead_lettered", dead),
				zap.Error(err))
			if retryErr != nil {
				r.logger.Error("Failed to requeue outbox item", zap.String("id", item.ID), zap.Error(retryErr))
			}
			// 저장소 장애 중에는 다음 tick 까지 대기
			return
		}

		ctx, cancel = context.WithTimeout(context.Background(), saveTimeout)
		if err := r.outbox.Ack(ctx, item.ID); err != nil {
			r.logger.Warn("Failed to ack outbox item", zap.String("id", item.ID), zap.Error(err))
		}
		cancel()
	}
}

func (r *SessionRecorder) deadLetter(item *distributed.OutboxItem, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.outbox.MoveToDLQ(ctx, item, reason); err != nil {
		r.logger.Error("Failed to dead-letter outbox item", zap.String("id", item.ID), zap.Error(err))
	}
}

// save 저장 후 완료 이벤트 발행. 발행 실패는 저장 결과에 영향이 없다.
func (r *SessionRecorder) save(rec models.SessionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := r.repo.Save(ctx, rec); err != nil {
		return err
	}
	metrics.RecordsPersisted.Inc()

	r.logger.Debug("Session record saved", zap.String("session", rec.ID), zap.Int64("total", rec.Total))

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, "session_completed", rec.ID, rec); err != nil {
			r.logger.Warn("Failed to publish session event", zap.String("session", rec.ID), zap.Error(err))
		}
	}
	return nil
}
