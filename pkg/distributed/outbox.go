package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	ErrQueueFull  = errors.New("queue is full")
)

// OutboxItem Outbox 에 적재되는 작업 단위
type OutboxItem struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RedisOutbox Redis 기반 FIFO Outbox
// 대기열(Sorted Set, score=적재 시각) -> 처리 중(Hash) -> 완료 또는 재시도/DLQ(List)
type RedisOutbox struct {
	client        *redis.Client
	queueKey      string // 대기열 (Sorted Set)
	processingKey string // 처리 중 아이템 (Hash)
	startedKey    string // 처리 시작 시각 (Hash)
	dlqKey        string // Dead Letter Queue (List)
	maxSize       int    // 최대 큐 크기 (0 = 무제한)
}

// Pop: 가장 오래된 아이템을 꺼내 처리 중 Hash 로 옮긴다
var popScript = redis.NewScript(`
	local queue_key = KEYS[1]
	local processing_key = KEYS[2]
	local started_key = KEYS[3]
	local timestamp = ARGV[1]

	local items = redis.call('ZPOPMIN', queue_key, 1)
	if #items == 0 then
		return nil
	end

	local item_data = items[1]
	local item_id = cjson.decode(item_data).id

	redis.call('HSET', processing_key, item_id, item_data)
	redis.call('HSET', started_key, item_id, timestamp)

	return item_data
`)

// NewRedisOutbox Outbox 생성
func NewRedisOutbox(client *redis.Client, name string, maxSize int) *RedisOutbox {
	return &RedisOutbox{
		client:        client,
		queueKey:      fmt.Sprintf("outbox:%s", name),
		processingKey: fmt.Sprintf("outbox:%s:processing", name),
		startedKey:    fmt.Sprintf("outbox:%s:started", name),
		dlqKey:        fmt.Sprintf("outbox:%s:dlq", name),
		maxSize:       maxSize,
	}
}

// Push 아이템 적재 (도착 순서대로 처리)
func (q *RedisOutbox) Push(ctx context.Context, item *OutboxItem) error {
	if q.maxSize > 0 {
		size, err := q.client.ZCard(ctx, q.queueKey).Result()
		if err != nil {
			return fmt.Errorf("failed to get queue size: %w", err)
		}

		if int(size) >= q.maxSize {
			return ErrQueueFull
		}
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  float64(item.UpdatedAt.UnixMicro()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to push: %w", err)
	}

	return nil
}

// Pop 가장 오래된 아이템 꺼내기. 비어 있으면 ErrQueueEmpty.
func (q *RedisOutbox) Pop(ctx context.Context) (*OutboxItem, error) {
	keys := []string{q.queueKey, q.processingKey, q.startedKey}
	result, err := popScript.Run(ctx, q.client, keys, time.Now().Unix()).Result()
	if err == redis.Nil || (err == nil && result == nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop: %w", err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected pop result type %T", result)
	}

	var item OutboxItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &item, nil
}

// Ack 처리 완료 (processing 에서 제거)
func (q *RedisOutbox) Ack(ctx context.Context, itemID string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.processingKey, itemID)
	pipe.HDel(ctx, q.startedKey, itemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack item: %w", err)
	}

	return nil
}

// Retry 재시도. MaxAttempts 에 도달하면 DLQ 로 이동하고 true 를 반환한다.
func (q *RedisOutbox) Retry(ctx context.Context, item *OutboxItem, reason string) (bool, error) {
	item.Attempts++

	if item.MaxAttempts > 0 && item.Attempts >= item.MaxAttempts {
		return true, q.MoveToDLQ(ctx, item, reason)
	}

	if err := q.Ack(ctx, item.ID); err != nil {
		return false, err
	}

	return false, q.Push(ctx, item)
}

// MoveToDLQ Dead Letter Queue 로 이동
func (q *RedisOutbox) MoveToDLQ(ctx context.Context, item *OutboxItem, reason string) error {
	dlqItem := map[string]interface{}{
		"item":     item,
		"reason":   reason,
		"moved_at": time.Now(),
	}

	data, err := json.Marshal(dlqItem)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	if err := q.client.LPush(ctx, q.dlqKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}

	return q.Ack(ctx, item.ID)
}

// RecoverStale 일정 시간 이상 처리 중인 아이템을 대기열로 되돌린다 (워커 비정상 종료 대비)
func (q *RedisOutbox) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	started, err := q.client.HGetAll(ctx, q.startedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	recovered := 0
	now := time.Now().Unix()

	for id, ts := range started {
		startedAt, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || now-startedAt <= int64(staleTimeout.Seconds()) {
			continue
		}

		data, err := q.client.HGet(ctx, q.processingKey, id).Result()
		if err != nil {
			continue
		}

		var item OutboxItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			continue
		}

		if _, err := q.Retry(ctx, &item, "stale"); err != nil {
			continue
		}

		recovered++
	}

	return recovered, nil
}

// QueueStats Outbox 통계
type QueueStats struct {
	QueueSize       int64 `json:"queue_size"`
	ProcessingCount int64 `json:"processing_count"`
	DLQSize         int64 `json:"dlq_size"`
}

// GetStats Outbox 통계 조회
func (q *RedisOutbox) GetStats(ctx context.Context) (*QueueStats, error) {
	pipe := q.client.Pipeline()
	queueSize := pipe.ZCard(ctx, q.queueKey)
	processing := pipe.HLen(ctx, q.processingKey)
	dlqSize := pipe.LLen(ctx, q.dlqKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get outbox stats: %w", err)
	}

	return &QueueStats{
		QueueSize:       queueSize.Val(),
		ProcessingCount: processing.Val(),
		DLQSize:         dlqSize.Val(),
	}, nil
}
