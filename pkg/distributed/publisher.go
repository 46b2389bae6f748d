package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionsCompletedChannel 완료된 세션 이벤트 채널
const SessionsCompletedChannel = "sessions:completed"

// Event Pub/Sub 으로 발행되는 이벤트
type Event struct {
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	InstanceID string          `json:"instance_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// EventPublisher Redis Pub/Sub 기반 이벤트 발행기
type EventPublisher struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
	channel    string
}

// NewEventPublisher 이벤트 발행기 생성
func NewEventPublisher(client *redis.Client, channel string, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventPublisher{
		client:     client,
		logger:     logger,
		instanceID: uuid.New().String(),
		channel:    channel,
	}
}

// Channel 발행 채널 이름
func (p *EventPublisher) Channel() string {
	return p.channel
}

// Publish 이벤트 발행. 구독자가 없어도 에러가 아니다.
func (p *EventPublisher) Publish(ctx context.Context, eventType, key string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Event{
		Type:       eventType,
		Key:        key,
		InstanceID: p.instanceID,
		Payload:    raw,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published event",
		zap.String("channel", p.channel),
		zap.String("type", eventType),
		zap.String("key", key),
		zap.Int64("receivers", receivers))

	return nil
}
