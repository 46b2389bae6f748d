package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoSessionRepository struct {
	collection *mongo.Collection
}

func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{collection: db.Collection("sessions")}
}

// EnsureIndexes 통역사별 조회 인덱스 생성
func (r *MongoSessionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "providerIdentity", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create sessions index: %w", err)
	}
	return nil
}

// Save 세션 기록 upsert. 재시도로 같은 기록이 다시 와도 문서는 하나다.
func (r *MongoSessionRepository) Save(ctx context.Context, rec models.SessionRecord) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": rec.ID},
		rec,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

func (r *MongoSessionRepository) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &rec, nil
}

func (r *MongoSessionRepository) Stats(ctx context.Context) (models.SessionStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalSessions", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "totalMinutes", Value: bson.D{{Key: "$sum", Value: "$minutes"}}},
			{Key: "totalBilled", Value: bson.D{{Key: "$sum", Value: "$total"}}},
		}}},
	}

	var stats models.SessionStats
	if err := r.aggregateOne(ctx, pipeline, &stats); err != nil {
		return stats, fmt.Errorf("failed to get session stats: %w", err)
	}
	return stats, nil
}

func (r *MongoSessionRepository) InterpreterEarnings(ctx context.Context, identity string) (models.InterpreterEarnings, error) {
	identity = models.NormalizeIdentity(identity)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "providerIdentity", Value: identity}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalShare", Value: bson.D{{Key: "$sum", Value: "$interpreterShare"}}},
			{Key: "totalMinutes", Value: bson.D{{Key: "$sum", Value: "$minutes"}}},
			{Key: "sessionCount", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	earnings := models.InterpreterEarnings{}
	if err := r.aggregateOne(ctx, pipeline, &earnings); err != nil {
		return earnings, fmt.Errorf("failed to get interpreter earnings: %w", err)
	}
	earnings.Identity = identity
	return earnings, nil
}

// aggregateOne 단일 그룹 결과를 out 에 디코딩. 문서가 없으면 out 은 그대로 둔다.
func (r *MongoSessionRepository) aggregateOne(ctx context.Context, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		return cursor.Decode(out)
	}
	return cursor.Err()
}
