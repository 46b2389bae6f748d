package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/DeafHustle/vrs-live-final/pkg/database"
)

const sessionSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		room_id            TEXT NOT NULL,
		room_name          TEXT NOT NULL,
		requester_identity TEXT NOT NULL,
		provider_identity  TEXT NOT NULL,
		status             TEXT NOT NULL,
		end_reason         TEXT NOT NULL,
		started_at         TIMESTAMPTZ NOT NULL,
		ended_at           TIMESTAMPTZ NOT NULL,
		minutes            BIGINT NOT NULL,
		rate               BIGINT NOT NULL,
		total              BIGINT NOT NULL,
		interpreter_share  BIGINT NOT NULL,
		platform_share     BIGINT NOT NULL,
		requester_share    BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_provider_identity ON sessions (provider_identity);
`

type PostgresSessionRepository struct {
	db *database.DB
}

func NewPostgresSessionRepository(db *database.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// EnsureSchema sessions 테이블 생성
func (r *PostgresSessionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sessionSchema); err != nil {
		return fmt.Errorf("failed to create sessions schema: %w", err)
	}
	return nil
}

// Save 세션 기록 저장. 이미 있는 ID 는 무시한다.
func (r *PostgresSessionRepository) Save(ctx context.Context, rec models.SessionRecord) error {
	query := `
		INSERT INTO sessions (
			id, room_id, room_name, requester_identity, provider_identity, status, end_reason,
			started_at, ended_at, minutes, rate, total, interpreter_share, platform_share, requester_share
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RoomID,
		rec.RoomName,
		rec.RequesterIdentity,
		rec.ProviderIdentity,
		rec.Status,
		rec.EndReason,
		rec.StartedAt,
		rec.EndedAt,
		rec.Minutes,
		rec.Rate,
		rec.Total,
		rec.InterpreterShare,
		rec.PlatformShare,
		rec.RequesterShare,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}

	return nil
}

// Get ID 로 세션 기록 조회
func (r *PostgresSessionRepository) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	query := `
		SELECT id, room_id, room_name, requester_identity, provider_identity, status, end_reason,
		       started_at, ended_at, minutes, rate, total, interpreter_share, platform_share, requester_share
		FROM sessions
		WHERE id = $1
	`

	rec := &models.SessionRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.RoomID,
		&rec.RoomName,
		&rec.RequesterIdentity,
		&rec.ProviderIdentity,
		&rec.Status,
		&rec.EndReason,
		&rec.StartedAt,
		&rec.EndedAt,
		&rec.Minutes,
		&rec.Rate,
		&rec.Total,
		&rec.InterpreterShare,
		&rec.PlatformShare,
		&rec.RequesterShare,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return rec, nil
}

// Stats 완료된 세션 집계
func (r *PostgresSessionRepository) Stats(ctx context.Context) (models.SessionStats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(minutes), 0), COALESCE(SUM(total), 0) FROM sessions`

	var stats models.SessionStats
	if err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalSessions,
		&stats.TotalMinutes,
		&stats.TotalBilled,
	); err != nil {
		return stats, fmt.Errorf("failed to get session stats: %w", err)
	}

	return stats, nil
}

// InterpreterEarnings 통역사 누적 수익
func (r *PostgresSessionRepository) InterpreterEarnings(ctx context.Context, identity string) (models.InterpreterEarnings, error) {
	query := `
		SELECT COALESCE(SUM(interpreter_share), 0), COALESCE(SUM(minutes), 0), COUNT(*)
		FROM sessions
		WHERE provider_identity = $1
	`

	earnings := models.InterpreterEarnings{Identity: models.NormalizeIdentity(identity)}
	if err := r.db.QueryRowContext(ctx, query, earnings.Identity).Scan(
		&earnings.TotalShare,
		&earnings.TotalMinutes,
		&earnings.SessionCount,
	); err != nil {
		return earnings, fmt.Errorf("failed to get interpreter earnings: %w", err)
	}

	return earnings, nil
}
