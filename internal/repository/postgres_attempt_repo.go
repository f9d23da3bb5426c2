package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/telconova/authgate/internal/model"
)

// PostgresAttemptRepo はPostgreSQLを使用したログイン試行リポジトリ。
type PostgresAttemptRepo struct {
	db *sql.DB
}

// NewPostgresAttemptRepo はPostgresAttemptRepoを生成する。
func NewPostgresAttemptRepo(db *sql.DB) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{db: db}
}

// Insert は試行を1件追記する。
// IDが空の場合は時刻順にソート可能なULIDを採番し、recordに書き戻す。
func (r *PostgresAttemptRepo) Insert(ctx context.Context, record *model.AttemptRecord) error {
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if record.ID == "" {
		record.ID = ulid.MustNew(ulid.Timestamp(record.OccurredAt), ulid.DefaultEntropy()).String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_attempts (id, email, success, reason, source_ip, user_agent, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.Email, record.Success, string(record.Reason),
		record.SourceIP, record.UserAgent, record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}

// CountFailuresSince はsince以降の失敗試行数を返す。
func (r *PostgresAttemptRepo) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM login_attempts
		 WHERE email = $1 AND NOT success AND occurred_at >= $2`,
		email, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed attempts: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ AttemptRepository = (*PostgresAttemptRepo)(nil)
