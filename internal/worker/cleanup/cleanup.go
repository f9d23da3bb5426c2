// Package cleanup はログイン試行の監査ログの保持期間管理ジョブを提供する。
// 保持期間を超過したlogin_attemptsを定期的に削除する。
// 保持日数が0の場合は無期限保持とし、何も削除しない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はintervalが正でない場合に使う実行間隔。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は保持期間を超過した監査ログの削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 監査ログの保持日数（0は無期限）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, retentionDays int) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Enabled は削除対象となる保持期間が設定されているかを返す。
func (j *CleanupJob) Enabled() bool {
	return j.RetentionDays > 0
}

// Run は保持期間を超過した監査ログを削除し、削除件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	if !j.Enabled() {
		j.logger.Debug("attempt cleanup skipped: retention disabled")
		return 0, nil
	}

	start := time.Now()
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM login_attempts WHERE occurred_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("attempt cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("failed to delete expired login attempts: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.logger.Info("attempt cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Start は起動直後に1回、以降intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。intervalが正でなければDefaultIntervalを使う。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if !j.Enabled() {
		j.logger.Info("attempt retention disabled, keeping audit trail forever")
		<-ctx.Done()
		return
	}

	j.logger.Info("attempt cleanup started",
		slog.Int("retention_days", j.RetentionDays),
		slog.Duration("interval", interval),
	)

	// Runは失敗をログに記録済み
	_, _ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
