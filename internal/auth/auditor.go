package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telconova/authgate/internal/metrics"
	"github.com/telconova/authgate/internal/model"
)

// DefaultAuditQueueSize は非同期監査キューの既定サイズ。
const DefaultAuditQueueSize = 256

// asyncWriteTimeout は非同期監査1件あたりの書き込みタイムアウト。
const asyncWriteTimeout = 5 * time.Second

// AttemptAuditor はログイン試行を監査ログに記録する。
// 記録の失敗は呼び出し元に伝播せず、認証結果に影響しない。
type AttemptAuditor interface {
	Record(ctx context.Context, record model.AttemptRecord)
}

// AttemptWriter は監査ログの書き込み先。
type AttemptWriter interface {
	Insert(ctx context.Context, record *model.AttemptRecord) error
}

// DirectAuditor は同期的に監査ログを書き込む。
type DirectAuditor struct {
	writer  AttemptWriter
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewDirectAuditor はDirectAuditorを生成する。
func NewDirectAuditor(writer AttemptWriter, logger *slog.Logger, mc metrics.MetricsCollector) *DirectAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &DirectAuditor{writer: writer, logger: logger, metrics: mc}
}

// Record は試行を書き込む。エラーやpanicはログとメトリクスに記録して握りつぶす。
func (a *DirectAuditor) Record(ctx context.Context, record model.AttemptRecord) {
	defer func() {
		if rec := recover(); rec != nil {
			a.fail(record, fmt.Errorf("panic: %v", rec))
		}
	}()

	if err := a.writer.Insert(ctx, &record); err != nil {
		a.fail(record, err)
	}
}

func (a *DirectAuditor) fail(record model.AttemptRecord, err error) {
	a.metrics.RecordAuditFailure()
	a.logger.Error("failed to record login attempt",
		slog.String("email", record.Email),
		slog.Bool("success", record.Success),
		slog.String("reason", string(record.Reason)),
		slog.String("error", err.Error()),
	)
}

// AsyncAuditor はバックグラウンドのgoroutineで監査ログを書き込む。
// キューが満杯の場合は記録を破棄し、ログとメトリクスに残す。
type AsyncAuditor struct {
	direct *DirectAuditor
	queue  chan model.AttemptRecord
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once

	syncFailures bool
}

// AsyncAuditorOption はAsyncAuditorの生成オプション。
type AsyncAuditorOption func(*AsyncAuditor)

// WithSynchronousFailures はパスワード不一致の記録をキューを経由せず同期的に書き込む。
// ロックルールが監査ログから失敗回数を数える場合に指定する。
func WithSynchronousFailures() AsyncAuditorOption {
	return func(a *AsyncAuditor) {
		a.syncFailures = true
	}
}

// NewAsyncAuditor はAsyncAuditorを生成し、書き込みgoroutineを開始する。
// 終了時はCloseを呼び出すこと。
func NewAsyncAuditor(writer AttemptWriter, queueSize int, logger *slog.Logger, mc metrics.MetricsCollector, opts ...AsyncAuditorOption) *AsyncAuditor {
	if queueSize <= 0 {
		queueSize = DefaultAuditQueueSize
	}
	a := &AsyncAuditor{
		direct: NewDirectAuditor(writer, logger, mc),
		queue:  make(chan model.AttemptRecord, queueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

// Record は試行をキューに投入する。ブロックしない。
// WithSynchronousFailures指定時、パスワード不一致の記録はその場で書き込む。
func (a *AsyncAuditor) Record(ctx context.Context, record model.AttemptRecord) {
	if a.syncFailures && record.Reason == model.AttemptReasonBadPassword {
		a.direct.Record(ctx, record)
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.drop(record, "auditor closed")
		return
	}

	select {
	case a.queue <- record:
	default:
		a.drop(record, "queue full")
	}
}

func (a *AsyncAuditor) drop(record model.AttemptRecord, reason string) {
	a.direct.metrics.RecordAuditDropped()
	a.direct.logger.Warn("login attempt dropped from audit trail",
		slog.String("email", record.Email),
		slog.Bool("success", record.Success),
		slog.String("reason", reason),
	)
}

func (a *AsyncAuditor) run() {
	defer close(a.done)
	for record := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		a.direct.Record(ctx, record)
		cancel()
	}
}

// Close は新規の受け付けを停止し、キューに残った記録を書き込み終えるまで待つ。
// ctxが先に終了した場合はctx.Err()を返す。
func (a *AsyncAuditor) Close(ctx context.Context) error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ AttemptAuditor = (*DirectAuditor)(nil)
	_ AttemptAuditor = (*AsyncAuditor)(nil)
)
