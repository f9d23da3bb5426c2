// Package auth はメールアドレスとパスワードによる認証、ロックアウト、
// 試行監査、ベアラートークンの発行を提供する。
package auth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telconova/authgate/internal/metrics"
	"github.com/telconova/authgate/internal/model"
	"github.com/telconova/authgate/internal/repository"
)

var tracer = otel.Tracer("authgate/auth")

// LoginRequest は1回のログイン試行の入力。
// SourceIPとUserAgentは監査用で、空でもよい。
type LoginRequest struct {
	Email     string
	Password  string
	SourceIP  string
	UserAgent string
}

// AuthResult は認証成功時の結果。
type AuthResult struct {
	Account *model.Account
	Token   Token
}

// TokenService はトークンの発行と検証のインターフェース。
type TokenService interface {
	Issue(accountID, email, role string) (Token, error)
	Validate(token string) (*Claims, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// AuditBlockedAttempts がtrueの場合、ロック中アカウントへの試行も失敗として監査記録する。
	AuditBlockedAttempts bool
	Metrics              metrics.MetricsCollector
	Clock                func() time.Time
}

// Service は認証に関するビジネスロジックを提供する。
// リクエストごとに同期的に処理し、内部でリトライやタイムアウトは行わない。
type Service struct {
	accounts repository.AccountRepository
	verifier PasswordVerifier
	lockout  *LockoutPolicy
	auditor  AttemptAuditor
	tokens   TokenService
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	verifier PasswordVerifier,
	lockout *LockoutPolicy,
	auditor AttemptAuditor,
	tokens TokenService,
	config ServiceConfig,
) *Service {
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Service{
		accounts: accounts,
		verifier: verifier,
		lockout:  lockout,
		auditor:  auditor,
		tokens:   tokens,
		config:   config,
	}
}

// Authenticate は資格情報を検証し、成功時にトークンを発行する。
//
// 処理順序は ロックアウト判定 -> パスワード照合 -> 監査記録 -> 状態保存 -> トークン発行 で固定。
// 未登録メールとパスワード誤りは同一のCodeInvalidCredentialsを返す。
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.authenticate",
		trace.WithAttributes(
			attribute.String("auth.source_ip", req.SourceIP),
		))
	defer span.End()

	result, outcome, err := s.authenticate(ctx, req)

	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == metrics.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.config.Metrics.RecordAttempt(outcome)
	s.config.Metrics.RecordAuthLatency(time.Since(start))

	return result, err
}

func (s *Service) authenticate(ctx context.Context, req LoginRequest) (*AuthResult, string, error) {
	// 1. 入力検証（ストレージアクセス・監査なし）
	if req.Email == "" || req.Password == "" {
		return nil, metrics.OutcomeValidation, errValidation()
	}

	now := s.config.Clock()

	// 2. アカウント検索
	account, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, metrics.OutcomeError, errStorage("find account", err)
	}
	if account == nil {
		s.verifier.VerifyDummy(req.Password)
		s.audit(ctx, req, false, model.AttemptReasonUnknownEmail, now)
		slog.Info("login rejected",
			slog.String("reason", string(model.AttemptReasonUnknownEmail)),
			slog.String("source_ip", req.SourceIP),
		)
		return nil, metrics.OutcomeInvalidCredentials, errInvalidCredentials()
	}

	// 3. ロックアウト判定（クールダウン経過時はここで解除される）
	decision, err := s.lockout.Evaluate(ctx, account, now)
	if err != nil {
		return nil, metrics.OutcomeError, err
	}
	if !decision.Usable {
		if s.config.AuditBlockedAttempts {
			s.audit(ctx, req, false, model.AttemptReasonLocked, now)
		}
		slog.Info("login rejected",
			slog.String("reason", string(model.AttemptReasonLocked)),
			slog.String("account_id", account.ID),
			slog.String("source_ip", req.SourceIP),
			slog.Duration("remaining", decision.Remaining),
		)
		return nil, metrics.OutcomeLocked, errAccountLocked()
	}

	// 4. パスワード照合
	if !s.verifier.Verify(req.Password, account.PasswordHash) {
		if _, err := s.lockout.RegisterFailure(ctx, account, now); err != nil {
			slog.Error("failed to apply lock rule",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
		s.audit(ctx, req, false, model.AttemptReasonBadPassword, now)
		slog.Info("login rejected",
			slog.String("reason", string(model.AttemptReasonBadPassword)),
			slog.String("account_id", account.ID),
			slog.String("source_ip", req.SourceIP),
		)
		return nil, metrics.OutcomeInvalidCredentials, errInvalidCredentials()
	}

	s.audit(ctx, req, true, model.AttemptReasonOK, now)

	account.RecordLogin(now)
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, metrics.OutcomeError, errStorage("record login", err)
	}

	token, err := s.tokens.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, metrics.OutcomeError, err
	}

	slog.Info("login succeeded",
		slog.String("account_id", account.ID),
		slog.String("source_ip", req.SourceIP),
		slog.Bool("recovered", decision.Recovered),
	)

	return &AuthResult{Account: account, Token: token}, metrics.OutcomeSuccess, nil
}

func (s *Service) audit(ctx context.Context, req LoginRequest, success bool, reason model.AttemptReason, now time.Time) {
	s.auditor.Record(ctx, model.AttemptRecord{
		Email:      req.Email,
		Success:    success,
		Reason:     reason,
		SourceIP:   req.SourceIP,
		UserAgent:  req.UserAgent,
		OccurredAt: now,
	})
}

// ValidateToken はベアラートークンを検証してクレームを返す。
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.tokens.Validate(token)
}

// CurrentAccount は指定IDのアカウントを返す。見つからない場合はnilを返す。
func (s *Service) CurrentAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, errStorage("find account by id", err)
	}
	return account, nil
}
