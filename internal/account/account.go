// Package account はオペレーター向けのアカウント発行を提供する。
// 利用者による自己登録は扱わない。
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/telconova/authgate/internal/model"
	"github.com/telconova/authgate/internal/repository"
)

// エラーコード
const (
	CodeInvalidInput   = "ACCOUNT_INVALID_INPUT"
	CodeDuplicateEmail = "ACCOUNT_DUPLICATE_EMAIL"
	CodeCreateFailed   = "ACCOUNT_CREATE_FAILED"
)

// DefaultRole はロール未指定時に付与するロール。
const DefaultRole = "user"

// PasswordHasher は平文パスワードからハッシュを生成する。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Creator はアカウントを永続化する。
type Creator interface {
	Create(ctx context.Context, account *model.Account) error
}

// CreateInput はアカウント発行の入力。
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Service はアカウント発行のビジネスロジックを提供する。
type Service struct {
	repo   Creator
	hasher PasswordHasher
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo Creator, hasher PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher, now: time.Now}
}

// Create は新しいアクティブなアカウントを発行する。
// メールアドレスは入力どおりに保存され、照合時も大文字小文字を区別する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Account, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, oops.Code(CodeInvalidInput).With("email", email).Wrap(err)
	}
	// 照合は完全一致のため、表示名付きや<>囲みの形式は受け付けない。
	if addr.Address != email {
		return nil, oops.Code(CodeInvalidInput).With("email", email).Errorf("email must be a bare address")
	}
	if in.Password == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password is required")
	}

	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = DefaultRole
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code(CodeInvalidInput).Wrap(err)
	}

	now := s.now()
	acct := &model.Account{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       model.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, oops.Code(CodeDuplicateEmail).With("email", email).Wrap(err)
		}
		return nil, oops.Code(CodeCreateFailed).Wrap(err)
	}

	slog.Info("account created",
		slog.String("account_id", acct.ID),
		slog.String("role", acct.Role),
	)

	return acct, nil
}
