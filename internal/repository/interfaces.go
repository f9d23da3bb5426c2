// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/telconova/authgate/internal/model"
)

// ErrDuplicateEmail は同一メールアドレスのアカウントが既に存在する場合に返される。
var ErrDuplicateEmail = errors.New("account email already exists")

// ErrAccountNotFound は更新対象のアカウントが存在しない場合に返される。
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository はアカウントデータの永続化インターフェース。
// メールアドレスは大文字小文字を区別して完全一致で照合する。
type AccountRepository interface {
	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// Save はstatus、locked_at、last_login_at、updated_atを1回のUPDATEで永続化する。
	Save(ctx context.Context, account *model.Account) error

	// Create はアカウントを作成する。メール重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error
}

// AttemptRepository はログイン試行監査ログの永続化インターフェース。
// 追記専用で、記録済みの試行は更新しない。
type AttemptRepository interface {
	// Insert は試行を1件追記する。IDが空の場合はULIDを採番する。
	Insert(ctx context.Context, record *model.AttemptRecord) error

	// CountFailuresSince はsince以降に記録された指定メールの失敗試行数を返す。
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
}
