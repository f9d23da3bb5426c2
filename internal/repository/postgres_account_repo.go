package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/telconova/authgate/internal/model"
)

const accountColumns = `id, name, email, password_hash, role, status, locked_at, last_login_at, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// Save はアカウントの状態を1行のUPDATEで永続化する。
// 同一アカウントへの同時更新は後勝ちとなる。
func (r *PostgresAccountRepo) Save(ctx context.Context, account *model.Account) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET status = $2, locked_at = $3, last_login_at = $4, updated_at = $5
		 WHERE id = $1`,
		account.ID, string(account.Status), account.LockedAt, account.LastLoginAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, account.ID)
	}
	return nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.Name, account.Email, account.PasswordHash, account.Role,
		string(account.Status), account.LockedAt, account.LastLoginAt, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, account.Email)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	a := &model.Account{}
	var status string
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &status,
		&a.LockedAt, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	return a, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
