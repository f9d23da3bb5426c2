package model

import "time"

// AccountStatus はアカウントの利用可否状態を表す。
type AccountStatus string

const (
	// AccountStatusActive はログイン可能な状態。新規アカウントの初期状態。
	AccountStatusActive AccountStatus = "active"
	// AccountStatusLocked はロックアウト中の状態。クールダウン経過後の次回ログイン試行で解除される。
	AccountStatusLocked AccountStatus = "locked"
)

// Account はログイン可能なアカウントを表す。
//
// Status == AccountStatusLocked と LockedAt != nil は常に一致する。
// この不変条件を守るため、状態の変更は Lock / Unlock / RecordLogin のみで行う。
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string `json:"-"`
	Role         string
	Status       AccountStatus
	LockedAt     *time.Time
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLocked はアカウントがロック状態かどうかを返す。
// クールダウンの経過は考慮しない。
func (a *Account) IsLocked() bool {
	return a.Status == AccountStatusLocked
}

// Lock はアカウントを指定時刻でロックする。
func (a *Account) Lock(at time.Time) {
	lockedAt := at
	a.Status = AccountStatusLocked
	a.LockedAt = &lockedAt
	a.UpdatedAt = at
}

// Unlock はロックを解除しアクティブ状態に戻す。
func (a *Account) Unlock(at time.Time) {
	a.Status = AccountStatusActive
	a.LockedAt = nil
	a.UpdatedAt = at
}

// RecordLogin は認証成功時刻を記録する。
func (a *Account) RecordLogin(at time.Time) {
	loginAt := at
	a.LastLoginAt = &loginAt
	a.UpdatedAt = at
}

// CooldownElapsed はロック開始からcooldown以上経過しているかを返す。
// ロックされていないアカウントでは常にtrue。
func (a *Account) CooldownElapsed(now time.Time, cooldown time.Duration) bool {
	if !a.IsLocked() || a.LockedAt == nil {
		return true
	}
	return !now.Before(a.LockedAt.Add(cooldown))
}

// CooldownRemaining はロック解除までの残り時間を返す。
// 経過済みまたは未ロックの場合は0。
func (a *Account) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	if a.CooldownElapsed(now, cooldown) {
		return 0
	}
	return a.LockedAt.Add(cooldown).Sub(now)
}
