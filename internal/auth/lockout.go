package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/telconova/authgate/internal/metrics"
	"github.com/telconova/authgate/internal/model"
)

// DefaultLockoutCooldown はロック解除までの既定のクールダウン時間。
const DefaultLockoutCooldown = 15 * time.Minute

// Decision はロックアウト判定の結果。
type Decision struct {
	// Usable はこの試行でパスワード照合に進めるかどうか。
	Usable bool
	// Remaining はUsable=falseの場合のロック解除までの残り時間。
	Remaining time.Duration
	// Recovered はこの判定でクールダウン経過によりロックが解除されたかどうか。
	Recovered bool
}

// AccountSaver はアカウント状態を永続化する。
type AccountSaver interface {
	Save(ctx context.Context, account *model.Account) error
}

// LockRule はアクティブなアカウントをロックすべきかを判定する。
// パスワード不一致の直後、当該試行の監査記録より前に呼ばれる。
type LockRule interface {
	ShouldLock(ctx context.Context, account *model.Account, now time.Time) (bool, error)
}

// NeverLockRule はロックを一切設定しないルール。
// ロックの設定を外部の仕組みに委ねる場合に使用する。
type NeverLockRule struct{}

// ShouldLock は常にfalseを返す。
func (NeverLockRule) ShouldLock(context.Context, *model.Account, time.Time) (bool, error) {
	return false, nil
}

// FailureCounter は指定時刻以降の失敗試行数を返す。
type FailureCounter interface {
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
}

// ConsecutiveFailuresRule はWindow内の失敗がMaxFailures回に達したらロックするルール。
//
// 集計の起点は now-Window と、アカウントの直近の状態変更時刻（作成・ロック解除・
// ログイン成功）のうち遅い方。これによりロック解除前の失敗は再集計されない。
// 現在の試行はまだ監査記録されていないため1回分として加算する。
type ConsecutiveFailuresRule struct {
	MaxFailures int
	Window      time.Duration
	Counter     FailureCounter
}

// ShouldLock は失敗回数を集計し、閾値に達したかどうかを返す。
func (r ConsecutiveFailuresRule) ShouldLock(ctx context.Context, account *model.Account, now time.Time) (bool, error) {
	if r.MaxFailures <= 0 || r.Counter == nil {
		return false, nil
	}

	since := now.Add(-r.Window)
	if account.UpdatedAt.After(since) {
		since = account.UpdatedAt
	}
	if account.LastLoginAt != nil && account.LastLoginAt.After(since) {
		since = *account.LastLoginAt
	}

	prior, err := r.Counter.CountFailuresSince(ctx, account.Email, since)
	if err != nil {
		return false, err
	}
	return prior+1 >= r.MaxFailures, nil
}

// NewLockRule は設定値からLockRuleを選択する。
// maxFailuresが0以下の場合はNeverLockRuleを返す。
func NewLockRule(maxFailures int, window time.Duration, counter FailureCounter) LockRule {
	if maxFailures <= 0 {
		return NeverLockRule{}
	}
	return ConsecutiveFailuresRule{
		MaxFailures: maxFailures,
		Window:      window,
		Counter:     counter,
	}
}

// LockoutPolicy はロック状態の判定と遷移を担う。
//
// active -> locked はLockRuleが判定し、locked -> active はクールダウン経過後の
// 次回試行時にEvaluateが遅延的に行う。
type LockoutPolicy struct {
	cooldown time.Duration
	rule     LockRule
	accounts AccountSaver
	metrics  metrics.MetricsCollector
}

// NewLockoutPolicy はLockoutPolicyを生成する。
// cooldownが0以下の場合はDefaultLockoutCooldownを使用する。
func NewLockoutPolicy(cooldown time.Duration, rule LockRule, accounts AccountSaver, mc metrics.MetricsCollector) *LockoutPolicy {
	if cooldown <= 0 {
		cooldown = DefaultLockoutCooldown
	}
	if rule == nil {
		rule = NeverLockRule{}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &LockoutPolicy{
		cooldown: cooldown,
		rule:     rule,
		accounts: accounts,
		metrics:  mc,
	}
}

// Cooldown は設定されたクールダウン時間を返す。
func (p *LockoutPolicy) Cooldown() time.Duration {
	return p.cooldown
}

// Evaluate はアカウントがこの試行で利用可能かを判定する。
// クールダウンが経過したロック中アカウントはactiveに戻して1回だけ保存する。
// 保存に失敗した場合はCodeStorageのエラーを返す。
func (p *LockoutPolicy) Evaluate(ctx context.Context, account *model.Account, now time.Time) (Decision, error) {
	if !account.IsLocked() {
		return Decision{Usable: true}, nil
	}

	if !account.CooldownElapsed(now, p.cooldown) {
		return Decision{Remaining: account.CooldownRemaining(now, p.cooldown)}, nil
	}

	account.Unlock(now)
	if err := p.accounts.Save(ctx, account); err != nil {
		return Decision{}, errStorage("unlock account", err)
	}

	p.metrics.RecordRecovery()
	slog.Info("account lock released",
		slog.String("account_id", account.ID),
	)

	return Decision{Usable: true, Recovered: true}, nil
}

// RegisterFailure はパスワード不一致の試行にLockRuleを適用し、
// 閾値に達した場合はアカウントをロックして保存する。
func (p *LockoutPolicy) RegisterFailure(ctx context.Context, account *model.Account, now time.Time) (bool, error) {
	if account.IsLocked() {
		return false, nil
	}

	lock, err := p.rule.ShouldLock(ctx, account, now)
	if err != nil {
		return false, errStorage("evaluate lock rule", err)
	}
	if !lock {
		return false, nil
	}

	account.Lock(now)
	if err := p.accounts.Save(ctx, account); err != nil {
		return false, errStorage("lock account", err)
	}

	p.metrics.RecordLockout()
	slog.Warn("account locked after repeated failures",
		slog.String("account_id", account.ID),
	)

	return true, nil
}
